package diary

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicediary/analysis"
)

// MemoryStore keeps everything in process. It is used by tests and when no
// database path is configured.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
	entries  []Entry
	hub      *hub
	now      func() time.Time

	// FailWrites makes every save fail with this error.
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]Profile),
		hub:      newHub(),
		now:      time.Now,
	}
}

func (m *MemoryStore) SetClock(now func() time.Time) { m.now = now }

func (m *MemoryStore) SaveProfile(_ context.Context, identity string, p Profile, pairingCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	p.Identity = identity
	p.PairingCode = pairingCode
	if prev, ok := m.profiles[identity]; ok {
		p.CreatedAt = prev.CreatedAt
	} else {
		p.CreatedAt = m.now()
	}
	m.profiles[identity] = p
	return nil
}

func (m *MemoryStore) SaveEntry(_ context.Context, identity, pairingCode string, r analysis.Result) (Entry, error) {
	m.mu.Lock()
	if m.FailWrites != nil {
		err := m.FailWrites
		m.mu.Unlock()
		return Entry{}, err
	}
	e := newEntry(uuid.NewString(), identity, pairingCode, r, m.now())
	m.entries = append(m.entries, e)
	snapshot := m.entriesForLocked(pairingCode)
	m.mu.Unlock()

	m.hub.publish(pairingCode, snapshot)
	return e, nil
}

func (m *MemoryStore) QueryByPairingCode(_ context.Context, code string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.PairingCode == code {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) QueryByPhone(_ context.Context, phone string) (*Profile, error) {
	key := PhoneKey(phone)
	if key == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if PhoneKey(p.Phone) == key {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Subscribe(code string, onChange func([]Entry)) func() {
	unsubscribe := m.hub.add(code, onChange)
	m.mu.Lock()
	snapshot := m.entriesForLocked(code)
	m.mu.Unlock()
	onChange(snapshot)
	return unsubscribe
}

// Subscribers reports whether anyone listens on code.
func (m *MemoryStore) Subscribers(code string) bool { return m.hub.has(code) }

func (m *MemoryStore) Close() error { return nil }

// entriesForLocked returns entries for code, newest first. Entries saved at
// the same instant keep reverse insertion order.
func (m *MemoryStore) entriesForLocked(code string) []Entry {
	var out []Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].PairingCode == code {
			out = append(out, m.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
