package diary

import "sync"

// hub fans entry snapshots out to subscribers per pairing code.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func([]Entry)
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]func([]Entry))}
}

func (h *hub) add(code string, fn func([]Entry)) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	if h.subs[code] == nil {
		h.subs[code] = make(map[int]func([]Entry))
	}
	h.subs[code][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[code], id)
			if len(h.subs[code]) == 0 {
				delete(h.subs, code)
			}
		})
	}
}

func (h *hub) listeners(code string) []func([]Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fns := make([]func([]Entry), 0, len(h.subs[code]))
	for _, fn := range h.subs[code] {
		fns = append(fns, fn)
	}
	return fns
}

func (h *hub) has(code string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[code]) > 0
}

// publish calls every listener for code with its own copy of entries.
func (h *hub) publish(code string, entries []Entry) {
	for _, fn := range h.listeners(code) {
		fn(append([]Entry(nil), entries...))
	}
}
