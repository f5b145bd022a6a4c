package capture

import (
	"context"
	"sync"
)

// FakeBackend is a scriptable Backend. Fragments are delivered from
// Acquire; RequestStop emits Text (engine) or Finalized (recorder).
type FakeBackend struct {
	kind Kind

	mu         sync.Mutex
	AcquireErr error
	Fragments  [][]byte
	Text       string
	FailErr    error
	// Async delivers the terminal event from a goroutine, after Gate is
	// closed when Gate is set.
	Async bool
	Gate  chan struct{}
	// AcquireGate, when set, holds Acquire until it is closed. Entered
	// receives a value once Acquire is waiting on it.
	AcquireGate chan struct{}
	Entered     chan struct{}

	h           Handler
	acquired    bool
	acquires    int
	forceStops  int
	stopped     int
	outstanding bool
}

func NewFakeBackend(kind Kind) *FakeBackend {
	return &FakeBackend{kind: kind}
}

func (f *FakeBackend) Kind() Kind { return f.kind }

func (f *FakeBackend) MimeType() string {
	if f.kind == KindEngine {
		return "text/plain"
	}
	return "audio/flac"
}

func (f *FakeBackend) Acquire(_ context.Context, h Handler) error {
	f.mu.Lock()
	f.acquires++
	gate, entered := f.AcquireGate, f.Entered
	f.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	f.mu.Lock()
	if f.AcquireErr != nil {
		err := f.AcquireErr
		f.mu.Unlock()
		return err
	}
	f.h = h
	f.acquired = true
	f.outstanding = true
	frags := f.Fragments
	f.mu.Unlock()

	for _, frag := range frags {
		if h.Data != nil {
			h.Data(frag)
		}
	}
	return nil
}

// Activity simulates detected speech.
func (f *FakeBackend) Activity() {
	f.mu.Lock()
	h := f.h
	f.mu.Unlock()
	if h.Activity != nil {
		h.Activity()
	}
}

// Emit delivers a fragment as if it arrived from the device.
func (f *FakeBackend) Emit(frag []byte) {
	f.mu.Lock()
	h := f.h
	f.mu.Unlock()
	if h.Data != nil {
		h.Data(frag)
	}
}

func (f *FakeBackend) RequestStop() {
	f.mu.Lock()
	f.stopped++
	if !f.outstanding {
		f.mu.Unlock()
		return
	}
	f.outstanding = false
	h, text, failErr, async, gate := f.h, f.Text, f.FailErr, f.Async, f.Gate
	f.mu.Unlock()

	deliver := func() {
		if gate != nil {
			<-gate
		}
		switch {
		case failErr != nil:
			h.Failed(failErr)
		case f.kind == KindEngine:
			h.Recognized(text)
		default:
			h.Finalized()
		}
	}
	if async {
		go deliver()
		return
	}
	deliver()
}

func (f *FakeBackend) ForceStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceStops++
	f.acquired = false
	f.outstanding = false
}

// Held reports whether the resource is currently acquired.
func (f *FakeBackend) Held() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired
}

func (f *FakeBackend) Acquires() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires
}

func (f *FakeBackend) ForceStops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forceStops
}

// Configure replaces the script under the lock.
func (f *FakeBackend) Configure(fn func(f *FakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
