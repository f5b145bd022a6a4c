package transcriber

import (
	"context"
	"fmt"
	"sync"
)

// FakeRecognizer returns a fixed transcript and records each upload.
type FakeRecognizer struct {
	text string
	err  error

	mu    sync.Mutex
	calls int
	last  []byte
}

func NewFake(text string, err error) *FakeRecognizer {
	return &FakeRecognizer{text: text, err: err}
}

func (f *FakeRecognizer) Name() string     { return "fake" }
func (f *FakeRecognizer) Language() string { return "th" }

func (f *FakeRecognizer) Recognize(_ context.Context, audio []byte, _ string) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.last = append([]byte(nil), audio...)
	f.mu.Unlock()
	if f.err != nil {
		return nil, fmt.Errorf("fake recognizer error: %w", f.err)
	}
	return &Result{Text: f.text, Duration: 1.0}, nil
}

func (f *FakeRecognizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeRecognizer) LastAudio() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
