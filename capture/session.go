package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicediary/log"
)

type Status int

const (
	Idle Status = iota
	Recording
	Stopping
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Completed:
		return "completed"
	default:
		return "failed"
	}
}

const DefaultSilenceTimeout = 5 * time.Second

type Option func(*Session)

// WithSilenceTimeout sets the engine auto-stop delay. Zero disables it.
func WithSilenceTimeout(d time.Duration) Option {
	return func(s *Session) { s.silenceTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session runs one capture at a time over a Backend. Callbacks from an
// acquisition that was cancelled or superseded are ignored.
type Session struct {
	backend        Backend
	silenceTimeout time.Duration
	now            func() time.Time

	mu          sync.Mutex
	gen         uint64
	id          string
	status      Status
	acquiring   bool
	stopPending bool
	startedAt   time.Time
	elapsed     time.Duration
	buf         []byte
	err         error
	onComplete  func(*Payload)
	silence     *time.Timer
	silenceSeq  uint64
}

func NewSession(b Backend, opts ...Option) *Session {
	s := &Session{
		backend:        b,
		silenceTimeout: DefaultSilenceTimeout,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Kind() Kind { return s.backend.Kind() }

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err is the error from the last failed acquisition or backend failure.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Recording || s.status == Stopping {
		return s.now().Sub(s.startedAt)
	}
	return s.elapsed
}

// Start acquires the backend and begins a capture. It returns false when a
// capture is already running, the backend refuses, or the capture was
// cancelled while acquiring; when the backend refuses Err reports why.
// onComplete is never called when Start returns false. A Stop that arrives
// while acquiring is applied once the backend is held.
func (s *Session) Start(ctx context.Context, onComplete func(*Payload)) bool {
	s.mu.Lock()
	if s.status == Recording || s.status == Stopping {
		s.mu.Unlock()
		return false
	}
	s.gen++
	gen := s.gen
	s.id = uuid.NewString()
	s.status = Recording
	s.acquiring = true
	s.stopPending = false
	s.startedAt = s.now()
	s.elapsed = 0
	s.buf = nil
	s.err = nil
	s.onComplete = onComplete
	id := s.id
	s.mu.Unlock()

	if err := s.backend.Acquire(ctx, s.handler(gen)); err != nil {
		s.backend.ForceStop()
		s.mu.Lock()
		if s.gen == gen {
			s.status = Failed
			s.acquiring = false
			s.err = err
			s.onComplete = nil
		}
		s.mu.Unlock()
		log.Warnf("capture %s: acquire failed: %v", id, err)
		log.CaptureEnd(id, "acquire_failed", 0, 0)
		return false
	}

	s.mu.Lock()
	if s.gen != gen {
		// Cancelled while acquiring. Release unless a newer capture owns
		// the backend.
		release := s.status != Recording && s.status != Stopping
		s.mu.Unlock()
		if release {
			s.backend.ForceStop()
		}
		return false
	}
	s.acquiring = false
	stop := s.stopPending
	if !stop {
		s.armSilenceLocked(gen)
	}
	s.mu.Unlock()
	log.CaptureStart(id, string(s.backend.Kind()))
	if stop {
		s.requestStop(gen)
	}
	return true
}

// Stop requests a graceful end. Completion arrives through onComplete.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.status != Recording || s.stopPending {
		s.mu.Unlock()
		return
	}
	s.stopPending = true
	s.stopSilenceLocked()
	gen, deferred := s.gen, s.acquiring
	s.mu.Unlock()

	// Start issues the request once the backend is held.
	if !deferred {
		s.requestStop(gen)
	}
}

func (s *Session) requestStop(gen uint64) {
	// Trailing fragments arrive while still Recording.
	s.backend.RequestStop()

	s.mu.Lock()
	if s.gen == gen && s.status == Recording {
		s.status = Stopping
	}
	s.mu.Unlock()
}

// Cancel ends the capture without calling onComplete. It is idempotent.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.status != Recording && s.status != Stopping {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.stopSilenceLocked()
	s.status = Idle
	s.acquiring = false
	s.elapsed = s.now().Sub(s.startedAt)
	s.buf = nil
	s.onComplete = nil
	id, elapsed := s.id, s.elapsed
	s.mu.Unlock()

	s.backend.ForceStop()
	log.CaptureEnd(id, "cancelled", 0, elapsed)
}

func (s *Session) handler(gen uint64) Handler {
	return Handler{
		Data: func(fragment []byte) {
			s.mu.Lock()
			if s.gen == gen && s.status == Recording {
				s.buf = append(s.buf, fragment...)
			}
			s.mu.Unlock()
		},
		Activity: func() {
			s.mu.Lock()
			if s.gen == gen && s.status == Recording && !s.stopPending {
				s.armSilenceLocked(gen)
			}
			s.mu.Unlock()
		},
		Finalized:  func() { s.complete(gen, "", nil) },
		Recognized: func(text string) { s.complete(gen, text, nil) },
		Failed:     func(err error) { s.complete(gen, "", err) },
	}
}

// complete runs once per acquisition. The backend is released before
// onComplete is called.
func (s *Session) complete(gen uint64, text string, err error) {
	s.mu.Lock()
	if s.gen != gen || (s.status != Recording && s.status != Stopping) {
		s.mu.Unlock()
		return
	}
	s.stopSilenceLocked()
	s.elapsed = s.now().Sub(s.startedAt)

	var payload *Payload
	outcome := "completed"
	switch {
	case err != nil:
		s.status = Failed
		s.err = err
		outcome = "failed"
	case s.backend.Kind() == KindEngine && text != "":
		s.status = Completed
		payload = &Payload{Transcript: text}
	case s.backend.Kind() == KindRecorder && len(s.buf) > 0:
		s.status = Completed
		payload = &Payload{Audio: s.buf, MimeType: s.backend.MimeType()}
	default:
		s.status = Completed
		s.err = ErrEmptyCapture
		outcome = "empty"
	}
	s.buf = nil
	cb := s.onComplete
	s.onComplete = nil
	id, elapsed := s.id, s.elapsed
	s.mu.Unlock()

	s.backend.ForceStop()

	size := 0
	if payload != nil {
		size = len(payload.Audio) + len(payload.Transcript)
	}
	if err != nil {
		log.Warnf("capture %s: backend failed: %v", id, err)
	}
	log.CaptureEnd(id, outcome, size, elapsed)
	if cb != nil {
		cb(payload)
	}
}

func (s *Session) armSilenceLocked(gen uint64) {
	if s.backend.Kind() != KindEngine || s.silenceTimeout <= 0 {
		return
	}
	s.stopSilenceLocked()
	s.silenceSeq++
	seq := s.silenceSeq
	s.silence = time.AfterFunc(s.silenceTimeout, func() {
		s.mu.Lock()
		fire := s.gen == gen && s.silenceSeq == seq && s.status == Recording && !s.stopPending
		s.mu.Unlock()
		if fire {
			log.Info("silence timeout, stopping capture")
			s.Stop()
		}
	})
}

func (s *Session) stopSilenceLocked() {
	s.silenceSeq++
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
}
