package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"voicediary/encoder"
)

type recognizeFunc func(ctx context.Context, audio []byte, format string) (*Result, error)

// batchSession encodes on its own goroutine. Feed only queues, so a slow
// encoder never holds up the device callback.
type batchSession struct {
	recognize  recognizeFunc
	enc        *encoder.FlacEncoder
	stream     *encoder.Stream
	wake       chan struct{}
	encodeDone chan struct{}
	encodeErr  error

	mu      sync.Mutex
	pending [][]byte
	closed  bool
}

func newBatchSession(recognize recognizeFunc) (*batchSession, error) {
	enc, err := encoder.NewFlac()
	if err != nil {
		return nil, err
	}
	bs := &batchSession{
		recognize:  recognize,
		enc:        enc,
		stream:     encoder.NewStream(enc),
		wake:       make(chan struct{}, 1),
		encodeDone: make(chan struct{}),
	}
	go bs.encodeLoop()
	return bs, nil
}

func (bs *batchSession) encodeLoop() {
	defer close(bs.encodeDone)
	for {
		bs.mu.Lock()
		batch, closed := bs.pending, bs.closed
		bs.pending = nil
		bs.mu.Unlock()

		for _, pcm := range batch {
			if _, err := bs.stream.Write(pcm); err != nil && bs.encodeErr == nil {
				bs.encodeErr = err
			}
		}
		// Nothing is queued once closed was observed.
		if closed {
			return
		}
		<-bs.wake
	}
}

func (bs *batchSession) signal() {
	select {
	case bs.wake <- struct{}{}:
	default:
	}
}

// Feed is ignored after Close or Abort.
func (bs *batchSession) Feed(pcm []byte) {
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	bs.mu.Lock()
	if bs.closed {
		bs.mu.Unlock()
		return
	}
	bs.pending = append(bs.pending, buf)
	bs.mu.Unlock()
	bs.signal()
}

func (bs *batchSession) Abort() {
	bs.mu.Lock()
	if bs.closed {
		bs.mu.Unlock()
		return
	}
	bs.closed = true
	bs.pending = nil
	bs.mu.Unlock()
	bs.signal()
}

func (bs *batchSession) Close(ctx context.Context) (SessionResult, error) {
	bs.mu.Lock()
	if bs.closed {
		bs.mu.Unlock()
		return SessionResult{}, fmt.Errorf("session already closed")
	}
	bs.closed = true
	bs.mu.Unlock()
	bs.signal()

	<-bs.encodeDone
	if bs.encodeErr != nil {
		return SessionResult{}, bs.encodeErr
	}
	if _, err := bs.stream.Flush(); err != nil {
		return SessionResult{}, err
	}

	audioS := bs.stream.Duration()
	if bs.enc.TotalFrames() == 0 {
		return SessionResult{}, nil
	}

	audio := bs.enc.Bytes()
	result, err := bs.recognize(ctx, audio, "flac")
	if err != nil {
		return SessionResult{}, err
	}

	text := strings.TrimSpace(result.Text)
	return SessionResult{
		Text:         text,
		HasText:      text != "",
		RateLimit:    result.RateLimit,
		AudioLengthS: audioS,
		Metrics:      formatMetrics(audioS, len(audio), result.Metrics, result),
	}, nil
}
