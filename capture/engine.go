package capture

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"voicediary/audio"
	"voicediary/encoder"
	"voicediary/log"
	"voicediary/transcriber"
)

// DefaultActivityThreshold is the fragment RMS, on a 0..1 scale, above which
// the speaker counts as active.
const DefaultActivityThreshold = 0.02

// Engine captures PCM, reports voice activity and hands the utterance to a
// recognizer when stopped.
type Engine struct {
	ctx        audio.Context
	device     *audio.DeviceInfo
	recognizer transcriber.Recognizer
	threshold  float64

	mu  sync.Mutex
	cur *listening
}

type listening struct {
	dev    audio.CaptureDevice
	h      Handler
	sess   transcriber.Session
	ctx    context.Context
	cancel context.CancelFunc
	stop   sync.Once
	once   sync.Once
}

func NewEngine(ctx audio.Context, device *audio.DeviceInfo, r transcriber.Recognizer) *Engine {
	return &Engine{ctx: ctx, device: device, recognizer: r, threshold: DefaultActivityThreshold}
}

func (e *Engine) Kind() Kind       { return KindEngine }
func (e *Engine) MimeType() string { return "text/plain" }

// SetThreshold changes the activity level; call before Acquire.
func (e *Engine) SetThreshold(t float64) { e.threshold = t }

// Acquire opens the device before starting the recognizer session, so a
// refused device leaves nothing running.
func (e *Engine) Acquire(ctx context.Context, h Handler) error {
	dev, err := e.ctx.NewCapture(e.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return err
	}
	sess, err := transcriber.NewSession(e.recognizer)
	if err != nil {
		dev.Close()
		return err
	}
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &listening{dev: dev, h: h, sess: sess, ctx: lctx, cancel: cancel}

	e.mu.Lock()
	e.cur = l
	e.mu.Unlock()

	threshold := e.threshold
	dev.SetCallback(func(data []byte, _ uint32) {
		sess.Feed(data)
		if RMS(data) > threshold && h.Activity != nil {
			h.Activity()
		}
	})
	if err := dev.Start(); err != nil {
		e.ForceStop()
		return err
	}
	return nil
}

func (e *Engine) current() *listening {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur
}

// RequestStop closes the microphone and recognizes in the background.
func (e *Engine) RequestStop() {
	l := e.current()
	if l == nil {
		return
	}
	l.stop.Do(func() {
		l.dev.Stop()
		l.dev.ClearCallback()
		go func() {
			res, err := l.sess.Close(l.ctx)
			if err != nil {
				if l.ctx.Err() == nil && l.h.Failed != nil {
					l.h.Failed(err)
				}
				return
			}
			for _, line := range res.Metrics {
				log.Info("recognizer " + line)
			}
			if l.h.Recognized != nil {
				l.h.Recognized(res.Text)
			}
		}()
	})
}

func (e *Engine) ForceStop() {
	e.mu.Lock()
	l := e.cur
	e.cur = nil
	e.mu.Unlock()
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.cancel()
		l.dev.ClearCallback()
		l.dev.Stop()
		l.dev.Close()
		l.stop.Do(l.sess.Abort)
	})
}

// RMS returns the root mean square of little-endian 16-bit PCM, scaled to
// 0..1.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
