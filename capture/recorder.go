package capture

import (
	"context"
	"fmt"
	"sync"

	"voicediary/audio"
	"voicediary/encoder"
	"voicediary/log"
)

// minRecorderFrames is 100 ms of audio. Shorter captures are empty.
const minRecorderFrames = encoder.SampleRate / 10

// Recorder captures microphone PCM and streams it as FLAC fragments.
type Recorder struct {
	ctx    audio.Context
	device *audio.DeviceInfo

	mu  sync.Mutex
	cur *recording
}

type recording struct {
	dev     audio.CaptureDevice
	h       Handler
	once    sync.Once
	mu      sync.Mutex
	stream  *encoder.Stream
	enc     *encoder.FlacEncoder
	held    []byte // fragments withheld until minRecorderFrames is reached
	err     error
	stopped bool
}

// NewRecorder captures from device, or the system default when nil.
func NewRecorder(ctx audio.Context, device *audio.DeviceInfo) *Recorder {
	return &Recorder{ctx: ctx, device: device}
}

func (r *Recorder) Kind() Kind       { return KindRecorder }
func (r *Recorder) MimeType() string { return "audio/flac" }

func (r *Recorder) Acquire(_ context.Context, h Handler) error {
	enc, err := encoder.NewFlac()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	dev, err := r.ctx.NewCapture(r.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return err
	}
	rec := &recording{dev: dev, h: h, stream: encoder.NewStream(enc), enc: enc}

	r.mu.Lock()
	r.cur = rec
	r.mu.Unlock()

	dev.SetCallback(func(data []byte, _ uint32) { rec.write(data) })
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return err
	}
	return nil
}

func (rec *recording) write(pcm []byte) {
	rec.mu.Lock()
	if rec.stopped || rec.err != nil {
		rec.mu.Unlock()
		return
	}
	frag, err := rec.stream.Write(pcm)
	if err != nil {
		rec.err = err
		rec.mu.Unlock()
		return
	}
	out := rec.release(frag)
	rec.mu.Unlock()
	if len(out) > 0 && rec.h.Data != nil {
		rec.h.Data(out)
	}
}

// release returns what may be forwarded now, holding fragments back until
// enough audio exists to count as a capture.
func (rec *recording) release(frag []byte) []byte {
	rec.held = append(rec.held, frag...)
	if rec.enc.TotalFrames() < minRecorderFrames {
		return nil
	}
	out := rec.held
	rec.held = nil
	return out
}

func (r *Recorder) current() *recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

func (r *Recorder) RequestStop() {
	rec := r.current()
	if rec == nil {
		return
	}
	rec.dev.Stop()
	rec.dev.ClearCallback()

	rec.mu.Lock()
	if rec.stopped {
		rec.mu.Unlock()
		return
	}
	rec.stopped = true
	err := rec.err
	var out []byte
	if err == nil {
		var frag []byte
		frag, err = rec.stream.Flush()
		if err == nil {
			out = rec.release(frag)
		}
	}
	rec.mu.Unlock()

	if err != nil {
		if rec.h.Failed != nil {
			rec.h.Failed(fmt.Errorf("encoding capture: %w", err))
		}
		return
	}
	if len(out) > 0 && rec.h.Data != nil {
		rec.h.Data(out)
	}
	log.Infof("recorder: %.2fs captured", rec.stream.Duration())
	if rec.h.Finalized != nil {
		rec.h.Finalized()
	}
}

func (r *Recorder) ForceStop() {
	r.mu.Lock()
	rec := r.cur
	r.cur = nil
	r.mu.Unlock()
	if rec == nil {
		return
	}
	rec.once.Do(func() {
		rec.dev.ClearCallback()
		rec.dev.Stop()
		rec.dev.Close()
		rec.mu.Lock()
		rec.stopped = true
		rec.mu.Unlock()
	})
}
