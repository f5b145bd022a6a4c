// Package capture owns the lifecycle of one voice capture and the backends
// that produce it: a microphone recorder streaming FLAC, or a recognition
// engine producing text.
package capture

import (
	"context"
	"errors"

	"voicediary/analysis"
	"voicediary/audio"
)

var (
	ErrPermissionDenied  = audio.ErrPermissionDenied
	ErrDeviceUnavailable = audio.ErrDeviceUnavailable
	ErrEmptyCapture      = errors.New("nothing usable was captured")
)

type Kind string

const (
	KindRecorder Kind = "recorder"
	KindEngine   Kind = "engine"
)

// Handler receives backend events for one acquisition. A backend calls
// exactly one of Finalized, Recognized or Failed per acquisition.
type Handler struct {
	Data       func(fragment []byte)
	Activity   func()
	Finalized  func()
	Recognized func(text string)
	Failed     func(err error)
}

// Backend is an exclusively owned capture resource.
type Backend interface {
	Kind() Kind
	MimeType() string
	// Acquire opens the resource and starts delivering events to h. Errors
	// wrap ErrPermissionDenied or ErrDeviceUnavailable.
	Acquire(ctx context.Context, h Handler) error
	// RequestStop ends capture gracefully. Data still buffered is delivered
	// before RequestStop returns; the terminal event may follow later.
	RequestStop()
	// ForceStop releases the resource without a terminal event. It is
	// idempotent and may be called from inside a Handler callback.
	ForceStop()
}

// Payload is the finalized output of a capture: audio for the recorder,
// a transcript for the engine.
type Payload struct {
	Audio      []byte
	MimeType   string
	Transcript string
}

func (p *Payload) Request() analysis.Request {
	if p.Transcript != "" || p.Audio == nil {
		return analysis.NewTextRequest(p.Transcript)
	}
	return analysis.NewAudioRequest(p.Audio, p.MimeType)
}
