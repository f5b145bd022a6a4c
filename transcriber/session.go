package transcriber

import (
	"context"
	"fmt"

	"voicediary/nettrace"
)

// Session accumulates one utterance and recognizes it when closed.
type Session interface {
	Feed(pcm []byte)
	Close(ctx context.Context) (SessionResult, error)
	// Abort discards the utterance without uploading it.
	Abort()
}

type SessionResult struct {
	Text         string
	HasText      bool
	RateLimit    string
	AudioLengthS float64
	Metrics      []string // pre-formatted lines for the diagnostics log
}

// NewSession starts a FLAC-encoding session that uploads to r on Close.
func NewSession(r Recognizer) (Session, error) {
	if w, ok := r.(interface{ Warm() }); ok {
		go w.Warm()
	}
	return newBatchSession(r.Recognize)
}

func formatMetrics(audioS float64, encodedBytes int, m *nettrace.Metrics, r *Result) []string {
	if m == nil {
		m = &nettrace.Metrics{}
	}
	reused := ""
	if m.ConnReused {
		reused = " (reused)"
	}
	lines := []string{
		fmt.Sprintf("audio:      %.1fs | %.1f KB flac", audioS, float64(encodedBytes)/1024),
		fmt.Sprintf("conn_wait:  %dms%s", m.ConnWait.Milliseconds(), reused),
		fmt.Sprintf("dns:        %dms", m.DNS.Milliseconds()),
		fmt.Sprintf("tls:        %dms", m.TLS.Milliseconds()),
		fmt.Sprintf("ttfb:       %dms", m.TTFB.Milliseconds()),
		fmt.Sprintf("total:      %dms", m.Sum().Milliseconds()),
	}
	if r.Duration > 0 {
		lines = append(lines, fmt.Sprintf("api_dur:    %.2fs", r.Duration))
	}
	return lines
}
