// Package doctor runs system diagnostics: configuration, microphone,
// analysis endpoint, diary store and clipboard.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cb "github.com/atotto/clipboard"

	"voicediary/audio"
	"voicediary/capture"
	"voicediary/config"
	"voicediary/diary"
	"voicediary/nettrace"
)

// Check is one diagnostic. A nil error is a pass.
type Check struct {
	Name string
	Run  func(ctx context.Context, w io.Writer) error
}

// Run executes checks in order and returns an exit code (0 = all pass).
// Later checks still run after a failure.
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "voicediary doctor")
	fmt.Fprintln(w, "=================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		if err := c.Run(ctx, w); err != nil {
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintln(w, "  PASS")
	}

	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintf(w, "%d of %d checks failed. See details above.\n", failed, len(checks))
		return 1
	}
	fmt.Fprintln(w, "All checks passed!")
	return 0
}

// Env is what the standard checks inspect.
type Env struct {
	Config *config.Config
	Audio  audio.Context
	Store  diary.Store
	HTTP   *nettrace.Client
	// Record is how long the microphone check listens.
	Record time.Duration
	// Clipboard enables the clipboard round trip.
	Clipboard bool
}

func Checks(env Env) []Check {
	checks := []Check{
		{Name: "Configuration", Run: func(context.Context, io.Writer) error { return env.Config.Validate() }},
		{Name: "Microphone", Run: env.checkMicrophone},
		{Name: "Analysis endpoint", Run: env.checkEndpoint},
		{Name: "Diary store", Run: env.checkStore},
	}
	if env.Clipboard {
		checks = append(checks, Check{Name: "Clipboard", Run: checkClipboard})
	}
	return checks
}

func (env Env) checkMicrophone(ctx context.Context, w io.Writer) error {
	if env.Audio == nil {
		return fmt.Errorf("no audio context: %w", capture.ErrDeviceUnavailable)
	}
	dev, err := audio.FindDevice(env.Audio, env.Config.Capture.Device)
	if err != nil {
		return err
	}
	name := "system default"
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			fmt.Fprintln(w, "  Warning: bluetooth microphones degrade to low quality while recording")
		}
	}
	fmt.Fprintf(w, "  Using device: %s\n", name)
	fmt.Fprintf(w, "  Speak for %s...\n", env.Record)

	s := capture.NewSession(capture.NewRecorder(env.Audio, dev))
	done := make(chan *capture.Payload, 1)
	if !s.Start(ctx, func(p *capture.Payload) { done <- p }) {
		return s.Err()
	}
	select {
	case <-time.After(env.Record):
	case <-ctx.Done():
		s.Cancel()
		return ctx.Err()
	}
	s.Stop()

	select {
	case p := <-done:
		if p == nil {
			return fmt.Errorf("no audio captured")
		}
		fmt.Fprintf(w, "  Recorded %.1f KB of %s in %.1fs\n", float64(len(p.Audio))/1024, p.MimeType, s.Elapsed().Seconds())
		return nil
	case <-time.After(5 * time.Second):
		s.Cancel()
		return fmt.Errorf("capture did not finish")
	}
}

func (env Env) checkEndpoint(ctx context.Context, w io.Writer) error {
	if env.Config.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is not set (GEMINI_API_KEY); reports will use the fallback result")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, env.Config.Gemini.Endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := env.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach %s: %w", env.Config.Gemini.Endpoint, err)
	}
	m := resp.Metrics
	fmt.Fprintf(w, "  %s answered %d (dns %dms, tls %dms, total %dms)\n",
		env.Config.Gemini.Endpoint, resp.StatusCode, m.DNS.Milliseconds(), m.TLS.Milliseconds(), m.Total.Milliseconds())
	return nil
}

func (env Env) checkStore(ctx context.Context, w io.Writer) error {
	if env.Store == nil {
		return fmt.Errorf("no diary store")
	}
	if _, err := env.Store.QueryByPairingCode(ctx, "000-000"); err != nil {
		return fmt.Errorf("querying diary store: %w", err)
	}
	fmt.Fprintf(w, "  %s is readable\n", env.Config.StorePath)
	return nil
}

func checkClipboard(_ context.Context, w io.Writer) error {
	if cb.Unsupported {
		return fmt.Errorf("no clipboard utility found (install xclip, xsel or wl-clipboard)")
	}
	prev, _ := cb.ReadAll()
	const sentinel = "voicediary-doctor-check"
	if err := cb.WriteAll(sentinel); err != nil {
		return fmt.Errorf("clipboard copy failed: %w", err)
	}
	got, err := cb.ReadAll()
	cb.WriteAll(prev)
	if err != nil {
		return fmt.Errorf("clipboard read failed: %w", err)
	}
	if strings.TrimSpace(got) != sentinel {
		return fmt.Errorf("clipboard returned %q, want %q", got, sentinel)
	}
	fmt.Fprintln(w, "  copy and paste work; previous clipboard restored")
	return nil
}
