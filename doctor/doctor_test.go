package doctor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicediary/audio"
	"voicediary/config"
	"voicediary/diary"
	"voicediary/nettrace"
)

func TestRunReportsFailures(t *testing.T) {
	var out bytes.Buffer
	calls := 0
	code := Run(context.Background(), &out, []Check{
		{Name: "ok", Run: func(context.Context, io.Writer) error { calls++; return nil }},
		{Name: "broken", Run: func(context.Context, io.Writer) error { calls++; return errors.New("boom") }},
		{Name: "after", Run: func(context.Context, io.Writer) error { calls++; return nil }},
	})
	if code != 1 || calls != 3 {
		t.Errorf("code = %d, calls = %d", code, calls)
	}
	for _, want := range []string{"[2/3] broken", "FAIL: boom", "1 of 3 checks failed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if code := Run(context.Background(), &out, []Check{{Name: "ok", Run: func(context.Context, io.Writer) error { return nil }}}); code != 0 {
		t.Errorf("all-pass code = %d", code)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func tone(frames int) []byte {
	pcm := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		v := int16(8000)
		if i%40 < 20 {
			v = -v
		}
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(uint16(v) >> 8)
	}
	return pcm
}

func TestStandardChecks(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Chdir(t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	env := Env{
		Config: cfg,
		Audio:  audio.NewFakeContextPCM(tone(8000), false),
		Store:  diary.NewMemoryStore(),
		HTTP:   nettrace.New(5 * time.Second),
		Record: 10 * time.Millisecond,
	}
	checks := Checks(env)
	if len(checks) != 4 {
		t.Fatalf("got %d checks", len(checks))
	}

	var out bytes.Buffer
	ctx := context.Background()
	for _, c := range checks {
		err := c.Run(ctx, &out)
		switch c.Name {
		case "Analysis endpoint":
			if err == nil {
				t.Error("endpoint check passed without an API key")
			}
		default:
			if err != nil {
				t.Errorf("%s: %v", c.Name, err)
			}
		}
	}
	if !strings.Contains(out.String(), "KB of audio/flac") {
		t.Errorf("microphone output:\n%s", out.String())
	}

	cfg.Gemini.APIKey = "k"
	cfg.Gemini.Endpoint = srv.URL
	out.Reset()
	if err := env.checkEndpoint(ctx, &out); err != nil {
		t.Errorf("endpoint: %v", err)
	}
	if !strings.Contains(out.String(), "answered 404") {
		t.Errorf("endpoint output: %s", out.String())
	}
}

func TestMicrophoneSilenceTooShort(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	env := Env{
		Config: testConfig(t),
		Audio:  audio.NewFakeContextPCM(tone(400), false),
		Record: time.Millisecond,
	}
	if err := env.checkMicrophone(context.Background(), io.Discard); err == nil {
		t.Error("25 ms of audio passed the microphone check")
	}

	env.Audio = nil
	if err := env.checkMicrophone(context.Background(), io.Discard); err == nil {
		t.Error("missing audio context passed")
	}
}

func TestStoreCheck(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	env := Env{Config: testConfig(t)}
	if err := env.checkStore(context.Background(), io.Discard); err == nil {
		t.Error("nil store passed")
	}
}
