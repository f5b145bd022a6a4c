package transcriber

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicediary/encoder"
)

func pcm(samples int) []byte {
	b := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(i%1000))
	}
	return b
}

func TestNew(t *testing.T) {
	for _, tt := range []struct{ provider, want string }{
		{"", "groq"},
		{"groq", "groq"},
		{"openai", "openai"},
	} {
		r, err := New(tt.provider, "key", "th")
		if err != nil {
			t.Fatalf("New(%q): %v", tt.provider, err)
		}
		if r.Name() != tt.want || r.Language() != "th" {
			t.Errorf("New(%q) = %s/%s", tt.provider, r.Name(), r.Language())
		}
	}
	if _, err := New("deepgram", "key", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New("groq", "", ""); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestBatchSessionFeedAndClose(t *testing.T) {
	fake := NewFake("  ปวดท้อง  ", nil)
	s, err := NewSession(fake)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Feed(pcm(encoder.BlockSize + encoder.BlockSize/2))

	result, err := s.Close(context.Background())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if result.Text != "ปวดท้อง" || !result.HasText {
		t.Errorf("result = %+v", result)
	}
	if result.AudioLengthS <= 0 {
		t.Error("AudioLengthS should be positive")
	}
	if audio := fake.LastAudio(); len(audio) < 4 || string(audio[:4]) != "fLaC" {
		t.Error("recognizer did not receive FLAC")
	}

	s.Feed(pcm(10))
	if _, err := s.Close(context.Background()); err == nil {
		t.Error("second Close should fail")
	}
}

func TestBatchSessionNoAudio(t *testing.T) {
	fake := NewFake("hallucinated", nil)
	s, _ := NewSession(fake)
	result, err := s.Close(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.HasText || fake.Calls() != 0 {
		t.Errorf("empty session uploaded: %+v, calls=%d", result, fake.Calls())
	}
}

func TestBatchSessionRecognizerError(t *testing.T) {
	s, _ := NewSession(NewFake("", errors.New("boom")))
	s.Feed(pcm(100))
	if _, err := s.Close(context.Background()); err == nil {
		t.Error("expected recognizer error")
	}
}

func TestGroqRecognize(t *testing.T) {
	var gotAuth, gotLang, gotModel string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotLang = r.FormValue("language")
		gotModel = r.FormValue("model")
		if f, _, err := r.FormFile("file"); err == nil {
			gotFile, _ = io.ReadAll(f)
		}
		w.Header().Set("x-ratelimit-remaining-requests", "9")
		w.Header().Set("x-ratelimit-limit-requests", "10")
		io.WriteString(w, `{"text":"เวียนหัว","duration":1.5,"segments":[{"text":"เวียนหัว","no_speech_prob":0.1,"avg_logprob":-0.2},{"text":"","no_speech_prob":0.3,"avg_logprob":-0.4}]}`)
	}))
	defer srv.Close()

	g := NewGroq("gk", "th")
	g.SetURL(srv.URL)
	res, err := g.Recognize(context.Background(), []byte("fLaCdata"), "flac")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if gotAuth != "Bearer gk" || gotLang != "th" || gotModel != "whisper-large-v3-turbo" {
		t.Errorf("auth=%q lang=%q model=%q", gotAuth, gotLang, gotModel)
	}
	if string(gotFile) != "fLaCdata" {
		t.Errorf("file = %q", gotFile)
	}
	if res.Text != "เวียนหัว" || res.RateLimit != "9/10" || len(res.Segments) != 2 {
		t.Errorf("res = %+v", res)
	}
	if res.NoSpeechProb != 0.3 {
		t.Errorf("NoSpeechProb = %v, want 0.3", res.NoSpeechProb)
	}
	if d := res.AvgLogProb + 0.3; d > 1e-9 || d < -1e-9 {
		t.Errorf("AvgLogProb = %v, want -0.3", res.AvgLogProb)
	}
}

func TestRecognizeStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "bad key\n")
	}))
	defer srv.Close()

	o := NewOpenAI("k", "")
	o.SetURL(srv.URL)
	_, err := o.Recognize(context.Background(), []byte("x"), "flac")
	if err == nil || !strings.Contains(err.Error(), "openai API error 401: bad key") {
		t.Errorf("err = %v", err)
	}
}

func TestBatchSessionAbort(t *testing.T) {
	fake := NewFake("text", nil)
	s, _ := NewSession(fake)
	s.Feed(pcm(encoder.BlockSize))
	s.Abort()
	s.Abort()
	if _, err := s.Close(context.Background()); err == nil {
		t.Error("Close after Abort should fail")
	}
	if fake.Calls() != 0 {
		t.Errorf("aborted session uploaded %d times", fake.Calls())
	}
}

func TestBatchSessionManySmallFeeds(t *testing.T) {
	fake := NewFake("ok", nil)
	s, err := NewSession(fake)
	if err != nil {
		t.Fatal(err)
	}
	// Far more chunks than a device callback burst; Feed must not block.
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for range 500 {
			s.Feed(pcm(100))
		}
	}()
	select {
	case <-fed:
	case <-time.After(5 * time.Second):
		t.Fatal("Feed blocked")
	}

	result, err := s.Close(context.Background())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if want := 500 * 100 / float64(encoder.SampleRate); result.AudioLengthS != want {
		t.Errorf("AudioLengthS = %v, want %v", result.AudioLengthS, want)
	}
	if fake.Calls() != 1 {
		t.Errorf("recognizer called %d times", fake.Calls())
	}
}

func TestBatchSessionAbortStopsEncoder(t *testing.T) {
	s, err := newBatchSession(NewFake("text", nil).Recognize)
	if err != nil {
		t.Fatal(err)
	}
	s.Feed(pcm(encoder.BlockSize * 3))
	s.Abort()
	select {
	case <-s.encodeDone:
	case <-time.After(5 * time.Second):
		t.Fatal("encode goroutine still running after Abort")
	}
	s.Feed(pcm(10))
	s.Abort()
}
