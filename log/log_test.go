package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/diarylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/diarylog" {
		t.Errorf("got %q, want /tmp/diarylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("VOICEDIARY_LOG_PATH", "/tmp/voicediary-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/voicediary-env-log" {
		t.Errorf("got %q, want /tmp/voicediary-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("VOICEDIARY_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "voicediary") {
		t.Errorf("default dir %q should mention voicediary", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "diary_log.txt"} {
		path := filepath.Join(tmp, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestEntryText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	EntryText("123-456", "moderate", "headache since morning")

	data, err := os.ReadFile(filepath.Join(tmp, "diary_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, want := range []string{"123-456", "moderate", "headache since morning"} {
		if !strings.Contains(line, want) {
			t.Errorf("diary_log.txt missing %q, got: %q", want, line)
		}
	}
	if strings.Count(line, "\t") != 4 {
		t.Errorf("expected 5 tab-separated columns, got: %q", line)
	}
}

func TestStructuredEvents(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	AnalysisAttempt(1, 503, time.Second, errors.New("HTTP 503"))
	AnalysisDone("audio", "Medium", false, 2, NetTimings{TotalMs: 120, ConnReused: true})
	Transition("Dashboard", "StartCapture", "Recording")
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"analysis_attempt_failed", "status=503", "conn=reused", "to=Recording"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, out)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	SetDir(t.TempDir())
	t.Cleanup(func() { SetDir("") })

	// None of these may panic or create files before Init.
	Info("x")
	Warnf("y %d", 1)
	EntryText("c", "s", "t")
	CaptureEnd("id", "empty", 0, 0)

	entries, err := os.ReadDir(Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no files before Init, got %d", len(entries))
	}
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
