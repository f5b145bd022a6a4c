package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	diaryFile *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	dir       string
)

// NetTimings is the subset of request timings worth keeping per analysis.
type NetTimings struct {
	DNSMs      float64
	TLSMs      float64
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absFromWd(flagPath)
	}

	// Priority 2: VOICEDIARY_LOG_PATH environment variable
	if envPath := os.Getenv("VOICEDIARY_LOG_PATH"); envPath != "" {
		return absFromWd(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absFromWd(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	diaryPath := filepath.Join(dir, "diary_log.txt")
	diaryFile, err = os.OpenFile(diaryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if diaryFile != nil {
		diaryFile.Close()
		diaryFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// AnalysisAttempt records one failed round trip to the analysis endpoint.
// status is 0 when the transport itself failed.
func AnalysisAttempt(attempt, status int, wait time.Duration, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Warn().
		Int("attempt", attempt).
		Int("status", status).
		Int64("retry_in_ms", wait.Milliseconds())
	if err != nil {
		ev = ev.Str("err", err.Error())
	}
	ev.Msg("analysis_attempt_failed")
}

func AnalysisDone(kind, severity string, fallback bool, attempts int, t NetTimings) {
	if !logReady {
		return
	}

	connStatus := "new"
	if t.ConnReused {
		connStatus = "reused"
	}

	diagLog.Info().
		Str("kind", kind).
		Str("severity", severity).
		Bool("fallback", fallback).
		Int("attempts", attempts).
		Str("conn", connStatus).
		Float64("dns_ms", t.DNSMs).
		Float64("tls_ms", t.TLSMs).
		Float64("ttfb_ms", t.TTFBMs).
		Float64("total_ms", t.TotalMs).
		Msg("analysis")
}

func CaptureStart(id, backend string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("capture", id).
		Str("backend", backend).
		Msg("capture_start")
}

func CaptureEnd(id, outcome string, bytes int, elapsed time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("capture", id).
		Str("outcome", outcome).
		Int("bytes", bytes).
		Float64("elapsed_s", elapsed.Seconds()).
		Msg("capture_end")
}

func Transition(from, event, to string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("from", from).
		Str("event", event).
		Str("to", to).
		Msg("transition")
}

// EntryText appends one clinical summary to diary_log.txt.
func EntryText(pairingCode, severity, summary string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, pairingCode, severity, summary)
	diaryFile.WriteString(line)
}

func SessionStart(backend, model string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("backend", backend).
		Str("model", model).
		Msg("session_start")
}

func SessionEnd(entries int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("entries", entries).
		Msg("session_end")
}
