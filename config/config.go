// Package config resolves settings from defaults, an optional
// voicediary.yaml, VOICEDIARY_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendRecorder = "recorder"
	BackendEngine   = "engine"
)

type Gemini struct {
	APIKey          string
	Endpoint        string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

type Analysis struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

type Capture struct {
	Backend        string
	Device         string
	SilenceTimeout time.Duration
	Language       string
	Recognizer     string
}

type Config struct {
	Gemini       Gemini
	Analysis     Analysis
	Capture      Capture
	GroqAPIKey   string
	OpenAIAPIKey string
	StorePath    string
	CachePath    string
	LogPath      string
	Steps        int

	// File is the config file that was read, or "".
	File string
}

// DefaultDir is where the config file, database and session cache live.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "voicediary")
}

// New returns a viper instance with defaults and environment bindings.
// Flags are bound by the caller with BindPFlag.
func New() *viper.Viper {
	v := viper.New()
	dir := DefaultDir()

	v.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.temperature", 0.3)
	v.SetDefault("gemini.max_output_tokens", 4096)
	v.SetDefault("analysis.max_attempts", 3)
	v.SetDefault("analysis.base_delay", time.Second)
	v.SetDefault("analysis.timeout", 60*time.Second)
	v.SetDefault("capture.backend", BackendRecorder)
	v.SetDefault("capture.device", "")
	v.SetDefault("capture.silence_timeout", 5*time.Second)
	v.SetDefault("capture.language", "th")
	v.SetDefault("capture.recognizer", "groq")
	v.SetDefault("store.path", filepath.Join(dir, "diary.sqlite"))
	v.SetDefault("cache.path", filepath.Join(dir, "session.yaml"))
	v.SetDefault("log.path", "")
	v.SetDefault("onboarding.steps", 6)

	v.SetEnvPrefix("VOICEDIARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("gemini.api_key", "VOICEDIARY_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("groq.api_key", "VOICEDIARY_GROQ_API_KEY", "GROQ_API_KEY")
	v.BindEnv("openai.api_key", "VOICEDIARY_OPENAI_API_KEY", "OPENAI_API_KEY")
	return v
}

// Load reads file, or voicediary.yaml from DefaultDir when file is empty,
// and returns the resolved configuration. A missing default file is not an
// error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("voicediary")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{
		Gemini: Gemini{
			APIKey:          v.GetString("gemini.api_key"),
			Endpoint:        v.GetString("gemini.endpoint"),
			Model:           v.GetString("gemini.model"),
			Temperature:     v.GetFloat64("gemini.temperature"),
			MaxOutputTokens: v.GetInt("gemini.max_output_tokens"),
		},
		Analysis: Analysis{
			MaxAttempts: v.GetInt("analysis.max_attempts"),
			BaseDelay:   v.GetDuration("analysis.base_delay"),
			Timeout:     v.GetDuration("analysis.timeout"),
		},
		Capture: Capture{
			Backend:        strings.ToLower(v.GetString("capture.backend")),
			Device:         v.GetString("capture.device"),
			SilenceTimeout: v.GetDuration("capture.silence_timeout"),
			Language:       v.GetString("capture.language"),
			Recognizer:     strings.ToLower(v.GetString("capture.recognizer")),
		},
		GroqAPIKey:   v.GetString("groq.api_key"),
		OpenAIAPIKey: v.GetString("openai.api_key"),
		StorePath:    v.GetString("store.path"),
		CachePath:    v.GetString("cache.path"),
		LogPath:      v.GetString("log.path"),
		Steps:        v.GetInt("onboarding.steps"),
		File:         v.ConfigFileUsed(),
	}
	return cfg, nil
}

// RecognizerKey returns the API key for the configured recognizer.
func (c *Config) RecognizerKey() string {
	if c.Capture.Recognizer == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GroqAPIKey
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Capture.Backend {
	case BackendRecorder:
	case BackendEngine:
		switch c.Capture.Recognizer {
		case "groq", "openai":
			if c.RecognizerKey() == "" {
				errs = append(errs, fmt.Errorf("capture.backend engine needs an API key for the %s recognizer", c.Capture.Recognizer))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown capture.recognizer %q", c.Capture.Recognizer))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown capture.backend %q (want recorder or engine)", c.Capture.Backend))
	}
	if c.Analysis.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("analysis.max_attempts must be at least 1, got %d", c.Analysis.MaxAttempts))
	}
	if c.Analysis.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("analysis.base_delay must not be negative"))
	}
	if c.Steps < 1 {
		errs = append(errs, fmt.Errorf("onboarding.steps must be at least 1, got %d", c.Steps))
	}
	return errors.Join(errs...)
}
