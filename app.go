package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"voicediary/analysis"
	"voicediary/audio"
	"voicediary/capture"
	"voicediary/chime"
	"voicediary/config"
	"voicediary/diary"
	"voicediary/flow"
	"voicediary/localcache"
	"voicediary/log"
	"voicediary/nettrace"
	"voicediary/transcriber"
)

// memoryStorePath selects the in-process diary store.
const memoryStorePath = ":memory:"

type appOptions struct {
	// fakeAudio replaces the microphone with a WAV file.
	fakeAudio string
	realtime  bool
}

// app wires configuration into a running flow controller.
type app struct {
	cfg     *config.Config
	ctrl    *flow.Controller
	store   diary.Store
	cache   *localcache.Cache
	audio   audio.Context
	client  *analysis.Client
	reports atomic.Int64
}

func newAnalysisClient(cfg *config.Config) *analysis.Client {
	return analysis.NewClient(analysis.Config{
		APIKey:          cfg.Gemini.APIKey,
		Endpoint:        cfg.Gemini.Endpoint,
		Model:           cfg.Gemini.Model,
		Temperature:     cfg.Gemini.Temperature,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		Policy:          analysis.ExponentialPolicy(cfg.Analysis.MaxAttempts, cfg.Analysis.BaseDelay),
	}, nettrace.New(cfg.Analysis.Timeout))
}

func openStore(path string) (diary.Store, error) {
	if path == "" || path == memoryStorePath {
		return diary.NewMemoryStore(), nil
	}
	return diary.OpenSQLite(path)
}

func openAudio(opts appOptions) (audio.Context, error) {
	if opts.fakeAudio != "" {
		return audio.NewFakeContext(opts.fakeAudio, opts.realtime)
	}
	return audio.NewContext()
}

func newBackend(cfg *config.Config, actx audio.Context, dev *audio.DeviceInfo) (capture.Backend, error) {
	if cfg.Capture.Backend != config.BackendEngine {
		return capture.NewRecorder(actx, dev), nil
	}
	rec, err := transcriber.New(cfg.Capture.Recognizer, cfg.RecognizerKey(), cfg.Capture.Language)
	if err != nil {
		return nil, err
	}
	return capture.NewEngine(actx, dev, rec), nil
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, client: newAnalysisClient(cfg)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.store, err = openStore(cfg.StorePath); err != nil {
		return nil, fmt.Errorf("opening diary store: %w", err)
	}

	a.cache, err = localcache.Open(cfg.CachePath)
	if err != nil {
		log.Warnf("session cache: %v", err)
		err = nil
	}
	deviceID := a.cache.DeviceID()
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := a.cache.SetDeviceID(deviceID); err != nil {
			log.Warnf("session cache: %v", err)
		}
	}

	if a.audio, err = openAudio(opts); err != nil {
		return nil, fmt.Errorf("initializing audio: %w", err)
	}
	dev, err := audio.FindDevice(a.audio, cfg.Capture.Device)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(cfg, a.audio, dev)
	if err != nil {
		return nil, err
	}
	session := capture.NewSession(backend, capture.WithSilenceTimeout(cfg.Capture.SilenceTimeout))

	a.ctrl = flow.NewController(ctx, restoreSession(a.cache, deviceID), flow.Deps{
		Analyzer: a.client,
		Capture:  session,
		Store:    a.store,
		Cache:    a.cache,
		Steps:    cfg.Steps,
	})
	a.ctrl.OnChange(a.cues())
	return a, nil
}

// restoreSession rebuilds the session context from the local cache.
func restoreSession(c *localcache.Cache, deviceID string) flow.SessionContext {
	sc := flow.SessionContext{
		Identity:    deviceID,
		Role:        c.Role(),
		PairingCode: c.PairingCode(),
	}
	if p := c.Profile(); p != nil {
		sc.Profile = *p
		if p.Identity != "" {
			sc.Identity = p.Identity
		}
	}
	return sc
}

// cues plays a chime on capture start and stop, and an alert for results
// that need attention. It also counts reports for the session log.
func (a *app) cues() func(flow.State) {
	var last atomic.Int64
	last.Store(int64(flow.RoleSelect))
	return func(s flow.State) {
		prev := flow.Kind(last.Swap(int64(s.Kind)))
		if prev == s.Kind {
			return
		}
		switch {
		case s.Kind == flow.Recording:
			chime.Play(chime.Start)
		case prev == flow.Recording && s.Kind == flow.Processing:
			chime.Play(chime.Stop)
		case prev == flow.Recording && s.Notice != flow.NoNotice:
			chime.Play(chime.Error)
		case s.Kind == flow.Result:
			a.reports.Add(1)
			if r := a.ctrl.Context().LastResult; r != nil && r.Severity.Level == analysis.SeverityHigh {
				chime.Play(chime.Attention)
			}
		}
	}
}

func (a *app) Close() error {
	var errs []error
	if a.ctrl != nil {
		a.ctrl.Close()
	}
	if a.audio != nil {
		a.audio.Close()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
