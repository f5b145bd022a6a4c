package flow

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicediary/analysis"
	"voicediary/capture"
	"voicediary/diary"
	"voicediary/localcache"
	"voicediary/log"
)

// Analyzer turns a capture into a result. *analysis.Client implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) analysis.Result
}

// Capturer is the part of *capture.Session the controller drives.
type Capturer interface {
	Start(ctx context.Context, onComplete func(*capture.Payload)) bool
	Stop()
	Cancel()
	Err() error
	Elapsed() time.Duration
}

// Cache remembers the session across runs. *localcache.Cache implements it.
type Cache interface {
	SetRole(localcache.Role) error
	SetPairingCode(code string) error
	SetProfile(p *diary.Profile) error
}

// SessionContext is who is using the app and what they are linked to. It
// changes only through controller transitions.
type SessionContext struct {
	Identity      string
	Role          localcache.Role
	PairingCode   string
	Profile       diary.Profile
	LinkedProfile *diary.Profile
	LinkedCode    string
	LastResult    *analysis.Result
}

// CanResume reports whether an elderly user can skip onboarding.
func (sc SessionContext) CanResume() bool {
	return sc.Role == localcache.RoleElderly && sc.PairingCode != "" && sc.Profile.Name != ""
}

func (sc SessionContext) clone() SessionContext {
	if sc.LinkedProfile != nil {
		p := *sc.LinkedProfile
		sc.LinkedProfile = &p
	}
	if sc.LastResult != nil {
		r := *sc.LastResult
		sc.LastResult = &r
	}
	return sc
}

type Deps struct {
	Analyzer Analyzer
	Capture  Capturer
	Store    diary.Store
	// Cache is optional.
	Cache Cache
	// Steps is the number of onboarding pages.
	Steps int
	// Spawn runs asynchronous effects. It defaults to a new goroutine.
	Spawn func(func())
}

// Controller owns the flow state and the session context. Every method is
// safe for concurrent use; outcomes of asynchronous work are fed back
// through Dispatch, and outcomes that were superseded are dropped.
type Controller struct {
	ctx  context.Context
	deps Deps

	mu          sync.Mutex
	state       State
	sc          SessionContext
	captureSeq  uint64
	lookupSeq   uint64
	subSeq      uint64
	unsubscribe func()
	entries     []diary.Entry
	listeners   []func(State)
}

func NewController(ctx context.Context, sc SessionContext, deps Deps) *Controller {
	if deps.Steps < 1 {
		deps.Steps = 1
	}
	if deps.Spawn == nil {
		deps.Spawn = func(f func()) { go f() }
	}
	if sc.Identity == "" {
		sc.Identity = uuid.NewString()
	}
	return &Controller{
		ctx:   ctx,
		deps:  deps,
		state: State{Kind: RoleSelect},
		sc:    sc.clone(),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Context returns a copy of the session context.
func (c *Controller) Context() SessionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sc.clone()
}

// Entries is the live feed for the current dashboard, newest first.
func (c *Controller) Entries() []diary.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.entries)
}

// Elapsed is the running capture time.
func (c *Controller) Elapsed() time.Duration { return c.deps.Capture.Elapsed() }

// Steps is the number of onboarding pages.
func (c *Controller) Steps() int { return c.deps.Steps }

// OnChange registers fn to be called after every state change and every
// entry feed update.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Dispatch applies ev and starts the resulting effects. It returns the state
// reached by ev itself; effects may move it further before Dispatch
// returns when Spawn is synchronous.
func (c *Controller) Dispatch(ev Event) State {
	c.mu.Lock()
	from := c.state
	if c.staleLocked(ev) || (ev.Kind == Resume && !c.sc.CanResume()) {
		c.mu.Unlock()
		return from
	}
	next, effects := Transition(from, ev, c.deps.Steps)
	if next == from && len(effects) == 0 {
		c.mu.Unlock()
		return from
	}
	c.state = next
	var jobs []func()
	for _, e := range effects {
		if job := c.applyLocked(e); job != nil {
			jobs = append(jobs, job)
		}
	}
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	if next != from {
		log.Transition(from.String(), ev.Kind.String(), next.String())
		for _, fn := range listeners {
			fn(next)
		}
	}
	for _, job := range jobs {
		c.deps.Spawn(job)
	}
	return next
}

// Close releases the entry feed and any running capture.
func (c *Controller) Close() {
	c.mu.Lock()
	c.subSeq++
	c.captureSeq++
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	c.deps.Capture.Cancel()
}

func (c *Controller) staleLocked(ev Event) bool {
	switch ev.Kind {
	case CaptureCompleted, CaptureStartFailed, AnalysisSettled:
		return ev.seq != c.captureSeq
	case PhoneMatched, PhoneNotFound, CodeMatched, CodeNotFound, LookupFailed:
		return ev.seq != c.lookupSeq
	}
	return false
}

// applyLocked updates the session context for e and returns the
// asynchronous part of e, if any.
func (c *Controller) applyLocked(e Effect) func() {
	switch e.Kind {
	case EffSetRole:
		c.sc.Role = e.Role

	case EffSetField:
		setField(&c.sc.Profile, e.Field, e.Value)

	case EffSaveProfile:
		if c.sc.PairingCode == "" {
			c.sc.PairingCode = diary.NewPairingCode()
		}
		c.sc.Profile.Identity = c.sc.Identity
		c.sc.Profile.PairingCode = c.sc.PairingCode
		identity, code, p := c.sc.Identity, c.sc.PairingCode, c.sc.Profile
		return func() {
			if err := c.deps.Store.SaveProfile(c.ctx, identity, p, code); err != nil {
				log.Warnf("saving profile: %v", err)
				return
			}
			c.remember(code, &p)
		}

	case EffStartCapture:
		c.captureSeq++
		seq := c.captureSeq
		return func() { c.startCapture(seq) }

	case EffStopCapture:
		return c.deps.Capture.Stop

	case EffCancelCapture:
		c.captureSeq++
		return c.deps.Capture.Cancel

	case EffAnalyze:
		seq, payload := c.captureSeq, e.Payload
		return func() {
			res := c.deps.Analyzer.Analyze(c.ctx, payload.Request())
			c.Dispatch(Event{Kind: AnalysisSettled, Result: &res, seq: seq})
		}

	case EffStoreResult:
		r := *e.Result
		c.sc.LastResult = &r

	case EffSaveEntry:
		identity, code, r := c.sc.Identity, c.sc.PairingCode, *e.Result
		return func() {
			entry, err := c.deps.Store.SaveEntry(c.ctx, identity, code, r)
			if err != nil {
				log.Warnf("saving diary entry: %v", err)
				return
			}
			log.EntryText(code, string(entry.Severity), entry.ClinicalSummary)
		}

	case EffLookupPhone:
		c.lookupSeq++
		seq, phone := c.lookupSeq, e.Phone
		return func() {
			p, err := c.deps.Store.QueryByPhone(c.ctx, phone)
			c.Dispatch(lookupOutcome(p, err, PhoneMatched, PhoneNotFound, seq))
		}

	case EffLookupCode:
		c.lookupSeq++
		seq, code := c.lookupSeq, e.Code
		return func() {
			p, err := c.deps.Store.QueryByPairingCode(c.ctx, code)
			c.Dispatch(lookupOutcome(p, err, CodeMatched, CodeNotFound, seq))
		}

	case EffAdoptProfile:
		p := *e.Profile
		c.sc.Profile = p
		c.sc.PairingCode = p.PairingCode
		c.sc.Role = localcache.RoleElderly
		if p.Identity != "" {
			c.sc.Identity = p.Identity
		}
		return func() { c.remember(p.PairingCode, &p) }

	case EffLink:
		p := *e.Profile
		c.sc.LinkedProfile = &p
		c.sc.LinkedCode = e.Code

	case EffSubscribeOwn:
		return c.subscribeLocked(c.sc.PairingCode)

	case EffSubscribeLinked:
		return c.subscribeLocked(c.sc.LinkedCode)

	case EffUnsubscribe:
		c.subSeq++
		c.entries = nil
		unsub := c.unsubscribe
		c.unsubscribe = nil
		return unsub
	}
	return nil
}

func lookupOutcome(p *diary.Profile, err error, matched, missing EventKind, seq uint64) Event {
	switch {
	case err != nil:
		log.Warnf("diary lookup: %v", err)
		return Event{Kind: LookupFailed, Err: err, seq: seq}
	case p == nil:
		return Event{Kind: missing, seq: seq}
	default:
		return Event{Kind: matched, Profile: p, seq: seq}
	}
}

func (c *Controller) startCapture(seq uint64) {
	ok := c.deps.Capture.Start(c.ctx, func(p *capture.Payload) {
		c.Dispatch(Event{Kind: CaptureCompleted, Payload: p, seq: seq})
	})
	if !ok {
		c.Dispatch(Event{Kind: CaptureStartFailed, Err: c.deps.Capture.Err(), seq: seq})
		return
	}
	c.mu.Lock()
	superseded := c.captureSeq != seq
	c.mu.Unlock()
	if superseded {
		c.deps.Capture.Cancel()
	}
}

func (c *Controller) subscribeLocked(code string) func() {
	c.subSeq++
	seq := c.subSeq
	return func() {
		unsub := c.deps.Store.Subscribe(code, func(entries []diary.Entry) {
			c.mu.Lock()
			if c.subSeq != seq {
				c.mu.Unlock()
				return
			}
			c.entries = slices.Clone(entries)
			state := c.state
			listeners := slices.Clone(c.listeners)
			c.mu.Unlock()
			for _, fn := range listeners {
				fn(state)
			}
		})
		c.mu.Lock()
		if c.subSeq == seq {
			c.unsubscribe, unsub = unsub, nil
		}
		c.mu.Unlock()
		if unsub != nil {
			unsub()
		}
	}
}

// remember writes the elderly session to the local cache after the store
// accepted it.
func (c *Controller) remember(code string, p *diary.Profile) {
	if c.deps.Cache == nil {
		return
	}
	err := errors.Join(
		c.deps.Cache.SetRole(localcache.RoleElderly),
		c.deps.Cache.SetPairingCode(code),
		c.deps.Cache.SetProfile(p),
	)
	if err != nil {
		log.Warnf("caching session: %v", err)
	}
}
