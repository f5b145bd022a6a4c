package flow

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"voicediary/analysis"
	"voicediary/capture"
	"voicediary/diary"
)

func kinds(effects []Effect) []EffectKind {
	out := make([]EffectKind, len(effects))
	for i, e := range effects {
		out[i] = e.Kind
	}
	return out
}

func TestOnboardingSixSteps(t *testing.T) {
	s, _ := Transition(State{Kind: RoleSelect}, Event{Kind: SelectElderly}, 6)
	for n := 1; n < 6; n++ {
		if s != (State{Kind: Onboarding, Step: n}) {
			t.Fatalf("before next #%d: state = %s", n, s)
		}
		var effects []Effect
		s, effects = Transition(s, Event{Kind: Next}, 6)
		if len(effects) != 0 {
			t.Errorf("next #%d: effects = %v", n, kinds(effects))
		}
	}
	if s != (State{Kind: Onboarding, Step: 6}) {
		t.Fatalf("after 5 next: state = %s", s)
	}
	s, effects := Transition(s, Event{Kind: Next}, 6)
	if s.Kind != Dashboard {
		t.Fatalf("after 6 next: state = %s", s)
	}
	if got := kinds(effects); !slices.Equal(got, []EffectKind{EffSaveProfile, EffSubscribeOwn}) {
		t.Errorf("effects = %v", got)
	}
}

func TestOnboardingBack(t *testing.T) {
	s, _ := Transition(State{Kind: Onboarding, Step: 3}, Event{Kind: Back}, 6)
	if s != (State{Kind: Onboarding, Step: 2}) {
		t.Errorf("back from 3: %s", s)
	}
	s, effects := Transition(State{Kind: Onboarding, Step: 1}, Event{Kind: Back}, 6)
	if s.Kind != RoleSelect || len(effects) != 0 {
		t.Errorf("back from 1: %s %v", s, kinds(effects))
	}
}

func TestUpdateProfileOnlyKnownFields(t *testing.T) {
	s := State{Kind: Onboarding, Step: 2}
	next, effects := Transition(s, Event{Kind: UpdateProfile, Field: FieldAge, Value: "72"}, 6)
	if next != s || len(effects) != 1 || effects[0].Kind != EffSetField || effects[0].Value != "72" {
		t.Errorf("got %s %+v", next, effects)
	}
	if _, effects := Transition(s, Event{Kind: UpdateProfile, Field: "blood_type"}, 6); effects != nil {
		t.Errorf("unknown field accepted: %+v", effects)
	}
	if _, effects := Transition(State{Kind: Dashboard}, Event{Kind: UpdateProfile, Field: FieldName}, 6); effects != nil {
		t.Errorf("update outside onboarding accepted: %+v", effects)
	}
}

func TestStartCaptureWhileRecordingIsNoop(t *testing.T) {
	s, effects := Transition(State{Kind: Dashboard}, Event{Kind: StartCapture}, 6)
	if s.Kind != Recording || !slices.Equal(kinds(effects), []EffectKind{EffStartCapture, EffUnsubscribe}) {
		t.Fatalf("start: %s %v", s, kinds(effects))
	}
	again, effects := Transition(s, Event{Kind: StartCapture}, 6)
	if again != s || effects != nil {
		t.Errorf("second start: %s %v", again, kinds(effects))
	}
	if _, effects := Transition(State{Kind: Processing}, Event{Kind: StartCapture}, 6); effects != nil {
		t.Errorf("start while processing: %v", kinds(effects))
	}
}

func TestCaptureOutcomes(t *testing.T) {
	rec := State{Kind: Recording}

	s, effects := Transition(rec, Event{Kind: CaptureCompleted}, 6)
	if s != (State{Kind: Dashboard}) || slices.Contains(kinds(effects), EffAnalyze) {
		t.Errorf("empty capture: %s %v", s, kinds(effects))
	}

	p := &capture.Payload{Audio: []byte("fLaC"), MimeType: "audio/flac"}
	s, effects = Transition(rec, Event{Kind: CaptureCompleted, Payload: p}, 6)
	if s.Kind != Processing || len(effects) != 1 || effects[0].Kind != EffAnalyze || effects[0].Payload != p {
		t.Errorf("payload: %s %+v", s, effects)
	}

	s, effects = Transition(rec, Event{Kind: Cancel}, 6)
	if s.Kind != Dashboard || !slices.Equal(kinds(effects), []EffectKind{EffCancelCapture, EffSubscribeOwn}) {
		t.Errorf("cancel: %s %v", s, kinds(effects))
	}

	s, _ = Transition(rec, Event{Kind: CaptureStartFailed, Err: fmt.Errorf("open: %w", capture.ErrPermissionDenied)}, 6)
	if s != (State{Kind: Dashboard, Notice: NoticeMicDenied}) {
		t.Errorf("denied: %s %q", s, s.Notice)
	}
	s, _ = Transition(rec, Event{Kind: CaptureStartFailed, Err: capture.ErrDeviceUnavailable}, 6)
	if s.Notice != NoticeMicMissing {
		t.Errorf("unavailable: %q", s.Notice)
	}

	s, effects = Transition(rec, Event{Kind: StopCapture}, 6)
	if s != rec || !slices.Equal(kinds(effects), []EffectKind{EffStopCapture}) {
		t.Errorf("stop: %s %v", s, kinds(effects))
	}
}

func TestAnalysisSettledPersists(t *testing.T) {
	res := &analysis.Result{ClinicalSummary: "headache"}
	s, effects := Transition(State{Kind: Processing}, Event{Kind: AnalysisSettled, Result: res}, 6)
	if s.Kind != Result || !slices.Equal(kinds(effects), []EffectKind{EffStoreResult, EffSaveEntry}) {
		t.Fatalf("%s %v", s, kinds(effects))
	}
	if effects[1].Result != res {
		t.Error("entry effect does not carry the result")
	}
	s, effects = Transition(s, Event{Kind: Acknowledge}, 6)
	if s.Kind != Dashboard || !slices.Equal(kinds(effects), []EffectKind{EffSubscribeOwn}) {
		t.Errorf("ack: %s %v", s, kinds(effects))
	}
}

func TestLinkingAutoLookup(t *testing.T) {
	s := State{Kind: LinkingInput}
	var effects []Effect
	for i, d := range "12345" {
		s, effects = Transition(s, Event{Kind: EnterDigit, Digit: d}, 6)
		if len(s.Digits) != i+1 || s.Pending || effects != nil {
			t.Fatalf("digit %d: %+v %v", i, s, kinds(effects))
		}
	}
	s, effects = Transition(s, Event{Kind: EnterDigit, Digit: '6'}, 6)
	if !s.Pending || s.Digits != "123456" {
		t.Fatalf("sixth digit: %+v", s)
	}
	if len(effects) != 1 || effects[0].Kind != EffLookupCode || effects[0].Code != "123-456" {
		t.Fatalf("lookup effect = %+v", effects)
	}

	if same, effects := Transition(s, Event{Kind: EnterDigit, Digit: '7'}, 6); same != s || effects != nil {
		t.Errorf("digit while pending: %+v", same)
	}
	if same, _ := Transition(s, Event{Kind: DeleteDigit}, 6); same != s {
		t.Errorf("delete while pending: %+v", same)
	}

	matched, effects := Transition(s, Event{Kind: CodeMatched, Profile: &diary.Profile{Name: "Somchai"}}, 6)
	if matched.Kind != LinkSuccess || len(effects) != 1 || effects[0].Kind != EffLink || effects[0].Code != "123-456" {
		t.Errorf("matched: %s %+v", matched, effects)
	}

	missing, _ := Transition(s, Event{Kind: CodeNotFound}, 6)
	if missing != (State{Kind: LinkingInput, Notice: NoticeCodeMissing}) {
		t.Errorf("not found: %+v", missing)
	}
	failed, _ := Transition(s, Event{Kind: LookupFailed, Err: errors.New("offline")}, 6)
	if failed != (State{Kind: LinkingInput, Notice: NoticeLookupError}) {
		t.Errorf("failed: %+v", failed)
	}

	next, _ := Transition(missing, Event{Kind: EnterDigit, Digit: '9'}, 6)
	if next != (State{Kind: LinkingInput, Digits: "9"}) {
		t.Errorf("notice should clear on input: %+v", next)
	}
}

func TestLinkingKeypad(t *testing.T) {
	s := State{Kind: LinkingInput, Digits: "12"}
	if next, effects := Transition(s, Event{Kind: EnterDigit, Digit: 'x'}, 6); next != s || effects != nil {
		t.Errorf("non-digit accepted: %+v", next)
	}
	next, _ := Transition(s, Event{Kind: DeleteDigit}, 6)
	if next.Digits != "1" {
		t.Errorf("delete: %+v", next)
	}
	if empty, effects := Transition(State{Kind: LinkingInput}, Event{Kind: DeleteDigit}, 6); empty != (State{Kind: LinkingInput}) || effects != nil {
		t.Errorf("delete on empty: %+v", empty)
	}
	if back, _ := Transition(s, Event{Kind: Back}, 6); back.Kind != RoleSelect {
		t.Errorf("back: %s", back)
	}
	if stray, effects := Transition(s, Event{Kind: CodeMatched, Profile: &diary.Profile{}}, 6); stray != s || effects != nil {
		t.Errorf("match without lookup accepted: %+v", stray)
	}
}

func TestRecoveryLogin(t *testing.T) {
	s := State{Kind: RecoveryLogin}

	short, effects := Transition(s, Event{Kind: SubmitPhone, Phone: "081-23"}, 6)
	if short != (State{Kind: RecoveryLogin, Notice: NoticeBadPhone}) || effects != nil {
		t.Errorf("short phone: %+v %v", short, kinds(effects))
	}

	pending, effects := Transition(s, Event{Kind: SubmitPhone, Phone: "081-234-5678"}, 6)
	if !pending.Pending || len(effects) != 1 || effects[0].Kind != EffLookupPhone || effects[0].Phone != "0812345678" {
		t.Fatalf("valid phone: %+v %+v", pending, effects)
	}
	if again, effects := Transition(pending, Event{Kind: SubmitPhone, Phone: "0899999999"}, 6); again != pending || effects != nil {
		t.Errorf("resubmit while pending: %+v", again)
	}

	missing, _ := Transition(pending, Event{Kind: PhoneNotFound}, 6)
	if missing != (State{Kind: RecoveryLogin, Notice: NoticePhoneMissing}) {
		t.Errorf("not found: %+v", missing)
	}

	p := &diary.Profile{Name: "Somchai", PairingCode: "555-111"}
	home, effects := Transition(pending, Event{Kind: PhoneMatched, Profile: p}, 6)
	if home.Kind != Dashboard || !slices.Equal(kinds(effects), []EffectKind{EffAdoptProfile, EffSubscribeOwn}) {
		t.Errorf("matched: %s %v", home, kinds(effects))
	}
}

// accepted lists, per state, the events that may change it.
var accepted = map[Kind][]EventKind{
	RoleSelect:        {SelectElderly, SelectRelative, SelectRecovery, Resume},
	Onboarding:        {Next, Back, UpdateProfile},
	Dashboard:         {StartCapture},
	Recording:         {StopCapture, CaptureStartFailed, CaptureCompleted, Cancel},
	Processing:        {AnalysisSettled},
	Result:            {Acknowledge},
	RecoveryLogin:     {Back, SubmitPhone, PhoneMatched, PhoneNotFound, LookupFailed},
	LinkingInput:      {Back, EnterDigit, DeleteDigit, CodeMatched, CodeNotFound, LookupFailed},
	LinkSuccess:       {Proceed},
	RelativeDashboard: {},
}

const propSteps = 4

func drawState(t *rapid.T) State {
	s := State{Kind: Kind(rapid.IntRange(int(RoleSelect), int(RelativeDashboard)).Draw(t, "kind"))}
	switch s.Kind {
	case Onboarding:
		s.Step = rapid.IntRange(1, propSteps).Draw(t, "step")
	case LinkingInput:
		s.Digits = rapid.StringMatching(`[0-9]{0,6}`).Draw(t, "digits")
		s.Pending = len(s.Digits) == CodeLength
	case RecoveryLogin:
		s.Pending = rapid.Bool().Draw(t, "pending")
	}
	return s
}

func drawEvent(t *rapid.T) Event {
	ev := Event{
		Kind:   EventKind(rapid.IntRange(0, int(eventKindCount)-1).Draw(t, "event")),
		Field:  rapid.SampledFrom(append([]string{"bogus"}, ProfileFields...)).Draw(t, "field"),
		Value:  rapid.String().Draw(t, "value"),
		Phone:  rapid.StringMatching(`\+?[0-9 -]{0,14}`).Draw(t, "phone"),
		Digit:  rapid.Rune().Draw(t, "digit"),
		Result: &analysis.Result{},
	}
	if rapid.Bool().Draw(t, "payload") {
		ev.Payload = &capture.Payload{Transcript: "ok"}
	}
	if rapid.Bool().Draw(t, "profile") {
		ev.Profile = &diary.Profile{PairingCode: "123-456"}
	}
	return ev
}

func TestProperty_UnlistedEventsAreNoops(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s, ev := drawState(t), drawEvent(t)
		next, effects := Transition(s, ev, propSteps)
		if slices.Contains(accepted[s.Kind], ev.Kind) {
			return
		}
		if next != s || effects != nil {
			t.Fatalf("%s on %s: got %s %v", ev.Kind, s, next, kinds(effects))
		}
	})
}

func TestProperty_WalkKeepsInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := State{Kind: RoleSelect}
		subscribed := false
		for i := rapid.IntRange(1, 60).Draw(t, "len"); i > 0; i-- {
			ev := drawEvent(t)
			next, effects := Transition(s, ev, propSteps)

			if s.Kind == Recording && slices.Contains(kinds(effects), EffStartCapture) {
				t.Fatalf("capture started twice from %s", s)
			}
			for _, e := range effects {
				switch e.Kind {
				case EffSubscribeOwn, EffSubscribeLinked:
					if subscribed {
						t.Fatalf("second subscription entering %s", next)
					}
					subscribed = true
				case EffUnsubscribe:
					if !subscribed {
						t.Fatalf("unsubscribe without subscription leaving %s", s)
					}
					subscribed = false
				}
			}
			if subscribed != (next.Kind == Dashboard || next.Kind == RelativeDashboard) {
				t.Fatalf("subscribed = %v in %s", subscribed, next)
			}

			switch next.Kind {
			case Onboarding:
				if next.Step < 1 || next.Step > propSteps {
					t.Fatalf("step %d out of range", next.Step)
				}
			case LinkingInput:
				if len(next.Digits) > CodeLength || diary.Digits(next.Digits) != next.Digits {
					t.Fatalf("digits = %q", next.Digits)
				}
				if next.Pending != (len(next.Digits) == CodeLength) {
					t.Fatalf("pending = %v with %q", next.Pending, next.Digits)
				}
			case RecoveryLogin:
			default:
				if next.Pending || next.Digits != "" {
					t.Fatalf("stray lookup state in %s: %+v", next, next)
				}
			}
			s = next
		}
	})
}

func TestFieldValue(t *testing.T) {
	p := diary.Profile{Name: "Somsri", Medications: "metformin"}
	setField(&p, FieldAge, "72")
	for field, want := range map[string]string{
		FieldName:        "Somsri",
		FieldAge:         "72",
		FieldMedications: "metformin",
		FieldPhone:       "",
		"height":         "",
	} {
		if got := FieldValue(p, field); got != want {
			t.Errorf("FieldValue(%q) = %q, want %q", field, got, want)
		}
	}
}
