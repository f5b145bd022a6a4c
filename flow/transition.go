package flow

import (
	"errors"
	"slices"

	"voicediary/capture"
	"voicediary/diary"
	"voicediary/localcache"
)

// CodeLength is the number of digits in a pairing code.
const CodeLength = 6

// Transition returns the state that follows s on ev for an onboarding of
// steps pages, and the effects the controller must run. Events not accepted
// by s return s unchanged and no effects.
func Transition(s State, ev Event, steps int) (State, []Effect) {
	if steps < 1 {
		steps = 1
	}
	next, effects, ok := step(s, ev, steps)
	if !ok {
		return s, nil
	}
	return next, append(effects, subscriptions(s.Kind, next.Kind)...)
}

func step(s State, ev Event, steps int) (State, []Effect, bool) {
	switch s.Kind {
	case RoleSelect:
		switch ev.Kind {
		case SelectElderly:
			return State{Kind: Onboarding, Step: 1}, []Effect{{Kind: EffSetRole, Role: localcache.RoleElderly}}, true
		case SelectRelative:
			return State{Kind: LinkingInput}, []Effect{{Kind: EffSetRole, Role: localcache.RoleRelative}}, true
		case SelectRecovery:
			return State{Kind: RecoveryLogin}, nil, true
		case Resume:
			return State{Kind: Dashboard}, nil, true
		}

	case Onboarding:
		switch ev.Kind {
		case Next:
			if s.Step >= steps {
				return State{Kind: Dashboard}, []Effect{{Kind: EffSaveProfile}}, true
			}
			return State{Kind: Onboarding, Step: s.Step + 1}, nil, true
		case Back:
			if s.Step <= 1 {
				return State{Kind: RoleSelect}, nil, true
			}
			return State{Kind: Onboarding, Step: s.Step - 1}, nil, true
		case UpdateProfile:
			if !isProfileField(ev.Field) {
				return s, nil, false
			}
			return State{Kind: Onboarding, Step: s.Step}, []Effect{{Kind: EffSetField, Field: ev.Field, Value: ev.Value}}, true
		}

	case Dashboard:
		if ev.Kind == StartCapture {
			return State{Kind: Recording}, []Effect{{Kind: EffStartCapture}}, true
		}

	case Recording:
		switch ev.Kind {
		case StopCapture:
			return s, []Effect{{Kind: EffStopCapture}}, true
		case CaptureStartFailed:
			return State{Kind: Dashboard, Notice: captureNotice(ev.Err)}, nil, true
		case CaptureCompleted:
			if ev.Payload == nil {
				return State{Kind: Dashboard}, nil, true
			}
			return State{Kind: Processing}, []Effect{{Kind: EffAnalyze, Payload: ev.Payload}}, true
		case Cancel:
			return State{Kind: Dashboard}, []Effect{{Kind: EffCancelCapture}}, true
		}

	case Processing:
		if ev.Kind == AnalysisSettled && ev.Result != nil {
			return State{Kind: Result}, []Effect{
				{Kind: EffStoreResult, Result: ev.Result},
				{Kind: EffSaveEntry, Result: ev.Result},
			}, true
		}

	case Result:
		if ev.Kind == Acknowledge {
			return State{Kind: Dashboard}, nil, true
		}

	case RecoveryLogin:
		return recoveryStep(s, ev)

	case LinkingInput:
		return linkingStep(s, ev)

	case LinkSuccess:
		if ev.Kind == Proceed {
			return State{Kind: RelativeDashboard}, nil, true
		}
	}
	return s, nil, false
}

func recoveryStep(s State, ev Event) (State, []Effect, bool) {
	switch ev.Kind {
	case Back:
		return State{Kind: RoleSelect}, nil, true
	case SubmitPhone:
		if s.Pending {
			return s, nil, false
		}
		key := diary.PhoneKey(ev.Phone)
		if key == "" {
			return State{Kind: RecoveryLogin, Notice: NoticeBadPhone}, nil, true
		}
		return State{Kind: RecoveryLogin, Pending: true}, []Effect{{Kind: EffLookupPhone, Phone: diary.Digits(ev.Phone)}}, true
	}
	if !s.Pending {
		return s, nil, false
	}
	switch ev.Kind {
	case PhoneMatched:
		if ev.Profile == nil {
			return s, nil, false
		}
		return State{Kind: Dashboard}, []Effect{{Kind: EffAdoptProfile, Profile: ev.Profile}}, true
	case PhoneNotFound:
		return State{Kind: RecoveryLogin, Notice: NoticePhoneMissing}, nil, true
	case LookupFailed:
		return State{Kind: RecoveryLogin, Notice: NoticeLookupError}, nil, true
	}
	return s, nil, false
}

func linkingStep(s State, ev Event) (State, []Effect, bool) {
	if ev.Kind == Back {
		return State{Kind: RoleSelect}, nil, true
	}
	if !s.Pending {
		switch ev.Kind {
		case EnterDigit:
			if ev.Digit < '0' || ev.Digit > '9' {
				return s, nil, false
			}
			digits := s.Digits + string(ev.Digit)
			if len(digits) < CodeLength {
				return State{Kind: LinkingInput, Digits: digits}, nil, true
			}
			return State{Kind: LinkingInput, Digits: digits, Pending: true},
				[]Effect{{Kind: EffLookupCode, Code: diary.FormatCode(digits)}}, true
		case DeleteDigit:
			if s.Digits == "" {
				return s, nil, false
			}
			return State{Kind: LinkingInput, Digits: s.Digits[:len(s.Digits)-1]}, nil, true
		}
		return s, nil, false
	}
	switch ev.Kind {
	case CodeMatched:
		if ev.Profile == nil {
			return s, nil, false
		}
		return State{Kind: LinkSuccess}, []Effect{{Kind: EffLink, Profile: ev.Profile, Code: diary.FormatCode(s.Digits)}}, true
	case CodeNotFound:
		return State{Kind: LinkingInput, Notice: NoticeCodeMissing}, nil, true
	case LookupFailed:
		return State{Kind: LinkingInput, Notice: NoticeLookupError}, nil, true
	}
	return s, nil, false
}

// subscriptions keeps exactly one live entry feed per dashboard visit.
func subscriptions(from, to Kind) []Effect {
	if from == to {
		return nil
	}
	var effects []Effect
	if from == Dashboard || from == RelativeDashboard {
		effects = append(effects, Effect{Kind: EffUnsubscribe})
	}
	switch to {
	case Dashboard:
		effects = append(effects, Effect{Kind: EffSubscribeOwn})
	case RelativeDashboard:
		effects = append(effects, Effect{Kind: EffSubscribeLinked})
	}
	return effects
}

// captureNotice maps a refused start to a notice. A nil error means the
// session was busy.
func captureNotice(err error) Notice {
	switch {
	case err == nil:
		return NoNotice
	case errors.Is(err, capture.ErrPermissionDenied):
		return NoticeMicDenied
	default:
		return NoticeMicMissing
	}
}

// Profile fields accepted by UpdateProfile.
const (
	FieldName        = "name"
	FieldAge         = "age"
	FieldGender      = "gender"
	FieldPhone       = "phone"
	FieldDiseases    = "diseases"
	FieldMedications = "medications"
)

// ProfileFields lists the onboarding fields in page order.
var ProfileFields = []string{FieldName, FieldAge, FieldGender, FieldPhone, FieldDiseases, FieldMedications}

func isProfileField(f string) bool { return slices.Contains(ProfileFields, f) }

func setField(p *diary.Profile, field, value string) {
	if ref := fieldRef(p, field); ref != nil {
		*ref = value
	}
}

// FieldValue returns the current value of a profile field, or "" for an
// unknown field.
func FieldValue(p diary.Profile, field string) string {
	if ref := fieldRef(&p, field); ref != nil {
		return *ref
	}
	return ""
}

func fieldRef(p *diary.Profile, field string) *string {
	switch field {
	case FieldName:
		return &p.Name
	case FieldAge:
		return &p.Age
	case FieldGender:
		return &p.Gender
	case FieldPhone:
		return &p.Phone
	case FieldDiseases:
		return &p.Diseases
	case FieldMedications:
		return &p.Medications
	}
	return nil
}
