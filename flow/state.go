// Package flow sequences the diary screens as an explicit state machine.
// Transition is pure; Controller executes its effects and feeds the
// outcomes back as events.
package flow

import (
	"fmt"

	"voicediary/analysis"
	"voicediary/capture"
	"voicediary/diary"
	"voicediary/localcache"
)

type Kind int

const (
	RoleSelect Kind = iota
	Onboarding
	Dashboard
	Recording
	Processing
	Result
	RecoveryLogin
	LinkingInput
	LinkSuccess
	RelativeDashboard
)

var kindNames = [...]string{
	RoleSelect:        "RoleSelect",
	Onboarding:        "Onboarding",
	Dashboard:         "Dashboard",
	Recording:         "Recording",
	Processing:        "Processing",
	Result:            "Result",
	RecoveryLogin:     "RecoveryLogin",
	LinkingInput:      "LinkingInput",
	LinkSuccess:       "LinkSuccess",
	RelativeDashboard: "RelativeDashboard",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Notice is a user-visible message attached to a state by the transition
// that produced it.
type Notice string

const (
	NoNotice           Notice = ""
	NoticePhoneMissing Notice = "phone_not_found"
	NoticeBadPhone     Notice = "invalid_phone"
	NoticeCodeMissing  Notice = "code_not_found"
	NoticeLookupError  Notice = "lookup_failed"
	NoticeMicDenied    Notice = "microphone_denied"
	NoticeMicMissing   Notice = "microphone_unavailable"
)

// State is the single active screen. Step is meaningful for Onboarding,
// Digits for LinkingInput, Pending for the two lookup screens.
type State struct {
	Kind    Kind
	Step    int
	Digits  string
	Pending bool
	Notice  Notice
}

func (s State) String() string {
	switch s.Kind {
	case Onboarding:
		return fmt.Sprintf("Onboarding(%d)", s.Step)
	case LinkingInput:
		return fmt.Sprintf("LinkingInput(%q)", s.Digits)
	default:
		return s.Kind.String()
	}
}

type EventKind int

const (
	SelectElderly EventKind = iota
	SelectRelative
	SelectRecovery
	Resume
	Next
	Back
	UpdateProfile
	StartCapture
	StopCapture
	CaptureStartFailed
	CaptureCompleted
	Cancel
	AnalysisSettled
	Acknowledge
	SubmitPhone
	PhoneMatched
	PhoneNotFound
	EnterDigit
	DeleteDigit
	CodeMatched
	CodeNotFound
	LookupFailed
	Proceed
	eventKindCount
)

var eventNames = [...]string{
	SelectElderly:      "SelectElderly",
	SelectRelative:     "SelectRelative",
	SelectRecovery:     "SelectRecovery",
	Resume:             "Resume",
	Next:               "Next",
	Back:               "Back",
	UpdateProfile:      "UpdateProfile",
	StartCapture:       "StartCapture",
	StopCapture:        "StopCapture",
	CaptureStartFailed: "CaptureStartFailed",
	CaptureCompleted:   "CaptureCompleted",
	Cancel:             "Cancel",
	AnalysisSettled:    "AnalysisSettled",
	Acknowledge:        "Acknowledge",
	SubmitPhone:        "SubmitPhone",
	PhoneMatched:       "PhoneMatched",
	PhoneNotFound:      "PhoneNotFound",
	EnterDigit:         "EnterDigit",
	DeleteDigit:        "DeleteDigit",
	CodeMatched:        "CodeMatched",
	CodeNotFound:       "CodeNotFound",
	LookupFailed:       "LookupFailed",
	Proceed:            "Proceed",
}

func (k EventKind) String() string {
	if k >= 0 && k < eventKindCount {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is an input to Transition. Only the fields relevant to Kind are
// read.
type Event struct {
	Kind EventKind

	Field, Value string           // UpdateProfile
	Phone        string           // SubmitPhone
	Digit        rune             // EnterDigit
	Payload      *capture.Payload // CaptureCompleted; nil when nothing was captured
	Err          error            // CaptureStartFailed, LookupFailed
	Result       *analysis.Result // AnalysisSettled
	Profile      *diary.Profile   // PhoneMatched, CodeMatched

	// seq ties asynchronous outcomes to the effect that produced them.
	seq uint64
}

type EffectKind int

const (
	EffSetRole EffectKind = iota
	EffSetField
	EffSaveProfile
	EffStartCapture
	EffStopCapture
	EffCancelCapture
	EffAnalyze
	EffStoreResult
	EffSaveEntry
	EffLookupPhone
	EffLookupCode
	EffAdoptProfile
	EffLink
	EffSubscribeOwn
	EffSubscribeLinked
	EffUnsubscribe
)

// Effect is work requested by a transition.
type Effect struct {
	Kind EffectKind

	Role         localcache.Role
	Field, Value string
	Payload      *capture.Payload
	Result       *analysis.Result
	Phone        string
	Code         string
	Profile      *diary.Profile
}
