// Package diary stores elder profiles and analyzed diary entries, and
// notifies subscribers when entries for a pairing code change.
package diary

import (
	"context"
	"time"

	"voicediary/analysis"
)

// Profile is the onboarding record of an elderly user.
type Profile struct {
	Identity    string    `json:"identity" yaml:"identity"`
	Name        string    `json:"name" yaml:"name"`
	Age         string    `json:"age" yaml:"age"`
	Gender      string    `json:"gender" yaml:"gender"`
	Phone       string    `json:"phone" yaml:"phone"`
	Diseases    string    `json:"diseases" yaml:"diseases"`
	Medications string    `json:"medications" yaml:"medications"`
	PairingCode string    `json:"pairing_code" yaml:"pairing_code"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Entry is one analyzed report as stored.
type Entry struct {
	ID              string            `json:"id"`
	Identity        string            `json:"identity"`
	PairingCode     string            `json:"pairing_code"`
	Transcript      string            `json:"transcript"`
	ClinicalSummary string            `json:"clinical_summary"`
	Severity        analysis.Severity `json:"severity"`
	SeverityLabel   string            `json:"severity_label"`
	SeverityColor   string            `json:"severity_color"`
	Mood            string            `json:"mood"`
	Advice          string            `json:"advice"`
	Fallback        bool              `json:"fallback,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func newEntry(id, identity, code string, r analysis.Result, at time.Time) Entry {
	return Entry{
		ID:              id,
		Identity:        identity,
		PairingCode:     code,
		Transcript:      r.Transcript,
		ClinicalSummary: r.ClinicalSummary,
		Severity:        r.Severity.Level,
		SeverityLabel:   r.Severity.Label,
		SeverityColor:   r.Severity.Color,
		Mood:            r.Mood,
		Advice:          r.Advice,
		Fallback:        r.Fallback,
		CreatedAt:       at,
	}
}

// Store is the diary persistence contract. Lookups return nil, nil when
// nothing matches.
type Store interface {
	SaveProfile(ctx context.Context, identity string, p Profile, pairingCode string) error
	SaveEntry(ctx context.Context, identity, pairingCode string, r analysis.Result) (Entry, error)
	QueryByPairingCode(ctx context.Context, code string) (*Profile, error)
	QueryByPhone(ctx context.Context, phone string) (*Profile, error)
	// Subscribe calls onChange with the current entries for code, newest
	// first, and again after every save for that code.
	Subscribe(code string, onChange func([]Entry)) (unsubscribe func())
	Close() error
}
