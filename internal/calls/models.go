package calls

import (
	"encoding/json"
	"errors"
	"time"
)

// Call is one scheduled or executed conversation attempt with a contact.
//
// Tenancy invariant: AccountID is required on every row.
// Calls are never hard-deleted; cancellation is a status transition.
type Call struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`

	PhoneNumber     string `json:"phone_number" db:"phone_number"`
	ContactName     string `json:"contact_name" db:"contact_name"`
	PropertyAddress string `json:"property_address,omitempty" db:"property_address"`

	// VoiceAgentID references a voices.VoiceProfile.
	VoiceAgentID string `json:"voice_agent_id" db:"voice_agent_id"`

	Status  Status  `json:"status" db:"status"`
	Outcome Outcome `json:"outcome,omitempty" db:"outcome"`

	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`
	// Duration is in whole seconds.
	Duration int `json:"duration" db:"duration"`
	// Timezone is an IANA zone name, informational only.
	Timezone string `json:"timezone" db:"timezone"`

	// Notes is an append-only log; entries are separated by a blank line.
	Notes         string `json:"notes,omitempty" db:"notes"`
	Transcription string `json:"transcription,omitempty" db:"transcription"`
	RecordingURL  string `json:"recording_url,omitempty" db:"recording_url"`

	// CallbackURL and Metadata are passed through for the originating integration.
	CallbackURL string          `json:"callback_url,omitempty" db:"callback_url"`
	Metadata    json.RawMessage `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusMissed     Status = "missed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusMissed:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusMissed
}

// Outcome refines a terminal Status. "missed" alone cannot tell a user
// cancellation from a provider failure; Outcome can.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeNoAnswer  Outcome = "no-answer"
	OutcomeFailed    Outcome = "failed"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrStatusConflict  = errors.New("calls: status changed concurrently")
	ErrNotEditable     = errors.New("calls: call is no longer editable")
)

// CanCancel reports whether a user may cancel the call at now:
// it must still be scheduled and its start time must be in the future.
func (c Call) CanCancel(now time.Time) bool {
	return c.Status == StatusScheduled && c.StartTime.After(now)
}

// IsUpcoming mirrors the dashboard split between upcoming and past calls.
func (c Call) IsUpcoming(now time.Time) bool {
	return c.Status == StatusScheduled && !c.StartTime.Before(now)
}

// AppendNote returns notes with entry appended after a blank line.
func AppendNote(notes, entry string) string {
	if notes == "" {
		return entry
	}
	return notes + "\n\n" + entry
}

// Patch is a partial update. Nil fields are left untouched.
// ExpectStatus turns the update into a compare-and-set on status.
type Patch struct {
	ExpectStatus *Status

	Status        *Status
	Outcome       *Outcome
	StartTime     *time.Time
	EndTime       *time.Time
	Duration      *int
	ContactName   *string
	Timezone      *string
	Transcription *string
	RecordingURL  *string

	// AppendNote is appended to the stored notes atomically.
	AppendNote *string
}

// Filter narrows Query results. Zero values mean "any".
type Filter struct {
	AccountID    string
	VoiceAgentID string
	Statuses     []Status
	From         time.Time
	To           time.Time
	Limit        int
}

func (f Filter) matches(c Call) bool {
	if f.AccountID != "" && c.AccountID != f.AccountID {
		return false
	}
	if f.VoiceAgentID != "" && c.VoiceAgentID != f.VoiceAgentID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if c.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.From.IsZero() && c.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !c.StartTime.Before(f.To) {
		return false
	}
	return true
}

func Ptr[T any](v T) *T { return &v }
