package integrations

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind is the external system an integration talks to.
type Kind string

const (
	KindHighLevel Kind = "highlevel"
	KindCustom    Kind = "custom"
	KindCalendar  Kind = "calendar"
)

func (k Kind) Valid() bool {
	return k == KindHighLevel || k == KindCustom || k == KindCalendar
}

// CRM reports whether finished calls are pushed to this kind.
func (k Kind) CRM() bool { return k == KindHighLevel || k == KindCustom }

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type CalendarProvider string

const (
	ProviderGoogle  CalendarProvider = "google"
	ProviderOutlook CalendarProvider = "outlook"
	ProviderICal    CalendarProvider = "ical"
)

type SyncDirection string

const (
	SyncOneWay SyncDirection = "one-way"
	SyncTwoWay SyncDirection = "two-way"
)

// CallbackFields selects the call data pushed to a CRM.
type CallbackFields struct {
	Transcript   bool `json:"transcript"`
	Sentiment    bool `json:"sentiment"`
	Appointments bool `json:"appointments"`
	Summary      bool `json:"summary"`
	Recording    bool `json:"recording"`
}

func DefaultCallbackFields() CallbackFields {
	return CallbackFields{Transcript: true, Sentiment: true, Appointments: true, Summary: true, Recording: true}
}

// Config holds kind-specific settings. CRM kinds use the webhook fields,
// calendars use the provider fields.
type Config struct {
	WebhookURL     string          `json:"webhook_url,omitempty"`
	APIKey         string          `json:"api_key,omitempty"`
	LocationID     string          `json:"location_id,omitempty"`
	CallbackFields *CallbackFields `json:"callback_fields,omitempty"`

	Provider      CalendarProvider `json:"provider,omitempty"`
	CalendarID    string           `json:"calendar_id,omitempty"`
	SyncEnabled   bool             `json:"sync_enabled"`
	SyncDirection SyncDirection    `json:"sync_direction,omitempty"`
}

// Integration connects an account to a CRM or calendar.
type Integration struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`
	Name      string `json:"name" db:"name"`
	Kind      Kind   `json:"type" db:"kind"`
	Status    Status `json:"status" db:"status"`
	Config    Config `json:"config" db:"config"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const redactedKey = "********"

// Redacted masks the provider API key for API responses.
func (i Integration) Redacted() Integration {
	if i.Config.APIKey != "" {
		i.Config.APIKey = redactedKey
	}
	return i
}

// normalize fills kind defaults before validation.
func (i *Integration) normalize() {
	i.Name = strings.TrimSpace(i.Name)
	i.Config.WebhookURL = strings.TrimSpace(i.Config.WebhookURL)
	if i.Status == "" {
		i.Status = StatusActive
	}
	switch {
	case i.Kind.CRM():
		if i.Config.CallbackFields == nil {
			f := DefaultCallbackFields()
			i.Config.CallbackFields = &f
		}
	case i.Kind == KindCalendar:
		if i.Config.SyncDirection == "" {
			i.Config.SyncDirection = SyncTwoWay
		}
		if strings.TrimSpace(i.Config.CalendarID) == "" {
			i.Config.CalendarID = "primary"
		}
	}
}

func (i Integration) Validate() error {
	if i.AccountID == "" || i.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if !i.Kind.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidArgument, i.Kind)
	}
	if i.Status != StatusActive && i.Status != StatusInactive {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, i.Status)
	}
	if i.Kind.CRM() {
		u, err := url.Parse(i.Config.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: webhook_url must be an absolute http(s) URL", ErrInvalidArgument)
		}
		return nil
	}
	switch i.Config.Provider {
	case ProviderGoogle, ProviderOutlook, ProviderICal:
	default:
		return fmt.Errorf("%w: unknown calendar provider %q", ErrInvalidArgument, i.Config.Provider)
	}
	if i.Config.SyncDirection != SyncOneWay && i.Config.SyncDirection != SyncTwoWay {
		return fmt.Errorf("%w: unknown sync direction %q", ErrInvalidArgument, i.Config.SyncDirection)
	}
	return nil
}

var (
	ErrNotFound        = errors.New("integrations: not found")
	ErrInvalidArgument = errors.New("integrations: invalid argument")
	ErrDuplicateName   = errors.New("integrations: name already used")
	ErrLimitReached    = errors.New("integrations: plan integration limit reached")
)
