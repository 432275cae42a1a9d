package voices

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// VoiceProfile is an account-owned voice agent configuration: a synthesized voice
// paired with the persona the text generator speaks as.
//
// Invariant: WebhookSecret is generated once on create and never changes.
type VoiceProfile struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`
	Name      string `json:"name" db:"name"`
	Source    Source `json:"source" db:"source"`

	Settings Settings `json:"settings"`

	// VoiceID is the synthesis provider's voice identifier.
	// Required when Source == SourceElevenLabs.
	VoiceID string `json:"voice_id,omitempty" db:"voice_id"`

	Personality string `json:"personality,omitempty" db:"personality"`
	Context     string `json:"context,omitempty" db:"context"`

	WebhookSecret string `json:"webhook_secret,omitempty" db:"webhook_secret"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Source string

const (
	SourceElevenLabs Source = "elevenlabs"
	SourceCustom     Source = "custom"
)

// Settings are prosody controls. All three are always present.
type Settings struct {
	Speed     float64 `json:"speed" db:"speed"`
	Pitch     float64 `json:"pitch" db:"pitch"`
	Stability float64 `json:"stability" db:"stability"`
}

// Bounds are inclusive. Values outside are rejected, never clamped.
const (
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	MinPitch     = 0.5
	MaxPitch     = 2.0
	MinStability = 0.0
	MaxStability = 1.0
)

var (
	ErrNotFound        = errors.New("voices: not found")
	ErrInvalidArgument = errors.New("voices: invalid argument")
	ErrInvalidSettings = errors.New("voices: settings out of range")
	ErrLimitReached    = errors.New("voices: voice agent limit reached for subscription")
	ErrProfileInUse    = errors.New("voices: profile referenced by open calls")
	ErrDuplicateName   = errors.New("voices: name already used")
)

// DefaultSettings matches the provider's neutral voice.
func DefaultSettings() Settings {
	return Settings{Speed: 1.0, Pitch: 1.0, Stability: 0.75}
}

func (s Settings) Validate() error {
	if s.Speed < MinSpeed || s.Speed > MaxSpeed {
		return fmt.Errorf("%w: speed %.2f not in [%.1f, %.1f]", ErrInvalidSettings, s.Speed, MinSpeed, MaxSpeed)
	}
	if s.Pitch < MinPitch || s.Pitch > MaxPitch {
		return fmt.Errorf("%w: pitch %.2f not in [%.1f, %.1f]", ErrInvalidSettings, s.Pitch, MinPitch, MaxPitch)
	}
	if s.Stability < MinStability || s.Stability > MaxStability {
		return fmt.Errorf("%w: stability %.2f not in [%.1f, %.1f]", ErrInvalidSettings, s.Stability, MinStability, MaxStability)
	}
	return nil
}

// Validate checks the fields a profile must carry before persistence.
func (p VoiceProfile) Validate() error {
	if strings.TrimSpace(p.AccountID) == "" {
		return fmt.Errorf("%w: account_id required", ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidArgument)
	}
	switch p.Source {
	case SourceElevenLabs:
		if strings.TrimSpace(p.VoiceID) == "" {
			return fmt.Errorf("%w: voice_id required for %s voices", ErrInvalidArgument, SourceElevenLabs)
		}
	case SourceCustom:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidArgument, p.Source)
	}
	return p.Settings.Validate()
}

// CanSpeak reports whether the profile is usable to start a call.
func (p VoiceProfile) CanSpeak() bool {
	return strings.TrimSpace(p.VoiceID) != ""
}

// Redacted hides the webhook secret for list views.
func (p VoiceProfile) Redacted() VoiceProfile {
	if p.WebhookSecret != "" {
		p.WebhookSecret = ""
	}
	return p
}
