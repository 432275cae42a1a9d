package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - account_id is required for tenancy isolation.
// - Recording is best-effort; callers never block a call on audit failures.
type Event struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	Type      EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	CallID       string `json:"call_id,omitempty" db:"call_id"`
	VoiceAgentID string `json:"voice_agent_id,omitempty" db:"voice_agent_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallTransition  EventType = "call_transition"
	EventTypeCallbackFailed  EventType = "callback_failed"
	EventTypeInboundSchedule EventType = "inbound_schedule"
	EventTypeVoiceProfile    EventType = "voice_profile"
	EventTypeBilling         EventType = "billing"
	EventTypeIntegration     EventType = "integration"
)
