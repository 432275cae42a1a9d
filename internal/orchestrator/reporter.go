package orchestrator

import (
	"context"
	"log/slog"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
)

// AuditLog records call transitions.
type AuditLog interface {
	LogCallTransition(ctx context.Context, accountID, callID, from, to, note string) error
}

// CallbackNotifier delivers call status to the integration that asked for it.
// Implementations must not block.
type CallbackNotifier interface {
	NotifyStatus(ctx context.Context, c calls.Call)
}

// IntegrationSink receives every call that reached a terminal status.
// Implementations must not block.
type IntegrationSink interface {
	CallFinished(ctx context.Context, c calls.Call)
}

// Reporter fans a status transition out to realtime subscribers, the audit
// trail, the call's callback URL and the account's CRM integrations.
// Every collaborator is optional.
type Reporter struct {
	Events       events.Publisher
	Audit        AuditLog
	Callbacks    CallbackNotifier
	Integrations IntegrationSink
	Log          *slog.Logger
}

// CallTransitioned satisfies calls.Observer.
func (r *Reporter) CallTransitioned(ctx context.Context, from calls.Status, c calls.Call) {
	if r == nil {
		return
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("call transition",
		"call_id", c.ID,
		"account_id", c.AccountID,
		"from", string(from),
		"to", string(c.Status),
		"outcome", string(c.Outcome),
	)

	if r.Events != nil {
		r.Events.Publish(ctx, events.Event{
			Type:      events.TypeCallStatus,
			AccountID: c.AccountID,
			CallID:    c.ID,
			Status:    string(c.Status),
			Outcome:   string(c.Outcome),
			Payload:   c,
		})
	}
	if r.Audit != nil {
		if err := r.Audit.LogCallTransition(ctx, c.AccountID, c.ID, string(from), string(c.Status), lastNote(c.Notes)); err != nil {
			log.Warn("audit call transition failed", "call_id", c.ID, "err", err)
		}
	}
	if r.Callbacks != nil && c.CallbackURL != "" && c.Status.Terminal() {
		r.Callbacks.NotifyStatus(ctx, c)
	}
	if r.Integrations != nil && c.Status.Terminal() {
		r.Integrations.CallFinished(ctx, c)
	}
}

func lastNote(notes string) string {
	for i := len(notes) - 2; i >= 0; i-- {
		if notes[i] == '\n' && notes[i+1] == '\n' {
			return notes[i+2:]
		}
	}
	return notes
}
