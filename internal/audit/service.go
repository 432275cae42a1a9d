package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; no Update/Delete methods exist.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, accountID, callID string) ([]Event, error)
}

// Service records internal audit information.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.AccountID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCallTransition records a status change of a call.
func (s *Service) LogCallTransition(ctx context.Context, accountID, callID, from, to, note string) error {
	meta, _ := json.Marshal(map[string]string{"from": from, "to": to})
	return s.Append(ctx, Event{
		AccountID: accountID,
		Type:      EventTypeCallTransition,
		CallID:    callID,
		Message:   note,
		Metadata:  string(meta),
	})
}

// LogCallbackFailure records an outbound callback that could not be delivered.
func (s *Service) LogCallbackFailure(ctx context.Context, accountID, callID, url string, cause error) error {
	msg := "callback delivery failed"
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	meta, _ := json.Marshal(map[string]string{"url": url})
	return s.Append(ctx, Event{
		AccountID: accountID,
		Type:      EventTypeCallbackFailed,
		CallID:    callID,
		Message:   msg,
		Metadata:  string(meta),
	})
}

func (s *Service) CallTrail(ctx context.Context, accountID, callID string) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if accountID == "" || callID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByCall(ctx, accountID, callID)
}
