package integrations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice-agent-platform/internal/audit"

	"github.com/google/uuid"
)

// LimitResolver returns the integration capacity of an account's plan.
// A negative limit means unlimited.
type LimitResolver interface {
	IntegrationLimit(ctx context.Context, accountID string) (int, error)
}

type AuditAppender interface {
	Append(ctx context.Context, e audit.Event) error
}

// Service owns integration CRUD and plan limits.
type Service struct {
	store  Store
	limits LimitResolver
	audit  AuditAppender
	log    *slog.Logger
	clock  func() time.Time
}

type Option func(*Service)

func WithLimits(l LimitResolver) Option     { return func(s *Service) { s.limits = l } }
func WithAudit(a AuditAppender) Option      { return func(s *Service) { s.audit = a } }
func WithLogger(l *slog.Logger) Option      { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.clock = now } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, clock: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

type CreateRequest struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"type"`
	Status Status `json:"status"`
	Config Config `json:"config"`
}

// UpdateRequest merges non-nil fields. The kind cannot change.
// An empty or masked api_key keeps the stored key.
type UpdateRequest struct {
	Name   *string `json:"name"`
	Status *Status `json:"status"`
	Config *Config `json:"config"`
}

func (s *Service) Create(ctx context.Context, accountID string, req CreateRequest) (Integration, error) {
	now := s.clock().UTC()
	i := Integration{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      req.Name,
		Kind:      req.Kind,
		Status:    req.Status,
		Config:    req.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}
	i.normalize()
	if err := i.Validate(); err != nil {
		return Integration{}, err
	}

	if s.limits != nil {
		limit, err := s.limits.IntegrationLimit(ctx, accountID)
		if err != nil {
			return Integration{}, fmt.Errorf("integrations: resolve limit: %w", err)
		}
		if limit >= 0 {
			n, err := s.store.CountByAccount(ctx, accountID)
			if err != nil {
				return Integration{}, err
			}
			if n >= limit {
				return Integration{}, ErrLimitReached
			}
		}
	}

	if err := s.store.Insert(ctx, i); err != nil {
		return Integration{}, err
	}
	s.record(ctx, i, "integration created")
	return i, nil
}

func (s *Service) Get(ctx context.Context, accountID, id string) (Integration, error) {
	return s.store.Get(ctx, accountID, id)
}

func (s *Service) List(ctx context.Context, accountID string) ([]Integration, error) {
	if accountID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListByAccount(ctx, accountID)
}

func (s *Service) Update(ctx context.Context, accountID, id string, req UpdateRequest) (Integration, error) {
	i, err := s.store.Get(ctx, accountID, id)
	if err != nil {
		return Integration{}, err
	}
	if req.Name != nil {
		i.Name = *req.Name
	}
	if req.Status != nil {
		i.Status = *req.Status
	}
	if req.Config != nil {
		key := i.Config.APIKey
		i.Config = *req.Config
		if i.Config.APIKey == "" || i.Config.APIKey == redactedKey {
			i.Config.APIKey = key
		}
	}
	i.normalize()
	if err := i.Validate(); err != nil {
		return Integration{}, err
	}
	i.UpdatedAt = s.clock().UTC()

	if err := s.store.Update(ctx, i); err != nil {
		return Integration{}, err
	}
	s.record(ctx, i, "integration updated")
	return i, nil
}

func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	i, err := s.store.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, accountID, id); err != nil {
		return err
	}
	s.record(ctx, i, "integration deleted")
	return nil
}

// ActiveCRM lists the account's active integrations that receive call results.
func (s *Service) ActiveCRM(ctx context.Context, accountID string) ([]Integration, error) {
	all, err := s.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, i := range all {
		if i.Status == StatusActive && i.Kind.CRM() {
			out = append(out, i)
		}
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, i Integration, msg string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(ctx, audit.Event{
		AccountID: i.AccountID,
		Type:      audit.EventTypeIntegration,
		Message:   msg + ": " + i.Name,
	})
	if err != nil {
		s.log.Warn("integration audit append failed", "integration_id", i.ID, "err", err)
	}
}
