package voices

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-agent-platform/internal/audit"

	"github.com/google/uuid"
)

// LimitResolver returns the voice agent capacity for an account's subscription.
// A negative limit means unlimited.
type LimitResolver interface {
	VoiceLimit(ctx context.Context, accountID string) (int, error)
}

// ReferenceCounter reports calls still depending on a profile.
type ReferenceCounter interface {
	CountOpenByVoiceAgent(ctx context.Context, voiceAgentID string) (int, error)
}

// AuditAppender is the subset of audit.Service used here. Failures are logged, never returned.
type AuditAppender interface {
	Append(ctx context.Context, e audit.Event) error
}

// Service owns voice profile CRUD with range validation and tier limits.
type Service struct {
	store  Store
	limits LimitResolver
	refs   ReferenceCounter
	audit  AuditAppender
	log    *slog.Logger
	clock  func() time.Time
}

type Option func(*Service)

func WithLimits(l LimitResolver) Option        { return func(s *Service) { s.limits = l } }
func WithReferences(r ReferenceCounter) Option { return func(s *Service) { s.refs = r } }
func WithAudit(a AuditAppender) Option         { return func(s *Service) { s.audit = a } }
func WithClock(now func() time.Time) Option    { return func(s *Service) { s.clock = now } }
func WithLogger(l *slog.Logger) Option         { return func(s *Service) { s.log = l } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, clock: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

type CreateRequest struct {
	Name        string    `json:"name"`
	Source      Source    `json:"source"`
	Settings    *Settings `json:"settings"`
	VoiceID     string    `json:"voice_id"`
	Personality string    `json:"personality"`
	Context     string    `json:"context"`
}

// UpdateRequest merges non-nil fields into the stored profile.
type UpdateRequest struct {
	Name        *string   `json:"name"`
	Source      *Source   `json:"source"`
	Settings    *Settings `json:"settings"`
	VoiceID     *string   `json:"voice_id"`
	Personality *string   `json:"personality"`
	Context     *string   `json:"context"`
}

func (s *Service) Create(ctx context.Context, accountID string, req CreateRequest) (VoiceProfile, error) {
	if accountID == "" {
		return VoiceProfile{}, ErrInvalidArgument
	}

	settings := DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	source := req.Source
	if source == "" {
		source = SourceElevenLabs
	}

	now := s.clock().UTC()
	p := VoiceProfile{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Name:        strings.TrimSpace(req.Name),
		Source:      source,
		Settings:    settings,
		VoiceID:     strings.TrimSpace(req.VoiceID),
		Personality: strings.TrimSpace(req.Personality),
		Context:     strings.TrimSpace(req.Context),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return VoiceProfile{}, err
	}

	if s.limits != nil {
		limit, err := s.limits.VoiceLimit(ctx, accountID)
		if err != nil {
			return VoiceProfile{}, fmt.Errorf("voices: resolve limit: %w", err)
		}
		if limit >= 0 {
			n, err := s.store.CountByAccount(ctx, accountID)
			if err != nil {
				return VoiceProfile{}, err
			}
			if n >= limit {
				return VoiceProfile{}, ErrLimitReached
			}
		}
	}

	secret, err := GenerateWebhookSecret()
	if err != nil {
		return VoiceProfile{}, err
	}
	p.WebhookSecret = secret

	if err := s.store.Insert(ctx, p); err != nil {
		return VoiceProfile{}, err
	}
	s.record(ctx, p, "voice profile created")
	return p, nil
}

// Get returns a profile owned by accountID.
func (s *Service) Get(ctx context.Context, accountID, id string) (VoiceProfile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return VoiceProfile{}, err
	}
	if p.AccountID != accountID {
		return VoiceProfile{}, ErrNotFound
	}
	return p, nil
}

// Resolve looks a profile up by id regardless of account.
// Used by the call orchestrator and the inbound gateway.
func (s *Service) Resolve(ctx context.Context, id string) (VoiceProfile, error) {
	if strings.TrimSpace(id) == "" {
		return VoiceProfile{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, accountID string) ([]VoiceProfile, error) {
	if accountID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListByAccount(ctx, accountID)
}

func (s *Service) Update(ctx context.Context, accountID, id string, req UpdateRequest) (VoiceProfile, error) {
	p, err := s.Get(ctx, accountID, id)
	if err != nil {
		return VoiceProfile{}, err
	}

	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Source != nil {
		p.Source = *req.Source
	}
	if req.Settings != nil {
		p.Settings = *req.Settings
	}
	if req.VoiceID != nil {
		p.VoiceID = strings.TrimSpace(*req.VoiceID)
	}
	if req.Personality != nil {
		p.Personality = strings.TrimSpace(*req.Personality)
	}
	if req.Context != nil {
		p.Context = strings.TrimSpace(*req.Context)
	}
	if err := p.Validate(); err != nil {
		return VoiceProfile{}, err
	}
	p.UpdatedAt = s.clock().UTC()

	if err := s.store.Update(ctx, p); err != nil {
		return VoiceProfile{}, err
	}
	s.record(ctx, p, "voice profile updated")
	return p, nil
}

// Delete removes a profile unless scheduled or in-progress calls still reference it.
func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	p, err := s.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if s.refs != nil {
		n, err := s.refs.CountOpenByVoiceAgent(ctx, id)
		if err != nil {
			return fmt.Errorf("voices: count references: %w", err)
		}
		if n > 0 {
			return ErrProfileInUse
		}
	}
	if err := s.store.Delete(ctx, accountID, id); err != nil {
		return err
	}
	s.record(ctx, p, "voice profile deleted")
	return nil
}

func (s *Service) record(ctx context.Context, p VoiceProfile, msg string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(ctx, audit.Event{
		AccountID:    p.AccountID,
		Type:         audit.EventTypeVoiceProfile,
		VoiceAgentID: p.ID,
		Message:      msg,
	})
	if err != nil {
		s.log.Warn("voice profile audit append failed", "voice_agent_id", p.ID, "err", err)
	}
}

// GenerateWebhookSecret returns 32 random bytes, hex-encoded.
func GenerateWebhookSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(errors.New("voices: generate webhook secret"), err)
	}
	return hex.EncodeToString(b), nil
}

// OwnsVoice reports whether id names a profile of accountID.
func (s *Service) OwnsVoice(ctx context.Context, accountID, id string) (bool, error) {
	_, err := s.Get(ctx, accountID, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
