package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// VoiceChecker confirms that a voice agent belongs to an account.
type VoiceChecker interface {
	OwnsVoice(ctx context.Context, accountID, voiceAgentID string) (bool, error)
}

// Observer is told about every status transition this service performs.
type Observer interface {
	CallTransitioned(ctx context.Context, from Status, c Call)
}

// Service validates and records call scheduling requests.
// Execution of a call belongs to internal/orchestrator.
type Service struct {
	store    Store
	voices   VoiceChecker
	observer Observer
	clock    func() time.Time

	// InboundDelay is the start offset for calls scheduled through the webhook gateway.
	InboundDelay time.Duration
}

type Option func(*Service)

func WithVoiceChecker(v VoiceChecker) Option { return func(s *Service) { s.voices = v } }
func WithObserver(o Observer) Option         { return func(s *Service) { s.observer = o } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.clock = now } }
func WithInboundDelay(d time.Duration) Option {
	return func(s *Service) { s.InboundDelay = d }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, clock: time.Now, InboundDelay: time.Minute}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Store() Store { return s.store }

type ScheduleRequest struct {
	PhoneNumber     string    `json:"phone_number"`
	ContactName     string    `json:"contact_name"`
	PropertyAddress string    `json:"property_address"`
	VoiceAgentID    string    `json:"voice_agent_id"`
	StartTime       time.Time `json:"start_time"`
	Timezone        string    `json:"timezone"`
	Notes           string    `json:"notes"`
}

// Schedule records a call requested from the dashboard.
func (s *Service) Schedule(ctx context.Context, accountID string, req ScheduleRequest) (Call, error) {
	if accountID == "" {
		return Call{}, fmt.Errorf("%w: account_id required", ErrInvalidArgument)
	}
	phone := NormalizePhone(req.PhoneNumber)
	if !e164.MatchString(phone) {
		return Call{}, fmt.Errorf("%w: phone number must be E.164", ErrInvalidArgument)
	}
	name := strings.TrimSpace(req.ContactName)
	if name == "" {
		return Call{}, fmt.Errorf("%w: contact name required", ErrInvalidArgument)
	}
	if req.StartTime.IsZero() || !req.StartTime.After(s.clock()) {
		return Call{}, fmt.Errorf("%w: start time must be in the future", ErrInvalidArgument)
	}
	tz, err := normalizeTimezone(req.Timezone)
	if err != nil {
		return Call{}, err
	}
	if err := s.checkVoice(ctx, accountID, req.VoiceAgentID); err != nil {
		return Call{}, err
	}

	return s.store.Insert(ctx, Call{
		AccountID:       accountID,
		PhoneNumber:     phone,
		ContactName:     name,
		PropertyAddress: strings.TrimSpace(req.PropertyAddress),
		VoiceAgentID:    req.VoiceAgentID,
		Status:          StatusScheduled,
		StartTime:       req.StartTime.UTC(),
		Timezone:        tz,
		Notes:           strings.TrimSpace(req.Notes),
	})
}

// InboundRequest is a call scheduling request already authenticated by the gateway.
type InboundRequest struct {
	AccountID       string
	VoiceAgentID    string
	PhoneNumber     string
	ContactName     string
	PropertyAddress string
	CallbackURL     string
	Metadata        json.RawMessage
}

// ScheduleInbound records a call starting InboundDelay from now.
// Notes carry the property address, as the dashboard shows them.
func (s *Service) ScheduleInbound(ctx context.Context, req InboundRequest) (Call, error) {
	if req.AccountID == "" || req.VoiceAgentID == "" {
		return Call{}, fmt.Errorf("%w: account and voice agent required", ErrInvalidArgument)
	}
	phone := NormalizePhone(req.PhoneNumber)
	name := strings.TrimSpace(req.ContactName)
	if phone == "" || name == "" {
		return Call{}, fmt.Errorf("%w: phone number and contact name required", ErrInvalidArgument)
	}
	addr := strings.TrimSpace(req.PropertyAddress)

	c := Call{
		AccountID:       req.AccountID,
		PhoneNumber:     phone,
		ContactName:     name,
		PropertyAddress: addr,
		VoiceAgentID:    req.VoiceAgentID,
		Status:          StatusScheduled,
		StartTime:       s.clock().Add(s.InboundDelay).UTC(),
		Timezone:        "UTC",
		CallbackURL:     strings.TrimSpace(req.CallbackURL),
		Metadata:        req.Metadata,
	}
	if addr != "" {
		c.Notes = "Property Address: " + addr
	}
	return s.store.Insert(ctx, c)
}

// Get returns a call owned by accountID.
func (s *Service) Get(ctx context.Context, accountID, id string) (Call, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Call{}, err
	}
	if c.AccountID != accountID {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Call, error) {
	if f.AccountID == "" {
		return nil, fmt.Errorf("%w: account_id required", ErrInvalidArgument)
	}
	return s.store.Query(ctx, f)
}

// Cancel moves a future scheduled call to missed with outcome cancelled.
func (s *Service) Cancel(ctx context.Context, accountID, id string) (Call, error) {
	c, err := s.Get(ctx, accountID, id)
	if err != nil {
		return Call{}, err
	}
	now := s.clock()
	if !c.CanCancel(now) {
		return Call{}, ErrNotEditable
	}

	note := "Call cancelled by user at " + formatIn(now, c.Timezone)
	updated, err := s.store.Update(ctx, id, Patch{
		ExpectStatus: Ptr(StatusScheduled),
		Status:       Ptr(StatusMissed),
		Outcome:      Ptr(OutcomeCancelled),
		AppendNote:   &note,
	})
	if err != nil {
		return Call{}, err
	}
	if s.observer != nil {
		s.observer.CallTransitioned(ctx, c.Status, updated)
	}
	return updated, nil
}

func (s *Service) AppendNote(ctx context.Context, accountID, id, note string) (Call, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return Call{}, fmt.Errorf("%w: note required", ErrInvalidArgument)
	}
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return Call{}, err
	}
	return s.store.Update(ctx, id, Patch{AppendNote: &note})
}

type EditRequest struct {
	ContactName *string    `json:"contact_name"`
	Timezone    *string    `json:"timezone"`
	StartTime   *time.Time `json:"start_time"`
	Note        *string    `json:"note"`
}

// Edit changes details of a call that has not started yet.
func (s *Service) Edit(ctx context.Context, accountID, id string, req EditRequest) (Call, error) {
	c, err := s.Get(ctx, accountID, id)
	if err != nil {
		return Call{}, err
	}
	if c.Status != StatusScheduled {
		return Call{}, ErrNotEditable
	}

	p := Patch{ExpectStatus: Ptr(StatusScheduled)}
	if req.ContactName != nil {
		name := strings.TrimSpace(*req.ContactName)
		if name == "" {
			return Call{}, fmt.Errorf("%w: contact name required", ErrInvalidArgument)
		}
		p.ContactName = &name
	}
	if req.Timezone != nil {
		tz, err := normalizeTimezone(*req.Timezone)
		if err != nil {
			return Call{}, err
		}
		p.Timezone = &tz
	}
	if req.StartTime != nil {
		if !req.StartTime.After(s.clock()) {
			return Call{}, fmt.Errorf("%w: start time must be in the future", ErrInvalidArgument)
		}
		p.StartTime = req.StartTime
	}
	if req.Note != nil {
		if note := strings.TrimSpace(*req.Note); note != "" {
			p.AppendNote = &note
		}
	}
	return s.store.Update(ctx, id, p)
}

func (s *Service) checkVoice(ctx context.Context, accountID, voiceAgentID string) error {
	if strings.TrimSpace(voiceAgentID) == "" {
		return fmt.Errorf("%w: voice agent required", ErrInvalidArgument)
	}
	if s.voices == nil {
		return nil
	}
	ok, err := s.voices.OwnsVoice(ctx, accountID, voiceAgentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown voice agent", ErrInvalidArgument)
	}
	return nil
}

// NormalizePhone strips formatting characters, keeping a leading plus.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeTimezone(tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "UTC", nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "", fmt.Errorf("%w: unknown timezone %q", ErrInvalidArgument, tz)
	}
	return tz, nil
}

func formatIn(t time.Time, tz string) string {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		t = t.In(loc)
	} else {
		t = t.UTC()
	}
	return t.Format("2006-01-02 15:04:05 MST")
}
