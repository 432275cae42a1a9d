package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-agent-platform/internal/audit"
)

// AuditAppender is the subset of audit.Service used here. Failures are logged, never returned.
type AuditAppender interface {
	Append(ctx context.Context, e audit.Event) error
}

type Service struct {
	repo     Repository
	payments Payments
	prices   map[Tier]string
	urls     RedirectURLs
	audit    AuditAppender
	log      *slog.Logger
	clock    func() time.Time
}

// RedirectURLs are where checkout returns the browser to.
type RedirectURLs struct {
	Success string
	Cancel  string
}

type Option func(*Service)

// WithPayments enables paid plans. Without it checkout and subscription
// management return ErrPaymentsNotConfigured.
func WithPayments(p Payments, prices map[string]string, urls RedirectURLs) Option {
	return func(s *Service) {
		s.payments = p
		s.urls = urls
		for k, v := range prices {
			s.prices[Tier(k)] = v
		}
	}
}

func WithAudit(a AuditAppender) Option      { return func(s *Service) { s.audit = a } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.clock = now } }
func WithLogger(l *slog.Logger) Option      { return func(s *Service) { s.log = l } }

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, prices: map[Tier]string{}, clock: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EnsureAccount returns the account, creating a trial account on first use.
func (s *Service) EnsureAccount(ctx context.Context, accountID, businessName string) (Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return Account{}, ErrInvalidArgument
	}
	a, err := s.repo.Get(ctx, accountID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	a = NewTrialAccount(accountID, s.clock().UTC())
	a.BusinessName = strings.TrimSpace(businessName)
	return s.repo.Create(ctx, a)
}

// StatusView is what the dashboard shows on the billing page.
type StatusView struct {
	Account Account `json:"account"`
	Plan    Plan    `json:"plan"`
	// CallsRemaining is -1 when the plan is unlimited.
	CallsRemaining int `json:"calls_remaining"`
	// RenewalReminderAt is when the renewal reminder falls due, if one is wanted.
	RenewalReminderAt *time.Time `json:"renewal_reminder_at,omitempty"`
}

func (s *Service) Status(ctx context.Context, accountID string) (StatusView, error) {
	a, err := s.EnsureAccount(ctx, accountID, "")
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		Account:           a,
		Plan:              PlanFor(a.Tier),
		CallsRemaining:    callsRemaining(a),
		RenewalReminderAt: a.RenewalReminderAt(),
	}, nil
}

func callsRemaining(a Account) int {
	switch a.Status {
	case StatusTrial:
		return a.TrialCallsRemaining
	case StatusActive:
		limit := PlanFor(a.Tier).Limits.Calls
		if limit == Unlimited {
			return Unlimited
		}
		return max(limit-a.CallsThisPeriod, 0)
	default:
		return 0
	}
}

// Checkout opens a provider checkout session for a paid tier.
func (s *Service) Checkout(ctx context.Context, accountID string, tier Tier, autoRenew bool) (CheckoutSession, error) {
	if s.payments == nil {
		return CheckoutSession{}, ErrPaymentsNotConfigured
	}
	if !tier.Paid() {
		return CheckoutSession{}, fmt.Errorf("%w: tier %q cannot be purchased", ErrInvalidArgument, tier)
	}
	price, ok := s.prices[tier]
	if !ok || price == "" {
		return CheckoutSession{}, fmt.Errorf("%w: no price for tier %q", ErrPaymentsNotConfigured, tier)
	}
	if _, err := s.EnsureAccount(ctx, accountID, ""); err != nil {
		return CheckoutSession{}, err
	}
	return s.payments.CreateCheckout(ctx, CheckoutRequest{
		AccountID:  accountID,
		Tier:       tier,
		PriceID:    price,
		AutoRenew:  autoRenew,
		SuccessURL: s.urls.Success,
		CancelURL:  s.urls.Cancel,
	})
}

func (s *Service) SetAutoRenew(ctx context.Context, accountID string, autoRenew bool) (Account, error) {
	a, sub, err := s.subscribed(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	got, err := s.payments.SetCancelAtPeriodEnd(ctx, sub, !autoRenew)
	if err != nil {
		return Account{}, err
	}
	a.AutoRenew = !got.CancelAtPeriodEnd
	applyPeriod(&a, got)
	if err := s.repo.Save(ctx, a); err != nil {
		return Account{}, err
	}
	s.record(ctx, a.ID, fmt.Sprintf("auto-renew set to %t", a.AutoRenew))
	return a, nil
}

// Cancel ends the subscription immediately.
func (s *Service) Cancel(ctx context.Context, accountID string) (Account, error) {
	a, sub, err := s.subscribed(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if _, err := s.payments.CancelSubscription(ctx, sub); err != nil {
		return Account{}, err
	}
	a.Status = StatusExpired
	a.AutoRenew = false
	if err := s.repo.Save(ctx, a); err != nil {
		return Account{}, err
	}
	s.record(ctx, a.ID, "subscription cancelled")
	return a, nil
}

func (s *Service) subscribed(ctx context.Context, accountID string) (Account, string, error) {
	if s.payments == nil {
		return Account{}, "", ErrPaymentsNotConfigured
	}
	a, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return Account{}, "", err
	}
	if a.StripeSubscriptionID == "" {
		return Account{}, "", ErrNoSubscription
	}
	return a, a.StripeSubscriptionID, nil
}

// CheckoutCompleted is a paid checkout reported by the provider.
type CheckoutCompleted struct {
	AccountID      string
	CustomerID     string
	SubscriptionID string
	Tier           Tier
	AutoRenew      bool
}

func (s *Service) HandleCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	if ev.AccountID == "" || !ev.Tier.Paid() {
		return fmt.Errorf("%w: checkout without account or paid tier", ErrInvalidArgument)
	}
	a, err := s.EnsureAccount(ctx, ev.AccountID, "")
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	a.Tier = ev.Tier
	a.Status = StatusActive
	a.StripeCustomerID = ev.CustomerID
	a.StripeSubscriptionID = ev.SubscriptionID
	a.AutoRenew = ev.AutoRenew
	a.CallsThisPeriod = 0
	a.PeriodStart = &now
	a.PeriodEnd = nil

	if s.payments != nil && ev.SubscriptionID != "" {
		sub, err := s.payments.GetSubscription(ctx, ev.SubscriptionID)
		if err != nil {
			return err
		}
		applyPeriod(&a, sub)
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return err
	}
	s.record(ctx, a.ID, "subscribed to "+string(a.Tier))
	return nil
}

// HandleSubscriptionChanged syncs renewals, auto-renew flips and terminations.
func (s *Service) HandleSubscriptionChanged(ctx context.Context, sub Subscription) error {
	a, err := s.repo.FindBySubscription(ctx, sub.ID)
	if errors.Is(err, ErrNotFound) {
		// Checkout completion has not been processed yet.
		return nil
	}
	if err != nil {
		return err
	}

	if sub.Active() {
		a.Status = StatusActive
	} else {
		a.Status = StatusExpired
	}
	a.AutoRenew = !sub.CancelAtPeriodEnd && sub.Active()
	applyPeriod(&a, sub)
	if err := s.repo.Save(ctx, a); err != nil {
		return err
	}
	s.record(ctx, a.ID, "subscription "+sub.Status)
	return nil
}

// applyPeriod copies the provider period; a new period resets usage.
func applyPeriod(a *Account, sub Subscription) {
	if !sub.PeriodStart.IsZero() {
		start := sub.PeriodStart
		if a.PeriodStart == nil || !a.PeriodStart.Equal(start) {
			a.CallsThisPeriod = 0
		}
		a.PeriodStart = &start
	}
	if !sub.PeriodEnd.IsZero() {
		end := sub.PeriodEnd
		a.PeriodEnd = &end
	}
}

// VoiceLimit is the voice agent capacity of the account's plan.
// Expired accounts fall back to trial limits.
func (s *Service) VoiceLimit(ctx context.Context, accountID string) (int, error) {
	l, err := s.limits(ctx, accountID)
	return l.Voices, err
}

// IntegrationLimit is the CRM and calendar integration capacity of the plan.
func (s *Service) IntegrationLimit(ctx context.Context, accountID string) (int, error) {
	l, err := s.limits(ctx, accountID)
	return l.Integrations, err
}

func (s *Service) limits(ctx context.Context, accountID string) (Limits, error) {
	a, err := s.EnsureAccount(ctx, accountID, "")
	if err != nil {
		return Limits{}, err
	}
	if a.Status != StatusActive {
		return PlanFor(TierTrial).Limits, nil
	}
	return PlanFor(a.Tier).Limits, nil
}

// SetNotifications replaces the account's notification preferences.
func (s *Service) SetNotifications(ctx context.Context, accountID string, p NotificationPreferences) (Account, error) {
	if err := p.Validate(); err != nil {
		return Account{}, err
	}
	a, err := s.EnsureAccount(ctx, accountID, "")
	if err != nil {
		return Account{}, err
	}
	a.Notifications = p
	if err := s.repo.Save(ctx, a); err != nil {
		return Account{}, err
	}
	s.record(ctx, a.ID, "notification preferences updated")
	return a, nil
}

func (s *Service) CanStartCall(ctx context.Context, accountID string) (bool, error) {
	a, err := s.EnsureAccount(ctx, accountID, "")
	if err != nil {
		return false, err
	}
	return a.CanStartCall(), nil
}

// RecordCall counts one started call.
func (s *Service) RecordCall(ctx context.Context, accountID string) error {
	_, err := s.repo.Consume(ctx, accountID)
	return err
}

func (s *Service) record(ctx context.Context, accountID, msg string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, audit.Event{AccountID: accountID, Type: audit.EventTypeBilling, Message: msg}); err != nil {
		s.log.Warn("billing audit append failed", "account_id", accountID, "err", err)
	}
}
