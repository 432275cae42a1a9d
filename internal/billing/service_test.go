package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-agent-platform/internal/audit"
)

type fakePayments struct {
	checkouts []CheckoutRequest
	sub       Subscription
	err       error
	cancelled []string
}

func (f *fakePayments) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if f.err != nil {
		return CheckoutSession{}, f.err
	}
	f.checkouts = append(f.checkouts, req)
	return CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

func (f *fakePayments) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (Subscription, error) {
	if f.err != nil {
		return Subscription{}, f.err
	}
	f.sub.ID = id
	f.sub.CancelAtPeriodEnd = cancel
	return f.sub, nil
}

func (f *fakePayments) CancelSubscription(ctx context.Context, id string) (Subscription, error) {
	if f.err != nil {
		return Subscription{}, f.err
	}
	f.cancelled = append(f.cancelled, id)
	f.sub.Status = "canceled"
	return f.sub, nil
}

func (f *fakePayments) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	if f.err != nil {
		return Subscription{}, f.err
	}
	return f.sub, nil
}

var prices = map[string]string{"starter": "price_s", "pro": "price_p", "enterprise": "price_e"}

func newPaidService(t *testing.T, pay *fakePayments) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := NewService(repo, WithPayments(pay, prices, RedirectURLs{Success: "https://app/ok", Cancel: "https://app/cancel"}))
	return svc, repo
}

func TestEnsureAccountStartsTrial(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	a, err := svc.EnsureAccount(ctx, "acct", "Acme Realty")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if a.Tier != TierTrial || a.Status != StatusTrial || a.TrialCallsRemaining != TrialCalls {
		t.Fatalf("unexpected new account: %+v", a)
	}
	again, err := svc.EnsureAccount(ctx, "acct", "Other Name")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.BusinessName != "Acme Realty" {
		t.Fatalf("existing account must not be overwritten, got %q", again.BusinessName)
	}
	if _, err := svc.EnsureAccount(ctx, " ", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTrialAllowanceIsConsumed(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a := NewTrialAccount("acct", time.Now())
	a.TrialCallsRemaining = 1
	if _, err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := svc.CanStartCall(ctx, "acct")
	if err != nil || !ok {
		t.Fatalf("expected allowance, got %v %v", ok, err)
	}
	if err := svc.RecordCall(ctx, "acct"); err != nil {
		t.Fatalf("record: %v", err)
	}
	ok, _ = svc.CanStartCall(ctx, "acct")
	if ok {
		t.Fatalf("expected trial exhausted")
	}
	st, _ := svc.Status(ctx, "acct")
	if st.CallsRemaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", st.CallsRemaining)
	}

	// Never goes negative.
	if err := svc.RecordCall(ctx, "acct"); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ := repo.Get(ctx, "acct")
	if got.TrialCallsRemaining != 0 {
		t.Fatalf("expected 0, got %d", got.TrialCallsRemaining)
	}
}

func TestPaidPlanCallLimit(t *testing.T) {
	a := Account{Tier: TierStarter, Status: StatusActive, CallsThisPeriod: 99}
	if !a.CanStartCall() {
		t.Fatalf("99 of 100 should allow a call")
	}
	a = a.consume()
	if a.CanStartCall() {
		t.Fatalf("100 of 100 should block")
	}

	ent := Account{Tier: TierEnterprise, Status: StatusActive, CallsThisPeriod: 1_000_000}
	if !ent.CanStartCall() {
		t.Fatalf("enterprise is unlimited")
	}
	if callsRemaining(ent) != Unlimited {
		t.Fatalf("expected unlimited remaining")
	}

	expired := Account{Tier: TierPro, Status: StatusExpired}
	if expired.CanStartCall() {
		t.Fatalf("expired accounts cannot start calls")
	}
}

func TestVoiceLimitFollowsPlan(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	n, err := svc.VoiceLimit(ctx, "trial")
	if err != nil || n != 2 {
		t.Fatalf("trial: expected 2, got %d %v", n, err)
	}

	pro := NewTrialAccount("pro", time.Now())
	pro.Tier, pro.Status = TierPro, StatusActive
	repo.Create(ctx, pro)
	if n, _ := svc.VoiceLimit(ctx, "pro"); n != 10 {
		t.Fatalf("pro: expected 10, got %d", n)
	}

	ent := NewTrialAccount("ent", time.Now())
	ent.Tier, ent.Status = TierEnterprise, StatusActive
	repo.Create(ctx, ent)
	if n, _ := svc.VoiceLimit(ctx, "ent"); n != Unlimited {
		t.Fatalf("enterprise: expected unlimited, got %d", n)
	}

	lapsed := NewTrialAccount("lapsed", time.Now())
	lapsed.Tier, lapsed.Status = TierEnterprise, StatusExpired
	repo.Create(ctx, lapsed)
	if n, _ := svc.VoiceLimit(ctx, "lapsed"); n != 2 {
		t.Fatalf("expired: expected trial limit, got %d", n)
	}
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	if _, err := NewService(NewMemoryRepo()).Checkout(ctx, "acct", TierPro, true); !errors.Is(err, ErrPaymentsNotConfigured) {
		t.Fatalf("expected ErrPaymentsNotConfigured, got %v", err)
	}

	pay := &fakePayments{}
	svc, _ := newPaidService(t, pay)
	if _, err := svc.Checkout(ctx, "acct", TierTrial, true); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("trial cannot be purchased, got %v", err)
	}

	s, err := svc.Checkout(ctx, "acct", TierPro, false)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if s.URL == "" || len(pay.checkouts) != 1 {
		t.Fatalf("expected a session, got %+v", s)
	}
	req := pay.checkouts[0]
	if req.PriceID != "price_p" || req.AutoRenew || req.AccountID != "acct" || req.SuccessURL != "https://app/ok" {
		t.Fatalf("unexpected checkout request: %+v", req)
	}
}

func TestCheckoutCompletedActivatesPlan(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pay := &fakePayments{sub: Subscription{ID: "sub_1", Status: "active", PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0)}}
	svc, repo := newPaidService(t, pay)
	ctx := context.Background()

	trial, _ := svc.EnsureAccount(ctx, "acct", "")
	trial.TrialCallsRemaining = 3
	repo.Save(ctx, trial)

	err := svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{
		AccountID: "acct", CustomerID: "cus_1", SubscriptionID: "sub_1", Tier: TierStarter, AutoRenew: true,
	})
	if err != nil {
		t.Fatalf("checkout completed: %v", err)
	}
	a, _ := repo.Get(ctx, "acct")
	if a.Tier != TierStarter || a.Status != StatusActive || !a.AutoRenew {
		t.Fatalf("unexpected account: %+v", a)
	}
	if a.PeriodEnd == nil || !a.PeriodEnd.Equal(start.AddDate(0, 1, 0)) {
		t.Fatalf("expected period end from subscription, got %v", a.PeriodEnd)
	}
	if _, err := repo.FindBySubscription(ctx, "sub_1"); err != nil {
		t.Fatalf("expected lookup by subscription: %v", err)
	}

	if err := svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{AccountID: "acct", Tier: TierTrial}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSubscriptionChanged(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pay := &fakePayments{sub: Subscription{ID: "sub_1", Status: "active", PeriodStart: start}}
	svc, repo := newPaidService(t, pay)
	ctx := context.Background()
	if err := svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{AccountID: "acct", SubscriptionID: "sub_1", Tier: TierPro, AutoRenew: true}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	for range 5 {
		svc.RecordCall(ctx, "acct")
	}

	// Same period, auto-renew switched off: usage kept.
	if err := svc.HandleSubscriptionChanged(ctx, Subscription{ID: "sub_1", Status: "active", CancelAtPeriodEnd: true, PeriodStart: start}); err != nil {
		t.Fatalf("changed: %v", err)
	}
	a, _ := repo.Get(ctx, "acct")
	if a.AutoRenew || a.CallsThisPeriod != 5 {
		t.Fatalf("unexpected account: %+v", a)
	}

	// Renewal resets usage.
	next := start.AddDate(0, 1, 0)
	svc.HandleSubscriptionChanged(ctx, Subscription{ID: "sub_1", Status: "active", PeriodStart: next})
	a, _ = repo.Get(ctx, "acct")
	if a.CallsThisPeriod != 0 || !a.AutoRenew {
		t.Fatalf("expected usage reset on renewal: %+v", a)
	}

	svc.HandleSubscriptionChanged(ctx, Subscription{ID: "sub_1", Status: "canceled", PeriodStart: next})
	a, _ = repo.Get(ctx, "acct")
	if a.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", a.Status)
	}

	if err := svc.HandleSubscriptionChanged(ctx, Subscription{ID: "sub_unknown", Status: "active"}); err != nil {
		t.Fatalf("unknown subscriptions are ignored: %v", err)
	}
}

func TestAutoRenewAndCancel(t *testing.T) {
	pay := &fakePayments{sub: Subscription{Status: "active"}}
	svc, repo := newPaidService(t, pay)
	ctx := context.Background()

	svc.EnsureAccount(ctx, "acct", "")
	if _, err := svc.SetAutoRenew(ctx, "acct", false); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}

	if err := svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{AccountID: "acct", SubscriptionID: "sub_1", Tier: TierPro, AutoRenew: true}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	a, err := svc.SetAutoRenew(ctx, "acct", false)
	if err != nil {
		t.Fatalf("auto-renew: %v", err)
	}
	if a.AutoRenew || !pay.sub.CancelAtPeriodEnd {
		t.Fatalf("expected cancel at period end, got %+v / %+v", a, pay.sub)
	}

	a, err = svc.Cancel(ctx, "acct")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if a.Status != StatusExpired || len(pay.cancelled) != 1 || pay.cancelled[0] != "sub_1" {
		t.Fatalf("unexpected cancel result: %+v %v", a, pay.cancelled)
	}
	stored, _ := repo.Get(ctx, "acct")
	if stored.Status != StatusExpired {
		t.Fatalf("cancel not persisted")
	}
}

func TestProviderErrorsPropagate(t *testing.T) {
	boom := errors.New("stripe down")
	pay := &fakePayments{}
	svc, _ := newPaidService(t, pay)
	ctx := context.Background()
	svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{AccountID: "acct", SubscriptionID: "sub_1", Tier: TierPro})

	pay.err = boom
	if _, err := svc.Cancel(ctx, "acct"); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if _, err := svc.Checkout(ctx, "acct", TierPro, true); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestBillingChangesAreAudited(t *testing.T) {
	repo := audit.NewMemoryRepo()
	pay := &fakePayments{}
	svc := NewService(NewMemoryRepo(), WithPayments(pay, prices, RedirectURLs{}), WithAudit(audit.NewService(repo)))
	ctx := context.Background()

	if err := svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{AccountID: "acct", SubscriptionID: "sub_1", Tier: TierStarter}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeBilling || evs[0].Message != "subscribed to starter" {
		t.Fatalf("unexpected audit events: %+v", evs)
	}
}

func TestIntegrationLimitFollowsPlan(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if n, err := svc.IntegrationLimit(ctx, "trial"); err != nil || n != 1 {
		t.Fatalf("trial: expected 1, got %d %v", n, err)
	}

	pro := NewTrialAccount("pro", time.Now())
	pro.Tier, pro.Status = TierPro, StatusActive
	repo.Create(ctx, pro)
	if n, _ := svc.IntegrationLimit(ctx, "pro"); n != 5 {
		t.Fatalf("pro: expected 5, got %d", n)
	}

	lapsed := NewTrialAccount("lapsed", time.Now())
	lapsed.Tier, lapsed.Status = TierPro, StatusExpired
	repo.Create(ctx, lapsed)
	if n, _ := svc.IntegrationLimit(ctx, "lapsed"); n != 1 {
		t.Fatalf("expired: expected trial limit, got %d", n)
	}
}

func TestNotificationPreferences(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a, err := svc.EnsureAccount(ctx, "acct", "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if a.Notifications != DefaultNotifications() {
		t.Fatalf("expected default preferences, got %+v", a.Notifications)
	}

	bad := DefaultNotifications()
	bad.ReminderDaysBefore = 0
	if _, err := svc.SetNotifications(ctx, "acct", bad); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	bad.ReminderDaysBefore = MaxReminderDays + 1
	if _, err := svc.SetNotifications(ctx, "acct", bad); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	want := NotificationPreferences{SMSReminders: true, ReminderDaysBefore: 3, SystemAlerts: true}
	if _, err := svc.SetNotifications(ctx, "acct", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ := repo.Get(ctx, "acct")
	if got.Notifications != want {
		t.Fatalf("expected %+v stored, got %+v", want, got.Notifications)
	}
}

func TestRenewalReminderAt(t *testing.T) {
	end := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	a := NewTrialAccount("acct", time.Now())
	if a.RenewalReminderAt() != nil {
		t.Fatalf("trial accounts get no renewal reminder")
	}

	a.Tier, a.Status, a.PeriodEnd = TierStarter, StatusActive, &end
	at := a.RenewalReminderAt()
	if at == nil || !at.Equal(end.AddDate(0, 0, -7)) {
		t.Fatalf("expected reminder 7 days before period end, got %v", at)
	}

	a.Notifications.EmailReminders, a.Notifications.SMSReminders = false, false
	if a.RenewalReminderAt() != nil {
		t.Fatalf("no reminder when both channels are off")
	}
}
