package billing

import (
	"errors"
	"fmt"
	"time"
)

type Tier string

const (
	TierTrial      Tier = "trial"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

type Status string

const (
	StatusTrial   Status = "trial"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Unlimited marks a limit without a cap.
const Unlimited = -1

// TrialCalls is the call allowance of a new account.
const TrialCalls = 50

type Limits struct {
	Calls        int `json:"calls"`
	Voices       int `json:"voices"`
	Integrations int `json:"integrations"`
}

type Plan struct {
	Tier     Tier   `json:"tier"`
	Name     string `json:"name"`
	PriceUSD int    `json:"price_usd"`
	Limits   Limits `json:"limits"`
}

var plans = map[Tier]Plan{
	TierTrial:      {Tier: TierTrial, Name: "Free Trial", PriceUSD: 0, Limits: Limits{Calls: TrialCalls, Voices: 2, Integrations: 1}},
	TierStarter:    {Tier: TierStarter, Name: "Starter", PriceUSD: 10, Limits: Limits{Calls: 100, Voices: 2, Integrations: 1}},
	TierPro:        {Tier: TierPro, Name: "Professional", PriceUSD: 49, Limits: Limits{Calls: 1000, Voices: 10, Integrations: 5}},
	TierEnterprise: {Tier: TierEnterprise, Name: "Enterprise", PriceUSD: 199, Limits: Limits{Calls: Unlimited, Voices: Unlimited, Integrations: Unlimited}},
}

// PlanFor returns the plan of tier; unknown tiers get the trial plan.
func PlanFor(t Tier) Plan {
	if p, ok := plans[t]; ok {
		return p
	}
	return plans[TierTrial]
}

// Plans lists every plan, cheapest first.
func Plans() []Plan {
	return []Plan{plans[TierTrial], plans[TierStarter], plans[TierPro], plans[TierEnterprise]}
}

func (t Tier) Paid() bool {
	return t == TierStarter || t == TierPro || t == TierEnterprise
}

// Account is the billing state of one tenant.
type Account struct {
	ID           string `json:"id" db:"id"`
	BusinessName string `json:"business_name" db:"business_name"`

	Tier   Tier   `json:"tier" db:"tier"`
	Status Status `json:"status" db:"status"`

	TrialCallsRemaining int `json:"trial_calls_remaining" db:"trial_calls_remaining"`
	// CallsThisPeriod counts calls started since PeriodStart on a paid plan.
	CallsThisPeriod int `json:"calls_this_period" db:"calls_this_period"`

	StripeCustomerID     string `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID string `json:"-" db:"stripe_subscription_id"`
	AutoRenew            bool   `json:"auto_renew" db:"auto_renew"`

	PeriodStart *time.Time `json:"period_start,omitempty" db:"period_start"`
	PeriodEnd   *time.Time `json:"period_end,omitempty" db:"period_end"`

	Notifications NotificationPreferences `json:"notifications" db:"notification_preferences"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewTrialAccount is the state of a freshly registered account.
func NewTrialAccount(id string, now time.Time) Account {
	return Account{
		ID:                  id,
		Tier:                TierTrial,
		Status:              StatusTrial,
		TrialCallsRemaining: TrialCalls,
		Notifications:       DefaultNotifications(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// NotificationPreferences are the account's reminder and report settings.
type NotificationPreferences struct {
	EmailReminders     bool `json:"email_reminders"`
	SMSReminders       bool `json:"sms_reminders"`
	ReminderDaysBefore int  `json:"reminder_days_before"`
	CallSummaries      bool `json:"call_summaries"`
	WeeklyReports      bool `json:"weekly_reports"`
	SystemAlerts       bool `json:"system_alerts"`
}

// MaxReminderDays bounds how early a renewal reminder can be asked for.
const MaxReminderDays = 30

func DefaultNotifications() NotificationPreferences {
	return NotificationPreferences{
		EmailReminders:     true,
		ReminderDaysBefore: 7,
		CallSummaries:      true,
		WeeklyReports:      true,
		SystemAlerts:       true,
	}
}

func (p NotificationPreferences) Validate() error {
	if p.ReminderDaysBefore < 1 || p.ReminderDaysBefore > MaxReminderDays {
		return fmt.Errorf("%w: reminder_days_before must be between 1 and %d", ErrInvalidArgument, MaxReminderDays)
	}
	return nil
}

// RenewalReminderAt is ReminderDaysBefore ahead of the period end for an
// active subscription with email or SMS reminders on. Otherwise nil.
func (a Account) RenewalReminderAt() *time.Time {
	n := a.Notifications
	if a.Status != StatusActive || a.PeriodEnd == nil || !(n.EmailReminders || n.SMSReminders) {
		return nil
	}
	at := a.PeriodEnd.AddDate(0, 0, -n.ReminderDaysBefore)
	return &at
}

// CanStartCall reports whether the plan still allows a call.
func (a Account) CanStartCall() bool {
	switch a.Status {
	case StatusTrial:
		return a.TrialCallsRemaining > 0
	case StatusActive:
		limit := PlanFor(a.Tier).Limits.Calls
		return limit == Unlimited || a.CallsThisPeriod < limit
	default:
		return false
	}
}

// consume records one started call.
func (a Account) consume() Account {
	if a.Status == StatusTrial {
		if a.TrialCallsRemaining > 0 {
			a.TrialCallsRemaining--
		}
		return a
	}
	a.CallsThisPeriod++
	return a
}

var (
	ErrNotFound              = errors.New("billing: not found")
	ErrInvalidArgument       = errors.New("billing: invalid argument")
	ErrNoSubscription        = errors.New("billing: account has no subscription")
	ErrPaymentsNotConfigured = errors.New("billing: payments not configured")
)
