package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v84"
)

// Payments is the subset of the payment provider the service needs.
type Payments interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error)
}

type CheckoutRequest struct {
	AccountID  string
	Tier       Tier
	PriceID    string
	AutoRenew  bool
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Subscription is the provider-neutral view of a subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
}

// Active reports whether the provider still bills the subscription.
func (s Subscription) Active() bool {
	return s.Status == string(stripe.SubscriptionStatusActive) || s.Status == string(stripe.SubscriptionStatusTrialing)
}

// StripePayments implements Payments with the Stripe API.
type StripePayments struct {
	sc *stripe.Client
}

func NewStripePayments(secretKey string) *StripePayments {
	return &StripePayments{sc: stripe.NewClient(secretKey)}
}

func (p *StripePayments) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.AccountID),
		Metadata: map[string]string{
			"account_id": req.AccountID,
			"tier":       string(req.Tier),
			"auto_renew": strconv.FormatBool(req.AutoRenew),
		},
	}
	s, err := p.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripePayments) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (Subscription, error) {
	s, err := p.sc.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	})
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe: update subscription: %w", err)
	}
	return fromStripe(s), nil
}

func (p *StripePayments) CancelSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	s, err := p.sc.V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{})
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe: cancel subscription: %w", err)
	}
	return fromStripe(s), nil
}

func (p *StripePayments) GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	s, err := p.sc.V1Subscriptions.Retrieve(ctx, subscriptionID, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return Subscription{}, ErrNoSubscription
		}
		return Subscription{}, fmt.Errorf("stripe: retrieve subscription: %w", err)
	}
	return fromStripe(s), nil
}

// fromStripe reads the billing period from the first item; subscriptions here
// always carry a single price.
func fromStripe(s *stripe.Subscription) Subscription {
	if s == nil {
		return Subscription{}
	}
	out := Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0] != nil {
		item := s.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			out.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			out.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return out
}
