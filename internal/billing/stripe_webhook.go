package billing

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const maxStripePayload = 65536

// WebhookHandler receives Stripe events. Unknown event types are acknowledged.
type WebhookHandler struct {
	Service *Service
	Secret  string
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stripe webhook not configured"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxStripePayload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warn("stripe webhook rejected", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}
	if event.Data == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event without data"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid checkout session"})
			return
		}
		err = h.Service.HandleCheckoutCompleted(ctx, checkoutFromStripe(&s))
	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription"})
			return
		}
		err = h.Service.HandleSubscriptionChanged(ctx, fromStripe(&s))
	default:
		log.Debug("stripe event ignored", "type", event.Type)
	}
	if err != nil {
		log.Error("stripe event failed", "type", event.Type, "event_id", event.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func checkoutFromStripe(s *stripe.CheckoutSession) CheckoutCompleted {
	out := CheckoutCompleted{
		AccountID: s.ClientReferenceID,
		Tier:      Tier(s.Metadata["tier"]),
		AutoRenew: true,
	}
	if out.AccountID == "" {
		out.AccountID = s.Metadata["account_id"]
	}
	if v, err := strconv.ParseBool(s.Metadata["auto_renew"]); err == nil {
		out.AutoRenew = v
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out
}
