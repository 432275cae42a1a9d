package billing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84/webhook"
)

const whsec = "whsec_test"

func postStripe(t *testing.T, h WebhookHandler, payload []byte, header string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/billing/stripe/webhook", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/billing/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func signed(payload []byte) string {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    whsec,
		Timestamp: time.Now(),
	})
	return sp.Header
}

func TestStripeWebhookCheckoutCompleted(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	h := WebhookHandler{Service: svc, Secret: whsec}

	payload := []byte(`{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_1",
    "object": "checkout.session",
    "client_reference_id": "acct",
    "customer": "cus_1",
    "subscription": "sub_1",
    "metadata": {"tier": "pro", "auto_renew": "false"}
  }}
}`)
	if code := postStripe(t, h, payload, signed(payload)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	a, err := repo.Get(context.Background(), "acct")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Tier != TierPro || a.Status != StatusActive || a.AutoRenew || a.StripeSubscriptionID != "sub_1" || a.StripeCustomerID != "cus_1" {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestStripeWebhookSubscriptionDeleted(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	if err := svc.HandleCheckoutCompleted(ctx, CheckoutCompleted{AccountID: "acct", SubscriptionID: "sub_1", Tier: TierStarter}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	payload := []byte(`{
  "id": "evt_2",
  "object": "event",
  "type": "customer.subscription.deleted",
  "data": {"object": {"id": "sub_1", "object": "subscription", "status": "canceled", "cancel_at_period_end": false}}
}`)
	if code := postStripe(t, WebhookHandler{Service: svc, Secret: whsec}, payload, signed(payload)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	a, _ := repo.Get(ctx, "acct")
	if a.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", a.Status)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	h := WebhookHandler{Service: NewService(NewMemoryRepo()), Secret: whsec}
	payload := []byte(`{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	if code := postStripe(t, h, payload, "t=1,v1=deadbeef"); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if code := postStripe(t, WebhookHandler{Service: h.Service}, payload, signed(payload)); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without secret, got %d", code)
	}
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	h := WebhookHandler{Service: NewService(NewMemoryRepo()), Secret: whsec}
	payload := []byte(`{"id":"evt_4","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`)
	if code := postStripe(t, h, payload, signed(payload)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}
