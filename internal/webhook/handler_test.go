package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/voices"

	"github.com/gin-gonic/gin"
)

var fixedNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type gateway struct {
	router *gin.Engine
	store  *calls.MemoryStore
	voice  voices.VoiceProfile
	audit  *audit.MemoryRepo
	hub    *events.Hub
	notify *Notifier
}

func newGateway(t *testing.T, guard Guard) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	vs := voices.NewService(voices.NewMemoryStore())
	voice, err := vs.Create(context.Background(), "acct", voices.CreateRequest{Name: "Ava", VoiceID: "EXAVITQu4vr4xnSDxMaL"})
	if err != nil {
		t.Fatalf("create voice: %v", err)
	}

	g := &gateway{store: calls.NewMemoryStore(), voice: voice, audit: audit.NewMemoryRepo(), hub: events.NewHub(nil)}
	auditSvc := audit.NewService(g.audit)
	g.notify = NewNotifier(time.Second, g.hub, auditSvc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	h := Handler{
		Voices:    vs,
		Scheduler: calls.NewService(g.store, calls.WithClock(func() time.Time { return fixedNow }), calls.WithInboundDelay(60*time.Second)),
		Guard:     guard,
		Notifier:  g.notify,
		Events:    g.hub,
		Audit:     auditSvc,
	}
	g.router = gin.New()
	g.router.POST("/webhook/schedule-call/:voiceId", h.ScheduleCall)
	g.router.POST("/webhook/schedule-call", h.ScheduleCall)
	return g
}

func (g *gateway) post(path string, body []byte, signature string) (*httptest.ResponseRecorder, Response) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}
	g.router.ServeHTTP(w, req)
	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func payloadBytes(t *testing.T, p Payload) []byte {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func validPayload() Payload {
	return Payload{ContactName: "Jane", PhoneNumber: "+15550102030", PropertyAddress: "12 Elm St"}
}

func TestMissingSignatureIs401(t *testing.T) {
	g := newGateway(t, nil)
	w, resp := g.post("/webhook/schedule-call/"+g.voice.ID, payloadBytes(t, validPayload()), "")
	if w.Code != http.StatusUnauthorized || resp.Error != "Missing webhook signature" || resp.Success {
		t.Fatalf("unexpected %d %+v", w.Code, resp)
	}
}

func TestMissingVoiceIDIs400(t *testing.T) {
	g := newGateway(t, nil)
	w, _ := g.post("/webhook/schedule-call", payloadBytes(t, validPayload()), "sig")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUnknownVoiceIs401(t *testing.T) {
	g := newGateway(t, nil)
	w, resp := g.post("/webhook/schedule-call/unknown", payloadBytes(t, validPayload()), "sig")
	if w.Code != http.StatusUnauthorized || resp.Message != "Unauthorized request" {
		t.Fatalf("unexpected %d %+v", w.Code, resp)
	}
	if resp.Error != "Invalid voice agent or missing webhook secret" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
}

func TestForgedSignatureIs401(t *testing.T) {
	g := newGateway(t, nil)
	body := payloadBytes(t, validPayload())
	w, resp := g.post("/webhook/schedule-call/"+g.voice.ID, body, Sign("wrong-secret", body))
	if w.Code != http.StatusUnauthorized || resp.Error != "Invalid webhook signature" {
		t.Fatalf("unexpected %d %+v", w.Code, resp)
	}
	if n, _ := g.store.Query(context.Background(), calls.Filter{AccountID: "acct"}); len(n) != 0 {
		t.Fatalf("no call may be created")
	}
}

func TestInvalidJSONIs400(t *testing.T) {
	g := newGateway(t, nil)
	body := []byte(`{"contactName":`)
	w, _ := g.post("/webhook/schedule-call/"+g.voice.ID, body, Sign(g.voice.WebhookSecret, body))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestValidRequestSchedulesCall(t *testing.T) {
	g := newGateway(t, nil)
	events, cancel := g.hub.Subscribe("acct")
	defer cancel()

	body := payloadBytes(t, validPayload())
	w, resp := g.post("/webhook/schedule-call/"+g.voice.ID, body, "sha256="+Sign(g.voice.WebhookSecret, body))
	if w.Code != http.StatusOK || !resp.Success || resp.CallID == "" {
		t.Fatalf("unexpected %d %s", w.Code, w.Body.String())
	}
	if resp.Message != "Call scheduled successfully" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if resp.StartTime == nil || !resp.StartTime.Equal(fixedNow.Add(60*time.Second)) {
		t.Fatalf("expected start now+60s, got %v", resp.StartTime)
	}

	c, err := g.store.Get(context.Background(), resp.CallID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Status != calls.StatusScheduled || c.AccountID != "acct" || c.VoiceAgentID != g.voice.ID {
		t.Fatalf("unexpected call %+v", c)
	}
	if c.Notes != "Property Address: 12 Elm St" {
		t.Fatalf("unexpected notes %q", c.Notes)
	}

	select {
	case e := <-events:
		if e.Type != "call.scheduled" || e.CallID != c.ID {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected scheduled event")
	}

	var recorded bool
	for _, e := range g.audit.Events() {
		if e.Type == audit.EventTypeInboundSchedule && e.CallID == c.ID {
			recorded = e.IPAddress == "192.0.2.1"
		}
	}
	if !recorded {
		t.Fatalf("expected inbound schedule audit with client ip, got %+v", g.audit.Events())
	}
}

func TestRateLimitIs429(t *testing.T) {
	g := newGateway(t, NewMemoryGuard(1, time.Minute, time.Minute))
	first := payloadBytes(t, validPayload())
	if w, _ := g.post("/webhook/schedule-call/"+g.voice.ID, first, Sign(g.voice.WebhookSecret, first)); w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}
	p := validPayload()
	p.ContactName = "John"
	second := payloadBytes(t, p)
	if w, _ := g.post("/webhook/schedule-call/"+g.voice.ID, second, Sign(g.voice.WebhookSecret, second)); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestReplayIs409(t *testing.T) {
	g := newGateway(t, NewMemoryGuard(10, time.Minute, time.Minute))
	body := payloadBytes(t, validPayload())
	sig := Sign(g.voice.WebhookSecret, body)
	if w, _ := g.post("/webhook/schedule-call/"+g.voice.ID, body, sig); w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}
	if w, _ := g.post("/webhook/schedule-call/"+g.voice.ID, body, sig); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

type failingScheduler struct{}

func (failingScheduler) ScheduleInbound(ctx context.Context, req calls.InboundRequest) (calls.Call, error) {
	return calls.Call{}, io.ErrUnexpectedEOF
}

func TestStoreFailureIs500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	vs := voices.NewService(voices.NewMemoryStore())
	voice, _ := vs.Create(context.Background(), "acct", voices.CreateRequest{Name: "Ava", VoiceID: "v"})
	r := gin.New()
	r.POST("/webhook/schedule-call/:voiceId", Handler{Voices: vs, Scheduler: failingScheduler{}}.ScheduleCall)

	body := payloadBytes(t, validPayload())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/schedule-call/"+voice.ID, bytes.NewReader(body))
	req.Header.Set(HeaderSignature, Sign(voice.WebhookSecret, body))
	r.ServeHTTP(w, req)

	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusInternalServerError || resp.Error != "Internal server error" || resp.Message != "Failed to schedule call" {
		t.Fatalf("unexpected %d %+v", w.Code, resp)
	}
}

// flakyScheduler fails its first call and delegates afterwards.
type flakyScheduler struct {
	mu     sync.Mutex
	failed bool
	next   Scheduler
}

func (f *flakyScheduler) ScheduleInbound(ctx context.Context, req calls.InboundRequest) (calls.Call, error) {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return calls.Call{}, io.ErrUnexpectedEOF
	}
	return f.next.ScheduleInbound(ctx, req)
}

func TestRetryAfterStoreFailureIsAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	vs := voices.NewService(voices.NewMemoryStore())
	voice, _ := vs.Create(context.Background(), "acct", voices.CreateRequest{Name: "Ava", VoiceID: "v"})
	store := calls.NewMemoryStore()
	sched := &flakyScheduler{next: calls.NewService(store)}
	r := gin.New()
	r.POST("/webhook/schedule-call/:voiceId", Handler{
		Voices:    vs,
		Scheduler: sched,
		Guard:     NewMemoryGuard(100, time.Minute, time.Hour),
	}.ScheduleCall)

	body := payloadBytes(t, validPayload())
	sig := Sign(voice.WebhookSecret, body)
	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/schedule-call/"+voice.ID, bytes.NewReader(body))
		req.Header.Set(HeaderSignature, sig)
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(); w.Code != http.StatusInternalServerError {
		t.Fatalf("first attempt: expected 500, got %d", w.Code)
	}
	w := send()
	if w.Code != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d %s", w.Code, w.Body.String())
	}
	if got, _ := store.Query(context.Background(), calls.Filter{AccountID: "acct"}); len(got) != 1 {
		t.Fatalf("expected one call, got %d", len(got))
	}
	if w := send(); w.Code != http.StatusConflict {
		t.Fatalf("replay after success: expected 409, got %d", w.Code)
	}
}

func TestCallbackReceivesScheduledStatus(t *testing.T) {
	var (
		mu  sync.Mutex
		got StatusPayload
	)
	cb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer cb.Close()

	g := newGateway(t, nil)
	p := validPayload()
	p.CallbackURL = cb.URL
	p.Metadata = json.RawMessage(`{"crm_id":"lead-42"}`)
	body := payloadBytes(t, p)
	_, resp := g.post("/webhook/schedule-call/"+g.voice.ID, body, Sign(g.voice.WebhookSecret, body))
	g.notify.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got.CallID != resp.CallID || got.Status != "scheduled" || got.ScheduledTime == nil {
		t.Fatalf("unexpected callback payload %+v", got)
	}
	var meta map[string]string
	if err := json.Unmarshal(got.Metadata, &meta); err != nil || meta["crm_id"] != "lead-42" {
		t.Fatalf("expected metadata echoed back, got %s", got.Metadata)
	}
}

func TestCallbackFailureIsObservable(t *testing.T) {
	cb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer cb.Close()

	g := newGateway(t, nil)
	events, cancel := g.hub.Subscribe("acct")
	defer cancel()

	p := validPayload()
	p.CallbackURL = cb.URL
	body := payloadBytes(t, p)
	w, resp := g.post("/webhook/schedule-call/"+g.voice.ID, body, Sign(g.voice.WebhookSecret, body))
	if w.Code != http.StatusOK {
		t.Fatalf("callback failure must not affect the response, got %d", w.Code)
	}
	g.notify.Wait()

	failed := false
	for len(events) > 0 {
		if e := <-events; e.Type == "callback.failed" && e.CallID == resp.CallID {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("expected callback.failed event")
	}

	found := false
	for _, e := range g.audit.Events() {
		if e.Type == audit.EventTypeCallbackFailed && e.CallID == resp.CallID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected callback failure in audit trail")
	}
}
