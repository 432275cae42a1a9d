package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
)

// CallbackAudit records undeliverable callbacks.
type CallbackAudit interface {
	LogCallbackFailure(ctx context.Context, accountID, callID, url string, cause error) error
}

// Notifier POSTs call status to a call's callback URL.
//
// Delivery is at-most-once and never blocks the caller. A failed delivery is
// logged, audited and published as a callback.failed event.
type Notifier struct {
	http   *http.Client
	events events.Publisher
	audit  CallbackAudit
	log    *slog.Logger

	wg sync.WaitGroup
}

func NewNotifier(timeout time.Duration, pub events.Publisher, audit CallbackAudit, log *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{http: &http.Client{Timeout: timeout}, events: pub, audit: audit, log: log}
}

// StatusPayload is the JSON body sent to callback URLs.
type StatusPayload struct {
	CallID        string     `json:"callId"`
	Status        string     `json:"status"`
	Outcome       string     `json:"outcome,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	Duration      *int       `json:"duration,omitempty"`
	Transcription string     `json:"transcription,omitempty"`
	// Metadata echoes what the producer sent when scheduling.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func payloadFor(c calls.Call) StatusPayload {
	p := StatusPayload{CallID: c.ID, Status: string(c.Status), Outcome: string(c.Outcome), Metadata: c.Metadata}
	if c.Status == calls.StatusScheduled {
		t := c.StartTime
		p.ScheduledTime = &t
		return p
	}
	p.EndTime = c.EndTime
	if c.Status == calls.StatusCompleted {
		d := c.Duration
		p.Duration = &d
		p.Transcription = c.Transcription
	}
	return p
}

// NotifyStatus sends c's status to c.CallbackURL in the background.
func (n *Notifier) NotifyStatus(ctx context.Context, c calls.Call) {
	if c.CallbackURL == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.deliver(ctx, c.CallbackURL, payloadFor(c)); err != nil {
			n.fail(ctx, c, err)
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) deliver(ctx context.Context, url string, payload StatusPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to notify callback URL: %s", resp.Status)
	}
	return nil
}

func (n *Notifier) fail(ctx context.Context, c calls.Call, err error) {
	n.log.Error("callback delivery failed", "call_id", c.ID, "account_id", c.AccountID, "status", string(c.Status), "err", err)
	if n.audit != nil {
		if aerr := n.audit.LogCallbackFailure(ctx, c.AccountID, c.ID, c.CallbackURL, err); aerr != nil {
			n.log.Warn("audit callback failure failed", "call_id", c.ID, "err", aerr)
		}
	}
	if n.events != nil {
		n.events.Publish(ctx, events.Event{
			Type:      events.TypeCallbackFailed,
			AccountID: c.AccountID,
			CallID:    c.ID,
			Status:    string(c.Status),
			Message:   err.Error(),
		})
	}
}
