package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/calls"
)

// Source lists the integrations a finished call is pushed to.
type Source interface {
	ActiveCRM(ctx context.Context, accountID string) ([]Integration, error)
}

// CallReport is the body posted to CRM webhooks when a call ends.
// Optional fields follow the integration's CallbackFields.
type CallReport struct {
	CallID        string          `json:"callId"`
	Status        string          `json:"status"`
	Outcome       string          `json:"outcome,omitempty"`
	ContactName   string          `json:"contactName"`
	PhoneNumber   string          `json:"phoneNumber"`
	Duration      int             `json:"duration"`
	EndTime       *time.Time      `json:"endTime,omitempty"`
	Transcription string          `json:"transcription,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	RecordingURL  string          `json:"recordingUrl,omitempty"`
	LocationID    string          `json:"locationId,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

func reportFor(i Integration, c calls.Call) CallReport {
	r := CallReport{
		CallID:      c.ID,
		Status:      string(c.Status),
		Outcome:     string(c.Outcome),
		ContactName: c.ContactName,
		PhoneNumber: c.PhoneNumber,
		Duration:    c.Duration,
		EndTime:     c.EndTime,
		LocationID:  i.Config.LocationID,
		Metadata:    c.Metadata,
	}
	f := DefaultCallbackFields()
	if i.Config.CallbackFields != nil {
		f = *i.Config.CallbackFields
	}
	if f.Transcript {
		r.Transcription = c.Transcription
	}
	if f.Summary {
		r.Summary = c.Notes
	}
	if f.Recording {
		r.RecordingURL = c.RecordingURL
	}
	return r
}

// Dispatcher pushes finished calls to the account's CRM integrations.
// Delivery runs in the background; failures are logged and audited.
type Dispatcher struct {
	source Source
	http   *http.Client
	audit  AuditAppender
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(source Source, timeout time.Duration, a AuditAppender, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{source: source, http: &http.Client{Timeout: timeout}, audit: a, log: log}
}

// CallFinished sends c to every active CRM integration of its account.
func (d *Dispatcher) CallFinished(ctx context.Context, c calls.Call) {
	if !c.Status.Terminal() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		targets, err := d.source.ActiveCRM(ctx, c.AccountID)
		if err != nil {
			d.log.Error("integration lookup failed", "call_id", c.ID, "account_id", c.AccountID, "err", err)
			return
		}
		for _, i := range targets {
			if err := d.deliver(ctx, i, reportFor(i, c)); err != nil {
				d.fail(ctx, i, c, err)
			}
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) deliver(ctx context.Context, i Integration, r CallReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.Config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if i.Kind == KindHighLevel && i.Config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+i.Config.APIKey)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("integration webhook answered %s", resp.Status)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, i Integration, c calls.Call, err error) {
	d.log.Error("integration delivery failed", "integration_id", i.ID, "call_id", c.ID, "account_id", c.AccountID, "err", err)
	if d.audit == nil {
		return
	}
	aerr := d.audit.Append(ctx, audit.Event{
		AccountID: c.AccountID,
		Type:      audit.EventTypeIntegration,
		CallID:    c.ID,
		Message:   fmt.Sprintf("delivery to %s failed: %v", i.Name, err),
	})
	if aerr != nil {
		d.log.Warn("integration audit append failed", "integration_id", i.ID, "err", aerr)
	}
}
