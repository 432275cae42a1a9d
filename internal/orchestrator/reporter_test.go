package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
)

type auditCall struct{ from, to, note string }

type fakeAudit struct {
	calls []auditCall
	err   error
}

func (f *fakeAudit) LogCallTransition(ctx context.Context, accountID, callID, from, to, note string) error {
	f.calls = append(f.calls, auditCall{from, to, note})
	return f.err
}

type fakeCallbacks struct{ sent []string }

func (f *fakeCallbacks) NotifyStatus(ctx context.Context, c calls.Call) { f.sent = append(f.sent, c.ID) }

type fakeSink struct{ finished []string }

func (f *fakeSink) CallFinished(ctx context.Context, c calls.Call) {
	f.finished = append(f.finished, c.ID)
}

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestReporterFansOutTransition(t *testing.T) {
	hub := events.NewHub(quietLog())
	sub, cancel := hub.Subscribe("acct")
	defer cancel()
	au := &fakeAudit{}
	cb := &fakeCallbacks{}
	sink := &fakeSink{}
	r := &Reporter{Events: hub, Audit: au, Callbacks: cb, Integrations: sink, Log: quietLog()}

	c := calls.Call{
		ID:          "c1",
		AccountID:   "acct",
		Status:      calls.StatusCompleted,
		Outcome:     calls.OutcomeCompleted,
		CallbackURL: "https://hooks.example/cb",
		Notes:       "Property Address: 1 Main St\n\nCall completed successfully. Duration: 12 seconds",
	}
	r.CallTransitioned(context.Background(), calls.StatusInProgress, c)

	e := <-sub
	if e.Type != events.TypeCallStatus || e.CallID != "c1" || e.Status != "completed" || e.Outcome != "completed" {
		t.Fatalf("unexpected event %+v", e)
	}
	if len(au.calls) != 1 || au.calls[0] != (auditCall{"in-progress", "completed", "Call completed successfully. Duration: 12 seconds"}) {
		t.Fatalf("unexpected audit %+v", au.calls)
	}
	if len(cb.sent) != 1 {
		t.Fatalf("expected a callback for a terminal call")
	}
	if len(sink.finished) != 1 || sink.finished[0] != "c1" {
		t.Fatalf("expected integrations to receive the finished call, got %v", sink.finished)
	}
}

func TestReporterSkipsCallbackForOpenCalls(t *testing.T) {
	cb := &fakeCallbacks{}
	sink := &fakeSink{}
	r := &Reporter{Callbacks: cb, Integrations: sink, Audit: &fakeAudit{err: errors.New("db down")}, Log: quietLog()}

	r.CallTransitioned(context.Background(), calls.StatusScheduled, calls.Call{
		ID: "c1", AccountID: "acct", Status: calls.StatusInProgress, CallbackURL: "https://hooks.example/cb",
	})
	r.CallTransitioned(context.Background(), calls.StatusInProgress, calls.Call{
		ID: "c2", AccountID: "acct", Status: calls.StatusMissed,
	})
	if len(cb.sent) != 0 {
		t.Fatalf("expected no callbacks, got %v", cb.sent)
	}
	if len(sink.finished) != 1 || sink.finished[0] != "c2" {
		t.Fatalf("only the missed call is finished, got %v", sink.finished)
	}

	var nilReporter *Reporter
	nilReporter.CallTransitioned(context.Background(), calls.StatusScheduled, calls.Call{})
}

func TestLastNote(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"only":            "only",
		"first\n\nsecond": "second",
		"a\n\nb\n\nc":     "c",
		"line\nwrapped":   "line\nwrapped",
	}
	for in, want := range cases {
		if got := lastNote(in); got != want {
			t.Fatalf("lastNote(%q) = %q, want %q", in, got, want)
		}
	}
}
