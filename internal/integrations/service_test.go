package integrations

import (
	"context"
	"errors"
	"testing"

	"voice-agent-platform/internal/audit"
)

type fixedLimit int

func (l fixedLimit) IntegrationLimit(ctx context.Context, accountID string) (int, error) {
	return int(l), nil
}

func crmReq(name string) CreateRequest {
	return CreateRequest{
		Name:   name,
		Kind:   KindHighLevel,
		Config: Config{WebhookURL: "https://crm.example/hooks/calls", APIKey: "hl-key", LocationID: "loc-1"},
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	crm, err := svc.Create(ctx, "acct", crmReq("GoHighLevel"))
	if err != nil {
		t.Fatalf("create crm: %v", err)
	}
	if crm.Status != StatusActive || crm.Config.CallbackFields == nil || *crm.Config.CallbackFields != DefaultCallbackFields() {
		t.Fatalf("unexpected crm defaults %+v", crm)
	}

	cal, err := svc.Create(ctx, "acct", CreateRequest{
		Name:   "Team calendar",
		Kind:   KindCalendar,
		Config: Config{Provider: ProviderGoogle, SyncEnabled: true},
	})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	if cal.Config.SyncDirection != SyncTwoWay || cal.Config.CalendarID != "primary" {
		t.Fatalf("unexpected calendar defaults %+v", cal.Config)
	}
}

func TestCreateValidates(t *testing.T) {
	svc := NewService(NewMemoryStore())
	cases := map[string]CreateRequest{
		"no name":      {Kind: KindCustom, Config: Config{WebhookURL: "https://x.example"}},
		"unknown kind": {Name: "x", Kind: "salesforce", Config: Config{WebhookURL: "https://x.example"}},
		"relative url": {Name: "x", Kind: KindCustom, Config: Config{WebhookURL: "/hooks"}},
		"bad status":   {Name: "x", Kind: KindCustom, Status: "paused", Config: Config{WebhookURL: "https://x.example"}},
		"no provider":  {Name: "x", Kind: KindCalendar},
		"bad sync":     {Name: "x", Kind: KindCalendar, Config: Config{Provider: ProviderICal, SyncDirection: "both"}},
	}
	for name, req := range cases {
		if _, err := svc.Create(context.Background(), "acct", req); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestCreateEnforcesPlanLimit(t *testing.T) {
	svc := NewService(NewMemoryStore(), WithLimits(fixedLimit(1)))
	ctx := context.Background()
	if _, err := svc.Create(ctx, "acct", crmReq("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, "acct", crmReq("b")); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
	if _, err := svc.Create(ctx, "other", crmReq("b")); err != nil {
		t.Fatalf("limit is per account: %v", err)
	}

	unlimited := NewService(NewMemoryStore(), WithLimits(fixedLimit(-1)))
	for _, n := range []string{"a", "b", "c"} {
		if _, err := unlimited.Create(ctx, "acct", crmReq(n)); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
}

func TestUpdateKeepsAPIKeyWhenMasked(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()
	i, _ := svc.Create(ctx, "acct", crmReq("crm"))

	cfg := i.Redacted().Config
	cfg.WebhookURL = "https://crm.example/v2/hooks"
	inactive := StatusInactive
	got, err := svc.Update(ctx, "acct", i.ID, UpdateRequest{Config: &cfg, Status: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Config.APIKey != "hl-key" || got.Config.WebhookURL != "https://crm.example/v2/hooks" || got.Status != StatusInactive {
		t.Fatalf("unexpected update result %+v", got)
	}

	cfg.APIKey = "rotated"
	got, _ = svc.Update(ctx, "acct", i.ID, UpdateRequest{Config: &cfg})
	if got.Config.APIKey != "rotated" {
		t.Fatalf("expected rotated key, got %q", got.Config.APIKey)
	}
}

func TestAccountIsolationAndDelete(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()
	i, _ := svc.Create(ctx, "acct", crmReq("crm"))

	if _, err := svc.Get(ctx, "other", i.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across accounts, got %v", err)
	}
	if err := svc.Delete(ctx, "other", i.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across accounts, got %v", err)
	}
	if err := svc.Delete(ctx, "acct", i.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if list, _ := svc.List(ctx, "acct"); len(list) != 0 {
		t.Fatalf("expected no integrations, got %d", len(list))
	}
}

func TestDuplicateNamePerAccount(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()
	if _, err := svc.Create(ctx, "acct", crmReq("crm")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, "acct", crmReq("crm")); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestActiveCRMSkipsCalendarsAndInactive(t *testing.T) {
	repo := audit.NewMemoryRepo()
	svc := NewService(NewMemoryStore(), WithAudit(audit.NewService(repo)))
	ctx := context.Background()

	live, _ := svc.Create(ctx, "acct", crmReq("live"))
	off := crmReq("off")
	off.Status = StatusInactive
	if _, err := svc.Create(ctx, "acct", off); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, "acct", CreateRequest{Name: "cal", Kind: KindCalendar, Config: Config{Provider: ProviderOutlook}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.ActiveCRM(ctx, "acct")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(got) != 1 || got[0].ID != live.ID {
		t.Fatalf("expected only the live crm, got %+v", got)
	}
	if n := len(repo.Events()); n != 3 {
		t.Fatalf("expected 3 audit events, got %d", n)
	}
}
