package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsAreAnnotated(t *testing.T) {
	files, err := fs.Glob(Files(), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for _, f := range files {
		b, err := fs.ReadFile(Files(), f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		body := string(b)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Fatalf("%s lacks goose annotations", f)
		}
	}
}

func TestSchemaCoversStores(t *testing.T) {
	b, err := fs.ReadFile(Files(), "00001_init.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, table := range []string{"accounts", "voice_profiles", "calls", "audit_events"} {
		if !strings.Contains(string(b), "CREATE TABLE "+table+" (") {
			t.Fatalf("missing table %s", table)
		}
	}
	if !strings.Contains(string(b), "UNIQUE (account_id, name)") {
		t.Fatalf("voice profile names must be unique per account")
	}
}

func TestIntegrationsMigration(t *testing.T) {
	b, err := fs.ReadFile(Files(), "00002_integrations.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(b)
	if !strings.Contains(body, "CREATE TABLE integrations (") {
		t.Fatalf("missing integrations table")
	}
	if !strings.Contains(body, "ADD COLUMN notification_preferences") {
		t.Fatalf("missing notification preferences column")
	}
}
