package config

import (
	"testing"
	"time"
)

func validBase(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceagents"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLModeAndProviderKeys(t *testing.T) {
	c := validBase("production")
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE and provider keys")
	}

	c = validBase("production")
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.DB.SSLMode = "require"
	c.Gemini.APIKey = "g"
	c.ElevenLabs.APIKey = "e"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validBase("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Webhook.ScheduleDelay != 60*time.Second {
		t.Fatalf("expected 60s schedule delay, got %v", c.Webhook.ScheduleDelay)
	}
	if c.Webhook.RateLimit != 30 || c.Webhook.RateWindow != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %d/%v", c.Webhook.RateLimit, c.Webhook.RateWindow)
	}
	if c.ElevenLabs.BaseURL != "https://api.elevenlabs.io" {
		t.Fatalf("unexpected elevenlabs base %q", c.ElevenLabs.BaseURL)
	}
	if c.Gemini.Model == "" {
		t.Fatalf("expected default gemini model")
	}
}

func TestValidate_RejectsNegativeRateLimit(t *testing.T) {
	c := validBase("dev")
	c.Webhook.RateLimit = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative rate limit")
	}
}

func TestStripePrices_OnlyConfiguredTiers(t *testing.T) {
	c := Config{Stripe: StripeConfig{PricePro: "price_pro"}}
	p := c.StripePrices()
	if len(p) != 1 || p["pro"] != "price_pro" {
		t.Fatalf("unexpected prices: %+v", p)
	}
}
