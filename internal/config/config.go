package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env-file loaded at startup).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Gemini     GeminiConfig
	ElevenLabs ElevenLabsConfig
	Stripe     StripeConfig
	Webhook    WebhookConfig
}

type AppConfig struct {
	Env  string
	Port int
	// MigrateOnStart runs embedded goose migrations before serving.
	MigrateOnStart bool
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	ModelID string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string

	// Price ids keyed by plan tier (starter, pro, enterprise).
	PriceStarter    string
	PricePro        string
	PriceEnterprise string
}

// WebhookConfig tunes the inbound scheduling gateway and outbound callbacks.
type WebhookConfig struct {
	// ScheduleDelay is how far in the future inbound calls are scheduled.
	ScheduleDelay time.Duration
	// RateLimit is the max accepted scheduling requests per voice agent per RateWindow.
	RateLimit  int
	RateWindow time.Duration
	// ReplayTTL is how long a signature is remembered to reject duplicate deliveries.
	ReplayTTL time.Duration
	// CallbackTimeout bounds a single outbound callback POST.
	CallbackTimeout time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.MigrateOnStart = optionalBool("APP_MIGRATE_ON_START")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	c.Gemini.Model = strings.TrimSpace(os.Getenv("GEMINI_MODEL"))

	c.ElevenLabs.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	c.ElevenLabs.BaseURL = strings.TrimSpace(os.Getenv("ELEVENLABS_BASE_URL"))
	c.ElevenLabs.ModelID = strings.TrimSpace(os.Getenv("ELEVENLABS_MODEL_ID"))

	c.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	c.Stripe.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	c.Stripe.SuccessURL = strings.TrimSpace(os.Getenv("STRIPE_SUCCESS_URL"))
	c.Stripe.CancelURL = strings.TrimSpace(os.Getenv("STRIPE_CANCEL_URL"))
	c.Stripe.PriceStarter = strings.TrimSpace(os.Getenv("STRIPE_PRICE_STARTER"))
	c.Stripe.PricePro = strings.TrimSpace(os.Getenv("STRIPE_PRICE_PRO"))
	c.Stripe.PriceEnterprise = strings.TrimSpace(os.Getenv("STRIPE_PRICE_ENTERPRISE"))

	c.Webhook.ScheduleDelay = mustDuration("WEBHOOK_SCHEDULE_DELAY")
	{
		n, err := optionalInt("WEBHOOK_RATE_LIMIT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Webhook.RateLimit = n
	}
	c.Webhook.RateWindow = mustDuration("WEBHOOK_RATE_WINDOW")
	c.Webhook.ReplayTTL = mustDuration("WEBHOOK_REPLAY_TTL")
	c.Webhook.CallbackTimeout = mustDuration("CALLBACK_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	// Provider keys are optional outside production: the text generator degrades to a
	// fallback reply and synthesis fails the call with a clear note.
	if c.IsProduction() {
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required in production"))
		}
		if c.ElevenLabs.APIKey == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY is required in production"))
		}
		if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set in production"))
		}
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.0-flash"
	}
	if c.ElevenLabs.BaseURL == "" {
		c.ElevenLabs.BaseURL = "https://api.elevenlabs.io"
	}
	if c.ElevenLabs.ModelID == "" {
		c.ElevenLabs.ModelID = "eleven_monolingual_v1"
	}

	if c.Webhook.ScheduleDelay <= 0 {
		c.Webhook.ScheduleDelay = 60 * time.Second
	}
	if c.Webhook.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_RATE_LIMIT must be >= 0, got %d", c.Webhook.RateLimit))
	} else if c.Webhook.RateLimit == 0 {
		c.Webhook.RateLimit = 30
	}
	if c.Webhook.RateWindow <= 0 {
		c.Webhook.RateWindow = time.Minute
	}
	if c.Webhook.ReplayTTL <= 0 {
		c.Webhook.ReplayTTL = 10 * time.Minute
	}
	if c.Webhook.CallbackTimeout <= 0 {
		c.Webhook.CallbackTimeout = 10 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// StripePrices maps plan tiers to configured Stripe price ids.
func (c Config) StripePrices() map[string]string {
	out := map[string]string{}
	if c.Stripe.PriceStarter != "" {
		out["starter"] = c.Stripe.PriceStarter
	}
	if c.Stripe.PricePro != "" {
		out["pro"] = c.Stripe.PricePro
	}
	if c.Stripe.PriceEnterprise != "" {
		out["enterprise"] = c.Stripe.PriceEnterprise
	}
	return out
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
