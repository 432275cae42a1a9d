package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/integrations"
	"voice-agent-platform/internal/migrations"
	"voice-agent-platform/internal/orchestrator"
	"voice-agent-platform/internal/reporting"
	"voice-agent-platform/internal/speech"
	"voice-agent-platform/internal/textgen"
	"voice-agent-platform/internal/voices"
	"voice-agent-platform/internal/webhook"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("env file load failed", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.App.MigrateOnStart {
		if err := migrations.Up(rootCtx, db, log); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	gen, err := textgen.NewGemini(rootCtx, cfg.Gemini.APIKey, cfg.Gemini.Model, log)
	if err != nil {
		log.Error("gemini init failed", "err", err)
		os.Exit(1)
	}
	tts := speech.NewElevenLabs(cfg.ElevenLabs.APIKey, cfg.ElevenLabs.BaseURL, cfg.ElevenLabs.ModelID)

	// Services
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	hub := events.NewHub(log)
	notifier := webhook.NewNotifier(cfg.Webhook.CallbackTimeout, hub, auditSvc, log)

	billingOpts := []billing.Option{billing.WithAudit(auditSvc), billing.WithLogger(log)}
	if cfg.Stripe.SecretKey != "" {
		billingOpts = append(billingOpts, billing.WithPayments(
			billing.NewStripePayments(cfg.Stripe.SecretKey),
			cfg.StripePrices(),
			billing.RedirectURLs{Success: cfg.Stripe.SuccessURL, Cancel: cfg.Stripe.CancelURL},
		))
	}
	billingSvc := billing.NewService(billing.NewPostgresRepo(db), billingOpts...)

	integrationSvc := integrations.NewService(integrations.NewPostgresStore(db),
		integrations.WithLimits(billingSvc),
		integrations.WithAudit(auditSvc),
		integrations.WithLogger(log),
	)
	dispatcher := integrations.NewDispatcher(integrationSvc, cfg.Webhook.CallbackTimeout, auditSvc, log)
	reporter := &orchestrator.Reporter{
		Events:       hub,
		Audit:        auditSvc,
		Callbacks:    notifier,
		Integrations: dispatcher,
		Log:          log,
	}

	callStore := calls.NewPostgresStore(db)
	voiceSvc := voices.NewService(voices.NewPostgresStore(db),
		voices.WithLimits(billingSvc),
		voices.WithReferences(callStore),
		voices.WithAudit(auditSvc),
		voices.WithLogger(log),
	)
	callSvc := calls.NewService(callStore,
		calls.WithVoiceChecker(voiceSvc),
		calls.WithObserver(reporter),
		calls.WithInboundDelay(cfg.Webhook.ScheduleDelay),
	)
	orch := orchestrator.New(callStore, voiceSvc, gen, tts,
		orchestrator.WithObserver(reporter),
		orchestrator.WithUsage(billingSvc),
		orchestrator.WithLogger(log),
	)

	deps := routeDeps{
		API: httpapi.Handlers{
			Auth:         authManager,
			Voices:       voiceSvc,
			Calls:        callSvc,
			Orchestrator: orch,
			Reporting:    reporting.NewService(callStore),
			Billing:      billingSvc,
			Integrations: integrationSvc,
			Audit:        auditSvc,
			Provider:     tts,
		},
		Gateway: webhook.Handler{
			Voices:    voiceSvc,
			Scheduler: callSvc,
			Guard:     webhook.NewRedisGuard(rdb, cfg.Webhook.RateLimit, cfg.Webhook.RateWindow, cfg.Webhook.ReplayTTL),
			Notifier:  notifier,
			Events:    hub,
			Audit:     auditSvc,
		},
		Stripe:   billing.WebhookHandler{Service: billingSvc, Secret: cfg.Stripe.WebhookSecret},
		Hub:      hub,
		Auth:     authManager,
		Quota:    billingSvc,
		DevLogin: !cfg.IsProduction(),
		Ready: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Running calls end as missed so nothing stays in-progress across restarts.
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Error("orchestrator shutdown failed", "err", err, "active", len(orch.ActiveCalls()))
	}
	notifier.Wait()
	dispatcher.Wait()
}
