package main

import (
	"context"
	"net/http"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/internal/webhook"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	API      httpapi.Handlers
	Gateway  webhook.Handler
	Stripe   billing.WebhookHandler
	Hub      *events.Hub
	Auth     *auth.Manager
	Quota    billing.QuotaChecker
	DevLogin bool
	Ready    func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Inbound scheduling gateway. Authenticated by the agent's HMAC secret.
	r.POST("/webhook/schedule-call/:voiceId", d.Gateway.ScheduleCall)
	r.POST("/webhook/schedule-call", d.Gateway.ScheduleCall)

	r.POST("/billing/stripe/webhook", d.Stripe.Handle)

	authGroup := r.Group("/auth")
	{
		if d.DevLogin {
			authGroup.POST("/login", d.API.Login)
		}
		authGroup.POST("/refresh", d.API.Refresh)
	}

	h := d.API
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.Auth), rbac.RequireAccount())
	{
		v1.GET("/me", h.Me)
		v1.GET("/events", d.Hub.StreamHandler())

		vg := v1.Group("/voices")
		{
			vg.GET("", h.ListVoices)
			vg.GET("/provider", h.ProviderVoices)
			vg.GET("/:id", h.GetVoice)
			vg.POST("", rbac.Writers(), h.CreateVoice)
			vg.PATCH("/:id", rbac.Writers(), h.UpdateVoice)
			vg.DELETE("/:id", rbac.Writers(), h.DeleteVoice)
		}

		cg := v1.Group("/calls")
		{
			cg.GET("", h.ListCalls)
			cg.POST("", rbac.Writers(), h.ScheduleCall)
			cg.GET("/summary", h.CallsSummary)
			cg.GET("/:id", h.GetCall)
			cg.PATCH("/:id", rbac.Writers(), h.EditCall)
			cg.POST("/:id/notes", rbac.Writers(), h.AddCallNote)
			cg.POST("/:id/cancel", rbac.Writers(), h.CancelCall)
			cg.POST("/:id/start", rbac.Writers(), billing.RequireCallQuota(d.Quota), h.StartCall)
			cg.POST("/:id/stop", rbac.Writers(), h.StopCall)
			cg.GET("/:id/active", h.CallActive)
			cg.GET("/:id/events", h.CallTrail)
		}

		ig := v1.Group("/integrations")
		{
			ig.GET("", h.ListIntegrations)
			ig.GET("/:id", h.GetIntegration)
			ig.POST("", rbac.Writers(), h.CreateIntegration)
			ig.PATCH("/:id", rbac.Writers(), h.UpdateIntegration)
			ig.DELETE("/:id", rbac.Writers(), h.DeleteIntegration)
		}

		v1.GET("/stats", h.Stats)

		bg := v1.Group("/billing")
		{
			bg.GET("/plans", h.ListPlans)
			bg.GET("", h.BillingStatus)
			bg.POST("/checkout", rbac.RequireAnyRole(rbac.RoleOwner), h.Checkout)
			bg.POST("/auto-renew", rbac.RequireAnyRole(rbac.RoleOwner), h.SetAutoRenew)
			bg.POST("/cancel", rbac.RequireAnyRole(rbac.RoleOwner), h.CancelSubscription)
			bg.GET("/notifications", h.Notifications)
			bg.PUT("/notifications", rbac.RequireAnyRole(rbac.RoleOwner), h.SetNotifications)
		}
	}
}
