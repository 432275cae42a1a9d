package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/integrations"
	"voice-agent-platform/internal/orchestrator"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/internal/reporting"
	"voice-agent-platform/internal/speech"
	"voice-agent-platform/internal/voices"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// VoiceLister lists the synthesis provider's stock voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]speech.Voice, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth         *auth.Manager
	Voices       *voices.Service
	Calls        *calls.Service
	Orchestrator *orchestrator.Orchestrator
	Reporting    *reporting.Service
	Billing      *billing.Service
	Integrations *integrations.Service
	Audit        *audit.Service
	Provider     VoiceLister

	// Now defaults to time.Now.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID       string `json:"user_id"`
	AccountID    string `json:"account_id"`
	Role         string `json:"role"`
	BusinessName string `json:"business_name"`
}

// Login issues a JWT token pair and opens a trial account on first sign-in.
//
// NOTE: credentials are not checked. Only registered outside production.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.AccountID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, account_id, role required"})
		return
	}
	if !rbac.IsKnown(req.Role) || rbac.IsSuperAdmin(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if h.Billing != nil {
		if _, err := h.Billing.EnsureAccount(c.Request.Context(), req.AccountID, req.BusinessName); err != nil {
			writeError(c, err)
			return
		}
	}
	pair, err := h.Auth.IssuePair(h.now(), auth.Identity{UserID: req.UserID, AccountID: req.AccountID, Role: req.Role})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
}

func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	if !rbac.IsKnown(req.Role) || rbac.IsSuperAdmin(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.Refresh(h.now(), req.RefreshToken, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h Handlers) Me(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "account_id": id.AccountID, "role": id.Role})
}

func accountID(c *gin.Context) string {
	id, _ := auth.AccountID(c.Request.Context())
	return id
}

// writeError maps service errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	var (
		cfgErr *orchestrator.ConfigurationError
		valErr *orchestrator.ValidationError
		upErr  *orchestrator.UpstreamError
	)
	switch {
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, voices.ErrNotFound), errors.Is(err, billing.ErrNotFound),
		errors.Is(err, integrations.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, voices.ErrInvalidArgument),
		errors.Is(err, voices.ErrInvalidSettings), errors.Is(err, billing.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest), errors.Is(err, integrations.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotEditable), errors.Is(err, calls.ErrStatusConflict),
		errors.Is(err, orchestrator.ErrCallAlreadyActive), errors.Is(err, voices.ErrDuplicateName),
		errors.Is(err, voices.ErrProfileInUse), errors.Is(err, billing.ErrNoSubscription),
		errors.Is(err, integrations.ErrDuplicateName):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, voices.ErrLimitReached), errors.Is(err, integrations.ErrLimitReached):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, billing.ErrPaymentsNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "payments not configured"})
	case errors.As(err, &upErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": upErr.Provider + " unavailable"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
