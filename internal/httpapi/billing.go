package httpapi

import (
	"net/http"

	"voice-agent-platform/internal/billing"

	"github.com/gin-gonic/gin"
)

func (h Handlers) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": billing.Plans()})
}

func (h Handlers) BillingStatus(c *gin.Context) {
	st, err := h.Billing.Status(c.Request.Context(), accountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type checkoutRequest struct {
	Tier      billing.Tier `json:"tier"`
	AutoRenew *bool        `json:"auto_renew"`
}

func (h Handlers) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	autoRenew := true
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}
	s, err := h.Billing.Checkout(c.Request.Context(), accountID(c), req.Tier, autoRenew)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type autoRenewRequest struct {
	AutoRenew *bool `json:"auto_renew"`
}

func (h Handlers) SetAutoRenew(c *gin.Context) {
	var req autoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AutoRenew == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "auto_renew required"})
		return
	}
	a, err := h.Billing.SetAutoRenew(c.Request.Context(), accountID(c), *req.AutoRenew)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) CancelSubscription(c *gin.Context) {
	a, err := h.Billing.Cancel(c.Request.Context(), accountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) Notifications(c *gin.Context) {
	a, err := h.Billing.EnsureAccount(c.Request.Context(), accountID(c), "")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Notifications)
}

func (h Handlers) SetNotifications(c *gin.Context) {
	var req billing.NotificationPreferences
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := h.Billing.SetNotifications(c.Request.Context(), accountID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Notifications)
}
