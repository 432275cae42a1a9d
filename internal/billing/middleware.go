package billing

import (
	"context"
	"net/http"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// QuotaChecker is the minimal billing interface needed by middleware.
type QuotaChecker interface {
	CanStartCall(ctx context.Context, accountID string) (bool, error)
}

// RequireCallQuota blocks starting a call once the plan allowance is spent.
// super_admin bypasses.
func RequireCallQuota(svc QuotaChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsSuperAdmin(role) {
			c.Next()
			return
		}

		accountID, err := auth.AccountID(c.Request.Context())
		if err != nil || accountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
			return
		}

		ok, err := svc.CanStartCall(c.Request.Context(), accountID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "quota lookup failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "call allowance exhausted, upgrade your plan"})
			return
		}
		c.Next()
	}
}
