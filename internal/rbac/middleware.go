package rbac

import (
	"net/http"

	"voice-agent-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAccount enforces that every protected request is scoped to an account.
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.AccountID(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// super_admin bypasses all checks.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Writers is the role set allowed to mutate voice agents and calls.
func Writers() gin.HandlerFunc {
	return RequireAnyRole(RoleOwner, RoleMember)
}
