package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-agent-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, id auth.Identity, chain ...gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(200) })
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	code := serve(t, auth.Identity{UserID: "u", AccountID: "a", Role: RoleSuperAdmin}, RequireAccount(), RequireAnyRole(RoleOwner))
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_ViewerCannotWrite(t *testing.T) {
	code := serve(t, auth.Identity{UserID: "u", AccountID: "a", Role: RoleViewer}, RequireAccount(), Writers())
	if code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAccount_Required(t *testing.T) {
	code := serve(t, auth.Identity{UserID: "u", Role: RoleOwner}, RequireAccount(), RequireAnyRole(RoleOwner))
	if code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsKnown(t *testing.T) {
	if !IsKnown(RoleMember) || IsKnown("network_operator") {
		t.Fatalf("unexpected role classification")
	}
}
