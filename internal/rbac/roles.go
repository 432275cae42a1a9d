package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleMember     = "member"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsKnown reports whether role may appear in an access token.
func IsKnown(role string) bool {
	switch role {
	case RoleOwner, RoleMember, RoleViewer, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
