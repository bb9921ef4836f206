package domain

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Membership is a user's participation in a workspace.
type Membership struct {
	WorkspaceID string
	UserID      UserID
	Role        Role
}

// NormalizeRole maps unknown roles to the read-only tier.
func NormalizeRole(role string) Role {
	switch Role(role) {
	case RoleOwner, RoleAdmin, RoleEditor, RoleViewer:
		return Role(role)
	default:
		return RoleViewer
	}
}

// CanEdit reports whether the role may mutate content (chat, documents).
func (r Role) CanEdit() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleEditor:
		return true
	default:
		return false
	}
}
