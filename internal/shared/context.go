package shared

import "context"

// Role is the coarse account-level classification.
type Role string

const (
	// RoleUser is the default role assigned at registration.
	RoleUser Role = "user"
	// RoleAdmin marks reviewers of permission requests.
	RoleAdmin Role = "admin"
)

// Permissions is the fine-grained capability triple carried by every user.
// Grants always replace the whole triple, never merge into it.
type Permissions struct {
	CanAdd    bool `json:"canAdd"`
	CanUpdate bool `json:"canUpdate"`
	CanDelete bool `json:"canDelete"`
}

// Empty reports whether no capability is requested or granted.
func (p Permissions) Empty() bool {
	return !p.CanAdd && !p.CanUpdate && !p.CanDelete
}

// Has reports whether the named flag is set.
func (p Permissions) Has(flag string) bool {
	switch flag {
	case "canAdd":
		return p.CanAdd
	case "canUpdate":
		return p.CanUpdate
	case "canDelete":
		return p.CanDelete
	}
	return false
}

// Identity is the resolved caller attached to the request context by the
// authentication middleware. It is a read-only snapshot; authorization
// decisions are made against it without further store access.
type Identity struct {
	UserID      int64
	Email       string
	Role        Role
	Permissions Permissions
}

// IsAdmin reports whether the identity carries the admin role.
func (id *Identity) IsAdmin() bool {
	return id != nil && id.Role == RoleAdmin
}

type identityContextKey struct{}

// ContextWithIdentity stores the resolved identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
