package auth

import "context"

// Role names used across the service.
const (
	RoleAdmin             = "admin"
	RoleProvider          = "provider"
	RolePatient           = "patient"
	RoleComplianceOfficer = "compliance_officer"
)

// Identity is the caller identity resolved once per request from the bearer
// credential. It is passed through context into every domain call; no other
// session state exists in the core.
type Identity struct {
	UserID    string
	Roles     []string
	SessionID string
	IPAddress string
	UserAgent string
}

// HasRole reports whether the identity carries the given role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a context carrying the resolved caller identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the caller identity, or nil for
// unauthenticated contexts.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

func UserIDFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}

func RolesFromContext(ctx context.Context) []string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Roles
	}
	return nil
}
