package business

import "context"

// Role names carried by the authenticated principal. Authentication itself
// happens outside this service; handlers receive an already verified
// principal through the request context.
const (
	RoleTenant = "tenant"
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
)

// Principal is the authenticated caller as established by the external auth
// layer. LinkedPropertyID is only populated for tenants.
type Principal struct {
	ID               string
	Name             string
	Role             string
	LinkedPropertyID string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type principalContextKey struct{}

// PrincipalToContext stores the authenticated caller for downstream
// handlers, normally done by the auth middleware.
func PrincipalToContext(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext retrieves the authenticated caller, reporting whether
// one was present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}
