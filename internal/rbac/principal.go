package rbac

import "context"

// Principal describes the authenticated actor of a request.
type Principal struct {
	UserID     int64
	Name       string
	ShowroomID int64
	City       string
	Roles      Set
}

// IsManager reports whether the principal may see showroom wide data.
func (p *Principal) IsManager() bool {
	return p != nil && p.Roles.HasAny(Managers...)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal, or nil when unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
