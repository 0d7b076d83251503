package rbac

import (
	"log/slog"
	"net/http"

	"github.com/serviceline/serviceline/internal/platform/httpx"
)

// Middleware wires role based authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current principal holds at least one of roles.
func (m Middleware) RequireAny(roles ...Role) func(http.Handler) http.Handler {
	required := NewSet(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if len(required) == 0 || p.Roles.HasAny(roles...) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(r, p, "any")
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// RequireAll ensures the current principal holds every role.
func (m Middleware) RequireAll(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if p.Roles.HasAll(roles...) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(r, p, "all")
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func (m Middleware) deny(r *http.Request, p *Principal, mode string) {
	if m.Logger == nil {
		return
	}
	m.Logger.Warn("rbac denied",
		slog.String("mode", mode),
		slog.String("path", r.URL.Path),
		slog.Int64("user_id", p.UserID),
		slog.Any("roles", p.Roles.Strings()),
	)
}
