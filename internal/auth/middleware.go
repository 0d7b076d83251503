package auth

import (
	"net/http"
	"strings"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
)

// Bearer validates the Authorization header and stores the principal in the
// request context. Requests without a valid token are rejected with 401.
func Bearer(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			principal, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}
			ctx := rbac.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
