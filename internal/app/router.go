package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/serviceline/serviceline/internal/advisors"
	"github.com/serviceline/serviceline/internal/audit"
	"github.com/serviceline/serviceline/internal/auth"
	"github.com/serviceline/serviceline/internal/observability"
	"github.com/serviceline/serviceline/internal/performance"
	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/records"
	"github.com/serviceline/serviceline/internal/targets"
	"github.com/serviceline/serviceline/internal/uploads"
	"github.com/serviceline/serviceline/internal/users"
	"github.com/serviceline/serviceline/jobs"
)

// HealthCheck is a named dependency probe run by /healthz.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Tokens         *auth.Tokens
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
	Health         []HealthCheck

	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	RecordsHandler   *records.Handler
	DashboardHandler *performance.Handler
	TargetsHandler   *targets.Handler
	UploadsHandler   *uploads.Handler
	AdvisorsHandler  *advisors.Handler
	AuditHandler     *audit.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Health))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.Bearer(params.Tokens))
			if params.AuthHandler != nil {
				r.Get("/auth/me", params.AuthHandler.Me)
			}
			if params.RecordsHandler != nil {
				r.Route("/records", params.RecordsHandler.MountRoutes)
			}
			if params.DashboardHandler != nil {
				r.Route("/dashboard", params.DashboardHandler.MountRoutes)
			}
			if params.TargetsHandler != nil {
				r.Route("/targets", params.TargetsHandler.MountRoutes)
			}
			if params.UploadsHandler != nil {
				r.Route("/uploads", params.UploadsHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.AdvisorsHandler != nil {
				r.Route("/advisors", params.AdvisorsHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.RBACMiddleware.RequireAny(rbac.Managers...))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		failing := map[string]string{}
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				failing[c.Name] = err.Error()
			}
		}
		if len(failing) > 0 {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failing": failing})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
