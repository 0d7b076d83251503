package advisors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
)

// Handler exposes reconciliation over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers advisor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.TargetSetters...)).Post("/reconcile", h.reconcile)
}

type reconcileRequest struct {
	Apply bool `json:"apply"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	p := rbac.PrincipalFromContext(r.Context())
	report, err := h.service.Reconcile(r.Context(), p.ShowroomID, p.UserID, req.Apply)
	if err != nil {
		h.logger.Error("advisor reconcile failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, report)
}
