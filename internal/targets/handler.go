package targets

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
)

// Handler exposes the targets API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds the targets handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers target routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.Everyone...))
		r.Get("/city", h.getCity)
		r.Get("/advisors", h.getAdvisors)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.TargetSetters...))
		r.Put("/city", h.putCity)
		r.Post("/advisors/distribute", h.distribute)
		r.Put("/advisors", h.putAdvisors)
		r.Post("/import", h.importLegacy)
	})
}

func (h *Handler) getCity(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	t, err := h.service.CityTarget(r.Context(), p, cityParam(r, p), r.URL.Query().Get("month"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, t)
}

func (h *Handler) putCity(w http.ResponseWriter, r *http.Request) {
	var t CityTarget
	if err := httpx.DecodeJSON(r, &t); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(t); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	saved, err := h.service.SaveCityTarget(r.Context(), rbac.PrincipalFromContext(r.Context()), t)
	if err != nil {
		h.fail(w, "save city target", err)
		return
	}
	httpx.Data(w, http.StatusOK, saved)
}

func (h *Handler) getAdvisors(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	list, err := h.service.AdvisorTargets(r.Context(), p.ShowroomID, cityParam(r, p), r.URL.Query().Get("month"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, list)
}

type distributeRequest struct {
	City  string `json:"city" validate:"required"`
	Month string `json:"month"`
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	d, err := h.service.DistributeAutomatic(r.Context(), rbac.PrincipalFromContext(r.Context()), req.City, req.Month)
	if err != nil {
		h.fail(w, "distribute targets", err)
		return
	}
	httpx.Data(w, http.StatusOK, d)
}

func (h *Handler) putAdvisors(w http.ResponseWriter, r *http.Request) {
	var d Distribution
	if err := httpx.DecodeJSON(r, &d); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(d); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	saved, err := h.service.SaveManual(r.Context(), rbac.PrincipalFromContext(r.Context()), d)
	if err != nil {
		h.fail(w, "save manual targets", err)
		return
	}
	httpx.Data(w, http.StatusOK, saved)
}

func (h *Handler) importLegacy(w http.ResponseWriter, r *http.Request) {
	var in LegacyImport
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.ImportLegacy(r.Context(), rbac.PrincipalFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, "import legacy targets", err)
		return
	}
	httpx.Data(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !isClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func cityParam(r *http.Request, p *rbac.Principal) string {
	if c := r.URL.Query().Get("city"); c != "" {
		return c
	}
	return p.City
}
