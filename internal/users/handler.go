package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
)

// Handler manages user management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.Managers...))
		r.Get("/", h.listUsers)
		r.Get("/advisors", h.listAdvisors)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.TargetSetters...))
		r.Post("/", h.createUser)
	})
}

type userView struct {
	User
	Roles []string `json:"roles"`
}

func present(users []User) []userView {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{User: u, Roles: u.Roles.Strings()})
	}
	return out
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	users, err := h.service.ListUsers(r.Context(), p.ShowroomID)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, present(users))
}

func (h *Handler) listAdvisors(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	users, err := h.service.ListAdvisors(r.Context(), p.ShowroomID)
	if err != nil {
		h.logger.Error("list advisors failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, present(users))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	in.ShowroomID = rbac.PrincipalFromContext(r.Context()).ShowroomID
	id, err := h.service.CreateUser(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusCreated, map[string]int64{"id": id})
}
