package uploads

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/shared"
)

const multipartMemory = 8 << 20

// Handler exposes the uploads API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
	maxBytes int64
}

// NewHandler builds the uploads handler. maxBytes bounds the request body.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, maxBytes int64) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New(), maxBytes: maxBytes}
}

// MountRoutes registers upload routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(rbac.Uploaders...))
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, ErrTooLarge)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Invalid Form", "multipart form expected")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Form", "file is required")
		return
	}
	defer file.Close()

	in := Input{Type: r.FormValue("type"), City: r.FormValue("city"), FileName: header.Filename}
	if err := h.validate.Struct(in); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	f, err := h.service.Accept(r.Context(), p, in, file)
	if err != nil {
		h.respond(w, "accept upload", err)
		return
	}
	httpx.Data(w, http.StatusAccepted, f)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	page, perPage := shared.PageParams(r.URL.Query(), 200)
	files, pg, err := h.service.List(r.Context(), p, r.URL.Query().Get("city"), page, perPage)
	if err != nil {
		h.respond(w, "list uploads", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": files, "pagination": pg})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uploadID(w, r)
	if !ok {
		return
	}
	f, err := h.service.Get(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.respond(w, "get upload", err)
		return
	}
	httpx.Data(w, http.StatusOK, f)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uploadID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), rbac.PrincipalFromContext(r.Context()), id); err != nil {
		h.respond(w, "delete upload", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) uploadID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	if shared.UserSafeMessage(err) == "unexpected error" {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
