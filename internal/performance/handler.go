package performance

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
)

// Handler serves the dashboard endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the dashboard handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/advisors", h.advisors)
	r.Get("/advisors/export", h.export)
	r.Get("/bookings", h.bookings)
}

func (h *Handler) advisors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := h.service.AdvisorDashboard(r.Context(), rbac.PrincipalFromContext(r.Context()), q.Get("city"), q.Get("month"))
	if err != nil {
		h.fail(w, "advisor dashboard", err)
		return
	}
	httpx.Data(w, http.StatusOK, d)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := h.service.AdvisorDashboard(r.Context(), rbac.PrincipalFromContext(r.Context()), q.Get("city"), q.Get("month"))
	if err != nil {
		h.fail(w, "advisor export", err)
		return
	}
	name := fmt.Sprintf("advisor-performance-%s-%s.xlsx", strings.ReplaceAll(strings.ToLower(d.City), " ", "-"), d.Month)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := WriteAdvisorWorkbook(w, d); err != nil {
		h.logger.Error("write advisor workbook", slog.Any("error", err))
	}
}

func (h *Handler) bookings(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.BookingDashboard(r.Context(), rbac.PrincipalFromContext(r.Context()), r.URL.Query().Get("city"))
	if err != nil {
		h.fail(w, "booking dashboard", err)
		return
	}
	httpx.Data(w, http.StatusOK, d)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
