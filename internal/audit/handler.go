package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	dateLayout       = "2006-01-02"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers the audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.TargetSetters...))
		r.Get("/", h.timeline)
		r.Get("/export.csv", h.export)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Data(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if err := WriteCSV(w, rows); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
	}
}

// parseFilters reads from/to as inclusive dates. To is turned into an
// exclusive bound at the start of the following day.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	p := rbac.PrincipalFromContext(r.Context())
	filters := TimelineFilters{
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
	}
	if p != nil {
		filters.ShowroomID = p.ShowroomID
	}

	to := h.now().UTC().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return TimelineFilters{}, invalid("to", "must be YYYY-MM-DD")
		}
		to = parsed
	}
	from := to.Add(-defaultDateRange)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return TimelineFilters{}, invalid("from", "must be YYYY-MM-DD")
		}
		from = parsed
	}
	if from.After(to) {
		return TimelineFilters{}, invalid("from", "must not be after to")
	}
	if to.Sub(from) > maxDateRange {
		return TimelineFilters{}, invalid("to", "range may not exceed 90 days")
	}
	filters.From = from
	filters.To = to.Add(24 * time.Hour)

	var err error
	if filters.ActorID, err = positiveInt(q, "actor_id"); err != nil {
		return TimelineFilters{}, err
	}
	page, err := positiveInt(q, "page")
	if err != nil {
		return TimelineFilters{}, err
	}
	size, err := positiveInt(q, "page_size")
	if err != nil {
		return TimelineFilters{}, err
	}
	filters.Page, filters.PageSize = int(page), int(size)
	return filters, nil
}

func positiveInt(q url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, invalid(key, "must be a positive integer")
	}
	return v, nil
}

func invalid(field, msg string) error {
	return fmt.Errorf("%s %s: %w", field, msg, httpx.ErrValidation)
}
