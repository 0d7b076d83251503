package records

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/shared"
)

// Lister is the read side used by the handler.
type Lister interface {
	List(ctx context.Context, f Filter) ([]Record, error)
	Cities(ctx context.Context, showroomID int64, kind ingest.UploadType) ([]string, error)
}

// Handler serves GET /api/records.
type Handler struct {
	logger *slog.Logger
	store  Lister
	now    func() time.Time
}

// NewHandler builds the records handler.
func NewHandler(logger *slog.Logger, store Lister) *Handler {
	return &Handler{logger: logger, store: store, now: time.Now}
}

// MountRoutes registers record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/cities", h.cities)
}

// ScopeFor builds the filter a principal may read. Non-managers only see
// their own rows; city defaults to the principal's city.
func ScopeFor(p *rbac.Principal, city string) Filter {
	f := Filter{ShowroomID: p.ShowroomID, City: strings.TrimSpace(city)}
	if f.City == "" {
		f.City = p.City
	}
	if !p.IsManager() {
		f.AdvisorUserID = p.UserID
		f.AdvisorName = p.Name
	}
	return f
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	kind, err := ingest.ParseUploadType(q.Get("type"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f := ScopeFor(p, q.Get("city"))
	f.Type = kind
	if raw := q.Get("month"); raw != "" {
		month, err := shared.ParseMonth(raw, h.now())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		f.From, f.To, _ = shared.MonthBounds(month, time.UTC)
	}
	recs, err := h.store.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list records failed", slog.Any("error", err), slog.String("type", string(kind)))
		httpx.RespondError(w, err)
		return
	}
	if recs == nil {
		recs = []Record{}
	}
	httpx.Data(w, http.StatusOK, recs)
}

// cities lists the cities with rows of the requested type, billing by
// default.
func (h *Handler) cities(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	kind := ingest.TypeROBilling
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, err := ingest.ParseUploadType(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		kind = parsed
	}
	cities, err := h.store.Cities(r.Context(), p.ShowroomID, kind)
	if err != nil {
		h.logger.Error("list cities failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if cities == nil {
		cities = []string{}
	}
	httpx.Data(w, http.StatusOK, cities)
}
