package advisors

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/users"
)

func TestBuildPlanPolicies(t *testing.T) {
	candidates := []Candidate{
		{UserID: 1, Name: "Ravi Kumar"},
		{UserID: 2, Name: "Neha Joshi"},
		{UserID: 3, Name: "Neha Patil"},
		{UserID: 4, Name: "Imran"},
	}
	plan := BuildPlan(map[string]int64{
		"RAVI KUMAR":      10,
		"Imran Shaikh":    4,
		"Neha":            7,
		"Zoya":            2,
		"ravi":            1,
		"Neha Joshi (SA)": 3,
	}, candidates)

	require.Len(t, plan.Proposals, 4)
	byName := map[string]Proposal{}
	for _, p := range plan.Proposals {
		byName[p.Name] = p
	}
	assert.Equal(t, Proposal{Name: "RAVI KUMAR", Rows: 10, UserID: 1, UserName: "Ravi Kumar", Policy: PolicyExact}, byName["RAVI KUMAR"])
	assert.Equal(t, int64(4), byName["Imran Shaikh"].UserID, "account name inside row name")
	assert.Equal(t, PolicySubstring, byName["Imran Shaikh"].Policy)
	assert.Equal(t, int64(1), byName["ravi"].UserID, "row name inside account name")
	assert.Equal(t, int64(2), byName["Neha Joshi (SA)"].UserID)

	require.Len(t, plan.Ambiguous, 1)
	assert.Equal(t, "Neha", plan.Ambiguous[0].Name)
	assert.Len(t, plan.Ambiguous[0].Candidates, 2)

	assert.Equal(t, []Unmatched{{Name: "Zoya", Rows: 2}}, plan.Unmatched)
}

func TestBuildPlanExactBeatsSubstring(t *testing.T) {
	plan := BuildPlan(map[string]int64{"Ravi": 1}, []Candidate{{UserID: 1, Name: "Ravi"}, {UserID: 2, Name: "Ravi Kumar"}})
	require.Len(t, plan.Proposals, 1)
	assert.Equal(t, int64(1), plan.Proposals[0].UserID)
	assert.Equal(t, PolicyExact, plan.Proposals[0].Policy)
}

type memRecords struct {
	names    map[string]int64
	assigned map[string]int64
}

func (m *memRecords) UnassignedAdvisorNames(ctx context.Context, showroomID int64) (map[string]int64, error) {
	return m.names, nil
}

func (m *memRecords) AssignAdvisor(ctx context.Context, showroomID int64, name string, userID int64) (int64, error) {
	if m.assigned == nil {
		m.assigned = map[string]int64{}
	}
	m.assigned[name] = userID
	return m.names[name], nil
}

type memDirectory []users.User

func (d memDirectory) ListAdvisors(ctx context.Context, showroomID int64) ([]users.User, error) {
	return d, nil
}

type memShowrooms []int64

func (s memShowrooms) ShowroomIDs(ctx context.Context) ([]int64, error) { return s, nil }

type bumpCounter struct{ n int }

func (b *bumpCounter) Bump(ctx context.Context) error {
	b.n++
	return nil
}

func newService(recs *memRecords, cache *bumpCounter) *Service {
	dir := memDirectory{{ID: 1, Name: "Ravi Kumar"}, {ID: 2, Name: "Neha"}}
	return NewService(recs, dir, memShowrooms{1, 2}, cache, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReconcileDryRunDoesNotWrite(t *testing.T) {
	recs := &memRecords{names: map[string]int64{"ravi kumar": 5, "NEHA ": 2}}
	cache := &bumpCounter{}
	report, err := newService(recs, cache).Reconcile(context.Background(), 1, 9, false)
	require.NoError(t, err)
	assert.False(t, report.Applied)
	assert.Len(t, report.Proposals, 2)
	assert.Nil(t, recs.assigned)
	assert.Zero(t, cache.n)
}

func TestReconcileApply(t *testing.T) {
	recs := &memRecords{names: map[string]int64{"ravi kumar": 5, "Unknown Person": 1}}
	cache := &bumpCounter{}
	report, err := newService(recs, cache).Reconcile(context.Background(), 1, 9, true)
	require.NoError(t, err)
	assert.True(t, report.Applied)
	assert.Equal(t, int64(5), report.AssignedRows)
	assert.Equal(t, map[string]int64{"ravi kumar": 1}, recs.assigned)
	assert.Equal(t, 1, cache.n)
	assert.Len(t, report.Unmatched, 1)
}

func TestReconcileAll(t *testing.T) {
	recs := &memRecords{names: map[string]int64{"Neha": 1}}
	reports, err := newService(recs, &bumpCounter{}).ReconcileAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(2), reports[1].ShowroomID)
}

func TestReconcileHandler(t *testing.T) {
	recs := &memRecords{names: map[string]int64{"Neha": 3}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, newService(recs, &bumpCounter{}), rbac.Middleware{Logger: logger})
	r := chi.NewRouter()
	h.MountRoutes(r)

	do := func(p *rbac.Principal, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/reconcile", strings.NewReader(body))
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	owner := &rbac.Principal{UserID: 1, ShowroomID: 1, Roles: rbac.NewSet(rbac.RoleOwner)}
	sm := &rbac.Principal{UserID: 2, ShowroomID: 1, Roles: rbac.NewSet(rbac.RoleServiceManager)}

	assert.Equal(t, http.StatusForbidden, do(sm, "").Code)

	rec := do(owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":false`)

	rec = do(owner, `{"apply":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"assignedRows":3`)
}
