package records

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/rbac"
)

func TestFromCanonical(t *testing.T) {
	row := ingest.Normalize(map[string]string{
		"RO No":           "R1",
		"Service Advisor": " Ravi Kumar ",
		"Labour Amt":      "1,200.50",
		"Part Amt":        "n/a",
		"Bill Date":       "05-03-2026",
		"Chassis No":      "ma3ab 123",
		"Bay":             "4",
	}, ingest.TypeROBilling)

	rec := FromCanonical(row, ingest.TypeROBilling)
	assert.Equal(t, "R1", rec.RONumber)
	assert.Equal(t, "Ravi Kumar", rec.AdvisorName)
	assert.Equal(t, "1200.5", rec.LabourAmount.String())
	assert.True(t, rec.PartAmount.IsZero())
	require.NotNil(t, rec.Date)
	assert.Equal(t, time.March, rec.Date.Month())
	assert.Equal(t, "ma3ab 123", rec.VIN)
	assert.Equal(t, "4", rec.Payload["Bay"])
}

func TestFromCanonicalWithoutDateField(t *testing.T) {
	rec := FromCanonical(map[string]string{ingest.FieldRONumber: "R9"}, ingest.TypeOperationsPart)
	assert.Nil(t, rec.Date)
}

type fakeLister struct {
	got      Filter
	recs     []Record
	cities   []string
	gotKind  ingest.UploadType
	showroom int64
}

func (f *fakeLister) List(ctx context.Context, filter Filter) ([]Record, error) {
	f.got = filter
	return f.recs, nil
}

func (f *fakeLister) Cities(ctx context.Context, showroomID int64, kind ingest.UploadType) ([]string, error) {
	f.showroom, f.gotKind = showroomID, kind
	return f.cities, nil
}

func serve(t *testing.T, store Lister, p *rbac.Principal, target string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
	h.now = func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountRoutes(r)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListResolvesTypeAliasAndWrapsData(t *testing.T) {
	store := &fakeLister{recs: []Record{{ID: 1, Type: ingest.TypeOperationsPart}}}
	gm := &rbac.Principal{UserID: 1, ShowroomID: 4, City: "Pune", Roles: rbac.NewSet(rbac.RoleGeneralManager)}

	rec := serve(t, store, gm, "/?type=operations&city=Nashik&month=2026-09")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingest.TypeOperationsPart, store.got.Type)
	assert.Equal(t, "Nashik", store.got.City)
	assert.Equal(t, int64(4), store.got.ShowroomID)
	assert.Zero(t, store.got.AdvisorUserID)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), store.got.From)

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
}

func TestListRestrictsAdvisorsToOwnRows(t *testing.T) {
	store := &fakeLister{}
	sa := &rbac.Principal{UserID: 12, Name: "Neha", ShowroomID: 4, City: "Pune", Roles: rbac.NewSet(rbac.RoleServiceAdvisor)}

	rec := serve(t, store, sa, "/?type=service_booking")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingest.TypeBookingList, store.got.Type)
	assert.Equal(t, "Pune", store.got.City)
	assert.Equal(t, int64(12), store.got.AdvisorUserID)
	assert.Equal(t, "Neha", store.got.AdvisorName)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestListRejectsUnknownType(t *testing.T) {
	gm := &rbac.Principal{UserID: 1, ShowroomID: 4, Roles: rbac.NewSet(rbac.RoleOwner)}
	rec := serve(t, &fakeLister{}, gm, "/?type=invoices")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &fakeLister{}, gm, "/?type=warranty&month=Sept")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCitiesDefaultsToBilling(t *testing.T) {
	store := &fakeLister{cities: []string{"Nashik", "Pune"}}
	sa := &rbac.Principal{UserID: 12, ShowroomID: 4, Roles: rbac.NewSet(rbac.RoleServiceAdvisor)}

	rec := serve(t, store, sa, "/cities")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":["Nashik","Pune"]}`, rec.Body.String())
	assert.Equal(t, ingest.TypeROBilling, store.gotKind)
	assert.Equal(t, int64(4), store.showroom)

	store.cities = nil
	rec = serve(t, store, sa, "/cities?type=service_booking")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	assert.Equal(t, ingest.TypeBookingList, store.gotKind)

	rec = serve(t, store, sa, "/cities?type=invoices")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
