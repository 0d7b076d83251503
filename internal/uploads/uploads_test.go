package uploads

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/records"
)

type memStore struct {
	mu    sync.Mutex
	files map[uuid.UUID]File
	rows  map[uuid.UUID][]records.Record
}

func newMemStore() *memStore {
	return &memStore{files: map[uuid.UUID]File{}, rows: map[uuid.UUID][]records.Record{}}
}

func (m *memStore) Create(ctx context.Context, f File) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.files {
		if existing.ShowroomID == f.ShowroomID && existing.Type == f.Type && existing.Hash == f.Hash {
			return File{}, ErrDuplicateUpload
		}
	}
	f.Status = StatusPending
	f.CreatedAt = time.Now()
	f.UpdatedAt = f.CreatedAt
	m.files[f.ID] = f
	return f, nil
}

func (m *memStore) Get(ctx context.Context, showroomID int64, id uuid.UUID) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.ShowroomID != showroomID {
		return File{}, ErrNotFound
	}
	return f, nil
}

func (m *memStore) List(ctx context.Context, lf ListFilter) ([]File, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []File{}
	for _, f := range m.files {
		if f.ShowroomID == lf.ShowroomID && (lf.City == "" || strings.EqualFold(f.City, lf.City)) {
			out = append(out, f)
		}
	}
	return out, len(out), nil
}

func (m *memStore) Claim(ctx context.Context, id uuid.UUID) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return File{}, ErrNotFound
	}
	if f.Status != StatusPending && f.Status != StatusFailed {
		return File{}, ErrNotClaimable
	}
	f.Status = StatusProcessing
	m.files[id] = f
	return f, nil
}

func (m *memStore) Ingest(ctx context.Context, id uuid.UUID, recs []records.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.files[id]
	f.Status = StatusCompleted
	f.RowCount = len(recs)
	m.files[id] = f
	m.rows[id] = recs
	return int64(len(recs)), nil
}

func (m *memStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.files[id]
	f.Status = StatusFailed
	f.Error = message
	m.files[id] = f
	return nil
}

func (m *memStore) Delete(ctx context.Context, showroomID int64, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	delete(m.rows, id)
	return nil
}

type memQueue struct {
	processed []uuid.UUID
	rematched []string
}

func (q *memQueue) EnqueueProcessUpload(ctx context.Context, id uuid.UUID) error {
	q.processed = append(q.processed, id)
	return nil
}

func (q *memQueue) EnqueueRematch(ctx context.Context, showroomID int64, city string) error {
	q.rematched = append(q.rematched, city)
	return nil
}

type bumpCounter struct{ n int }

func (b *bumpCounter) Bump(ctx context.Context) error {
	b.n++
	return nil
}

type fixture struct {
	store *memStore
	queue *memQueue
	cache *bumpCounter
	svc   *Service
	dir   string
}

func newFixture(t *testing.T, maxBytes int64) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), queue: &memQueue{}, cache: &bumpCounter{}, dir: t.TempDir()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.store, f.queue, f.cache, nil, logger, Options{Dir: f.dir, MaxBytes: maxBytes})
	return f
}

var manager = &rbac.Principal{UserID: 7, ShowroomID: 1, City: "Pune", Roles: rbac.NewSet(rbac.RoleServiceManager)}

const billingCSV = "RO No,Bill Date,Service Advisor,VIN,Labour Amt,Parts Amt,Work Type\n" +
	"RO-1,05/03/2026,Ravi,VIN1,\"1,200.50\",300,Paid Service\n" +
	",,,,,,\n" +
	"RO-2,06/03/2026,Neha,VIN2,abc,(50),Running Repair\n"

func TestAcceptStoresFileAndEnqueues(t *testing.T) {
	fx := newFixture(t, 1<<20)
	f, err := fx.svc.Accept(context.Background(), manager, Input{Type: "ro_billing", FileName: "March.CSV"}, strings.NewReader(billingCSV))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, f.Status)
	assert.Equal(t, "Pune", f.City, "city defaults to the principal's")
	assert.Equal(t, ingest.TypeROBilling, f.Type)
	assert.Len(t, f.Hash, 64)
	assert.Equal(t, []uuid.UUID{f.ID}, fx.queue.processed)
	assert.True(t, strings.HasSuffix(f.StoredPath, f.ID.String()+".csv"))

	body, err := os.ReadFile(f.StoredPath)
	require.NoError(t, err)
	assert.Equal(t, billingCSV, string(body))

	entries, err := os.ReadDir(fx.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is moved, not copied")
}

func TestAcceptRejectsDuplicateHash(t *testing.T) {
	fx := newFixture(t, 1<<20)
	_, err := fx.svc.Accept(context.Background(), manager, Input{Type: "ro_billing", FileName: "a.csv"}, strings.NewReader(billingCSV))
	require.NoError(t, err)
	_, err = fx.svc.Accept(context.Background(), manager, Input{Type: "ro_billing", FileName: "b.csv"}, strings.NewReader(billingCSV))
	assert.ErrorIs(t, err, ErrDuplicateUpload)

	_, err = fx.svc.Accept(context.Background(), manager, Input{Type: "warranty", FileName: "c.csv"}, strings.NewReader(billingCSV))
	assert.NoError(t, err, "same file under another type is accepted")
}

func TestAcceptValidation(t *testing.T) {
	fx := newFixture(t, 16)
	ctx := context.Background()

	_, err := fx.svc.Accept(ctx, manager, Input{Type: "payroll", FileName: "a.csv"}, strings.NewReader("x"))
	assert.ErrorIs(t, err, ingest.ErrUnknownType)

	_, err = fx.svc.Accept(ctx, manager, Input{Type: "warranty", FileName: "a.pdf"}, strings.NewReader("x"))
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFile)

	_, err = fx.svc.Accept(ctx, manager, Input{Type: "warranty", FileName: "a.csv"}, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = fx.svc.Accept(ctx, manager, Input{Type: "warranty", FileName: "a.csv"}, strings.NewReader(strings.Repeat("x", 17)))
	assert.ErrorIs(t, err, ErrTooLarge)

	noCity := &rbac.Principal{UserID: 1, ShowroomID: 1, Roles: rbac.NewSet(rbac.RoleOwner)}
	_, err = fx.svc.Accept(ctx, noCity, Input{Type: "warranty", FileName: "a.csv"}, strings.NewReader("x"))
	assert.Error(t, err)

	entries, err := os.ReadDir(fx.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave no files behind")
}

func TestProcessLoadsNormalisedRows(t *testing.T) {
	fx := newFixture(t, 1<<20)
	ctx := context.Background()
	f, err := fx.svc.Accept(ctx, manager, Input{Type: "ro_billing", City: "Nashik", FileName: "m.csv"}, strings.NewReader(billingCSV))
	require.NoError(t, err)

	done, err := fx.svc.Process(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 2, done.RowCount, "blank rows are skipped")

	rows := fx.store.rows[f.ID]
	require.Len(t, rows, 2)
	assert.Equal(t, "RO-1", rows[0].RONumber)
	assert.Equal(t, "Ravi", rows[0].AdvisorName)
	assert.Equal(t, "Nashik", rows[0].City)
	assert.Equal(t, int64(1), rows[0].ShowroomID)
	assert.Equal(t, f.ID, rows[0].UploadID)
	assert.Equal(t, "1200.5", rows[0].LabourAmount.String())
	assert.True(t, rows[1].LabourAmount.IsZero(), "malformed amounts become zero")
	assert.Equal(t, "-50", rows[1].PartAmount.String())

	assert.Equal(t, 1, fx.cache.n)
	assert.Equal(t, []string{"Nashik"}, fx.queue.rematched)

	again, err := fx.svc.Process(ctx, f.ID)
	assert.NoError(t, err, "redelivered tasks are ignored")
	assert.Nil(t, again)
}

func TestProcessMarksUnreadableFilesFailed(t *testing.T) {
	fx := newFixture(t, 1<<20)
	ctx := context.Background()
	f, err := fx.svc.Accept(ctx, manager, Input{Type: "warranty", FileName: "broken.xlsx"}, strings.NewReader("not a workbook"))
	require.NoError(t, err)

	_, err = fx.svc.Process(ctx, f.ID)
	require.ErrorIs(t, err, ErrUnprocessable)
	stored := fx.store.files[f.ID]
	assert.Equal(t, StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
	assert.Zero(t, fx.cache.n)

	_, err = fx.svc.Process(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUnprocessable)
}

func TestDelete(t *testing.T) {
	fx := newFixture(t, 1<<20)
	ctx := context.Background()
	f, err := fx.svc.Accept(ctx, manager, Input{Type: "booking_list", FileName: "b.csv"}, strings.NewReader("Booking No,VIN\nB1,VIN1\n"))
	require.NoError(t, err)
	_, err = fx.svc.Process(ctx, f.ID)
	require.NoError(t, err)
	fx.queue.rematched = nil

	other := &rbac.Principal{UserID: 9, ShowroomID: 2, City: "Pune", Roles: rbac.NewSet(rbac.RoleOwner)}
	assert.ErrorIs(t, fx.svc.Delete(ctx, other, f.ID), ErrNotFound)

	require.NoError(t, fx.svc.Delete(ctx, manager, f.ID))
	_, statErr := os.Stat(f.StoredPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, 2, fx.cache.n)
	assert.Equal(t, []string{"Pune"}, fx.queue.rematched)
}

func TestDeleteRejectsProcessing(t *testing.T) {
	fx := newFixture(t, 1<<20)
	ctx := context.Background()
	f, err := fx.svc.Accept(ctx, manager, Input{Type: "warranty", FileName: "w.csv"}, strings.NewReader("Claim No\nC1\n"))
	require.NoError(t, err)
	_, err = fx.store.Claim(ctx, f.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, fx.svc.Delete(ctx, manager, f.ID), ErrBusy)
}

func newRouter(fx *fixture) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, fx.svc, rbac.Middleware{Logger: logger}, 1<<20)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func withPrincipal(req *http.Request, p *rbac.Principal) *http.Request {
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
}

func multipartBody(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandlerUploadFlow(t *testing.T) {
	fx := newFixture(t, 1<<20)
	router := newRouter(fx)

	body, ctype := multipartBody(t, map[string]string{"type": "operations", "city": "Pune"}, "ops.csv", "Part No,Qty\nP1,2\n")
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/", body), manager)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"type":"operations_part"`)
	assert.NotContains(t, rec.Body.String(), "StoredPath")

	body, ctype = multipartBody(t, map[string]string{"type": "operations"}, "ops.csv", "Part No,Qty\nP1,2\n")
	req = withPrincipal(httptest.NewRequest(http.MethodPost, "/", body), manager)
	req.Header.Set("Content-Type", ctype)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/?city=pune", nil), manager))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/not-a-uuid", nil), manager))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRequiresFileAndRole(t *testing.T) {
	fx := newFixture(t, 1<<20)
	router := newRouter(fx)

	body, ctype := multipartBody(t, map[string]string{"type": "warranty"}, "", "")
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/", body), manager)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	advisor := &rbac.Principal{UserID: 3, ShowroomID: 1, City: "Pune", Roles: rbac.NewSet(rbac.RoleServiceAdvisor)}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), advisor))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
