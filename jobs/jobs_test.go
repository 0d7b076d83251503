package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/serviceline/internal/advisors"
	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/performance"
	"github.com/serviceline/serviceline/internal/uploads"
)

type fakeUploads struct {
	got  uuid.UUID
	file *uploads.File
	err  error
}

func (f *fakeUploads) Process(ctx context.Context, id uuid.UUID) (*uploads.File, error) {
	f.got = id
	return f.file, f.err
}

type fakeRematcher struct {
	showroomID int64
	city       string
	err        error
}

func (f *fakeRematcher) Rematch(ctx context.Context, showroomID int64, city string) (performance.MatchSummary, int64, error) {
	f.showroomID, f.city = showroomID, city
	return performance.MatchSummary{TotalBookings: 3, MatchedVINs: 2, UnmatchedVINs: 1}, 3, f.err
}

type fakeReconciler struct{ apply *bool }

func (f *fakeReconciler) ReconcileAll(ctx context.Context, apply bool) ([]advisors.Report, error) {
	f.apply = &apply
	return []advisors.Report{{ShowroomID: 1, AssignedRows: 4}}, nil
}

func newJobs(up *fakeUploads, rm *fakeRematcher, rc *fakeReconciler) *Jobs {
	return &Jobs{Uploads: up, Rematcher: rm, Reconciler: rc, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestTaskConstructors(t *testing.T) {
	id := uuid.New()
	task, err := NewProcessUploadTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskProcessUpload, task.Type())
	var up ProcessUploadPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &up))
	assert.Equal(t, id, up.UploadID)

	task, err = NewRematchTask(3, "Pune")
	require.NoError(t, err)
	assert.Equal(t, TaskRematch, task.Type())
	assert.JSONEq(t, `{"showroom_id":3,"city":"Pune"}`, string(task.Payload()))

	task, err = NewAdvisorBackfillTask(true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"apply":true}`, string(task.Payload()))
}

func TestHandleProcessUpload(t *testing.T) {
	id := uuid.New()
	up := &fakeUploads{file: &uploads.File{ID: id, Type: ingest.TypeROBilling, RowCount: 10}}
	j := newJobs(up, nil, nil)
	task, err := NewProcessUploadTask(id)
	require.NoError(t, err)

	require.NoError(t, j.HandleProcessUpload(context.Background(), task))
	assert.Equal(t, id, up.got)

	up.err = errors.New("connection reset")
	err = j.HandleProcessUpload(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "infrastructure errors are retried")

	up.err = uploads.ErrUnprocessable
	err = j.HandleProcessUpload(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = j.HandleProcessUpload(context.Background(), asynq.NewTask(TaskProcessUpload, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleRematch(t *testing.T) {
	rm := &fakeRematcher{}
	j := newJobs(nil, rm, nil)
	task, err := NewRematchTask(2, "Nashik")
	require.NoError(t, err)
	require.NoError(t, j.HandleRematch(context.Background(), task))
	assert.Equal(t, int64(2), rm.showroomID)
	assert.Equal(t, "Nashik", rm.city)

	err = j.HandleRematch(context.Background(), asynq.NewTask(TaskRematch, []byte(`{"showroom_id":2}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	rm.err = errors.New("db down")
	assert.Error(t, j.HandleRematch(context.Background(), task))
}

func TestHandleAdvisorBackfill(t *testing.T) {
	rc := &fakeReconciler{}
	j := newJobs(nil, nil, rc)
	task, err := NewAdvisorBackfillTask(true)
	require.NoError(t, err)
	require.NoError(t, j.HandleAdvisorBackfill(context.Background(), task))
	require.NotNil(t, rc.apply)
	assert.True(t, *rc.apply)

	assert.ErrorIs(t, j.HandleAdvisorBackfill(context.Background(), asynq.NewTask(TaskAdvisorBackfill, []byte(`nope`))), asynq.SkipRetry)
}

func TestHandlersRegistersEveryTask(t *testing.T) {
	j := newJobs(nil, nil, nil)
	types := map[string]bool{}
	for _, h := range j.Handlers() {
		types[h.Type] = h.Handler != nil
	}
	assert.Equal(t, map[string]bool{TaskProcessUpload: true, TaskRematch: true, TaskAdvisorBackfill: true}, types)
}

type fakeInspector map[string]*asynq.QueueInfo

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthHandler(t *testing.T) {
	h := NewHandler(fakeInspector{QueueUploads: {Queue: QueueUploads, Pending: 4, Active: 1}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[
		{"queue":"uploads","pending":4,"active":1,"retry":0,"failed":0},
		{"queue":"default","pending":0,"active":0,"retry":0,"failed":0}
	]}`, rec.Body.String())
}
