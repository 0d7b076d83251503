package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/serviceline/serviceline/internal/advisors"
	jobmetrics "github.com/serviceline/serviceline/internal/jobs"
	"github.com/serviceline/serviceline/internal/performance"
	"github.com/serviceline/serviceline/internal/uploads"
)

// UploadProcessor turns a stored upload into rows.
type UploadProcessor interface {
	Process(ctx context.Context, id uuid.UUID) (*uploads.File, error)
}

// Rematcher recomputes booking matches.
type Rematcher interface {
	Rematch(ctx context.Context, showroomID int64, city string) (performance.MatchSummary, int64, error)
}

// Reconciler links unassigned rows to advisor accounts.
type Reconciler interface {
	ReconcileAll(ctx context.Context, apply bool) ([]advisors.Report, error)
}

// Jobs holds the task handlers run by the worker.
type Jobs struct {
	Uploads    UploadProcessor
	Rematcher  Rematcher
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handlers lists the task handlers for NewWorker.
func (j *Jobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskProcessUpload, Handler: j.HandleProcessUpload},
		{Type: TaskRematch, Handler: j.HandleRematch},
		{Type: TaskAdvisorBackfill, Handler: j.HandleAdvisorBackfill},
	}
}

func (j *Jobs) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// HandleProcessUpload processes TaskProcessUpload tasks. Files that cannot
// be parsed are not retried.
func (j *Jobs) HandleProcessUpload(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload ProcessUploadPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.UploadID == uuid.Nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskProcessUpload)
	defer func() { resultErr = tracker.End(resultErr) }()

	f, err := j.Uploads.Process(ctx, payload.UploadID)
	if errors.Is(err, uploads.ErrUnprocessable) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if f != nil {
		j.Metrics.AddRows(string(f.Type), f.RowCount)
	}
	return nil
}

// HandleRematch processes TaskRematch tasks.
func (j *Jobs) HandleRematch(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload RematchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ShowroomID == 0 || payload.City == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskRematch)
	defer func() { resultErr = tracker.End(resultErr) }()

	summary, updated, err := j.Rematcher.Rematch(ctx, payload.ShowroomID, payload.City)
	if err != nil {
		return fmt.Errorf("rematch: %w", err)
	}
	j.logger().Info("bookings rematched",
		slog.Int64("showroom_id", payload.ShowroomID),
		slog.String("city", payload.City),
		slog.Int("total", summary.TotalBookings),
		slog.Int("matched", summary.MatchedVINs),
		slog.Int64("rows_updated", updated),
	)
	return nil
}

// HandleAdvisorBackfill processes TaskAdvisorBackfill tasks.
func (j *Jobs) HandleAdvisorBackfill(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload AdvisorBackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskAdvisorBackfill)
	defer func() { resultErr = tracker.End(resultErr) }()

	reports, err := j.Reconciler.ReconcileAll(ctx, payload.Apply)
	if err != nil {
		return fmt.Errorf("advisor backfill: %w", err)
	}
	var assigned int64
	ambiguous := 0
	for _, r := range reports {
		assigned += r.AssignedRows
		ambiguous += len(r.Ambiguous)
	}
	j.logger().Info("advisor backfill finished",
		slog.Bool("apply", payload.Apply),
		slog.Int("showrooms", len(reports)),
		slog.Int64("assigned_rows", assigned),
		slog.Int("ambiguous_names", ambiguous),
	)
	return nil
}
