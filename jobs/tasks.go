package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueUploads carries upload processing so large files do not starve
	// the scheduled work.
	QueueUploads = "uploads"

	// TaskProcessUpload parses a stored upload into service records.
	TaskProcessUpload = "uploads:process"
	// TaskRematch recomputes booking to billing matches for a showroom city.
	TaskRematch = "records:rematch"
	// TaskAdvisorBackfill links unassigned rows to advisor accounts.
	TaskAdvisorBackfill = "advisors:backfill"
)

// ProcessUploadPayload identifies the upload to process.
type ProcessUploadPayload struct {
	UploadID uuid.UUID `json:"upload_id"`
}

// RematchPayload scopes a rematch run.
type RematchPayload struct {
	ShowroomID int64  `json:"showroom_id"`
	City       string `json:"city"`
}

// AdvisorBackfillPayload controls a reconciliation run across showrooms.
type AdvisorBackfillPayload struct {
	Apply bool `json:"apply"`
}

// NewProcessUploadTask builds an upload task. The task id is derived from
// the upload so a double submit is rejected by the queue.
func NewProcessUploadTask(id uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(ProcessUploadPayload{UploadID: id})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcessUpload, body,
		asynq.Queue(QueueUploads),
		asynq.TaskID("upload:"+id.String()),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	), nil
}

// NewRematchTask builds a rematch task, unique per showroom city for a minute.
func NewRematchTask(showroomID int64, city string) (*asynq.Task, error) {
	body, err := json.Marshal(RematchPayload{ShowroomID: showroomID, City: city})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRematch, body,
		asynq.Queue(QueueDefault),
		asynq.Unique(time.Minute),
		asynq.MaxRetry(5),
	), nil
}

// NewAdvisorBackfillTask builds a reconciliation task.
func NewAdvisorBackfillTask(apply bool) (*asynq.Task, error) {
	body, err := json.Marshal(AdvisorBackfillPayload{Apply: apply})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAdvisorBackfill, body, asynq.Queue(QueueDefault), asynq.MaxRetry(2)), nil
}
