// Package uploads accepts spreadsheet uploads and turns them into service
// records in the background.
package uploads

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/platform/httpx"
)

// Status is the processing state of an uploaded file.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// File is one uploaded spreadsheet.
type File struct {
	ID         uuid.UUID         `json:"id"`
	ShowroomID int64             `json:"showroomId"`
	City       string            `json:"city"`
	Type       ingest.UploadType `json:"type"`
	FileName   string            `json:"fileName"`
	StoredPath string            `json:"-"`
	Hash       string            `json:"hash"`
	UploadedBy int64             `json:"uploadedBy"`
	RowCount   int               `json:"rowCount"`
	Status     Status            `json:"status"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// TriggersRematch reports whether rows of this type feed booking matching.
func (f File) TriggersRematch() bool {
	return f.Type == ingest.TypeROBilling || f.Type == ingest.TypeBookingList
}

// Input carries the form fields of an upload.
type Input struct {
	Type     string `validate:"required"`
	City     string `validate:"omitempty,max=120"`
	FileName string `validate:"required,max=255"`
}

var (
	// ErrNotFound is returned for unknown uploads or uploads of another showroom.
	ErrNotFound = fmt.Errorf("upload not found: %w", httpx.ErrNotFound)
	// ErrDuplicateUpload is returned when the same file was already uploaded
	// for the showroom and type.
	ErrDuplicateUpload = fmt.Errorf("file already uploaded: %w", httpx.ErrDuplicate)
	// ErrTooLarge is returned when the file exceeds the configured limit.
	ErrTooLarge = fmt.Errorf("file too large: %w", httpx.ErrValidation)
	// ErrEmptyFile is returned for zero byte uploads.
	ErrEmptyFile = fmt.Errorf("file is empty: %w", httpx.ErrValidation)
	// ErrBusy is returned when deleting an upload that is being processed.
	ErrBusy = fmt.Errorf("upload is being processed: %w", httpx.ErrDuplicate)
	// ErrNotClaimable is returned when an upload is already processing or done.
	ErrNotClaimable = errors.New("upload is not awaiting processing")
	// ErrUnprocessable marks processing failures that retrying cannot fix.
	ErrUnprocessable = errors.New("upload cannot be processed")
)
