package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/records"
	"github.com/serviceline/serviceline/internal/shared"
)

// Store persists uploads.
type Store interface {
	Create(ctx context.Context, f File) (File, error)
	Get(ctx context.Context, showroomID int64, id uuid.UUID) (File, error)
	List(ctx context.Context, f ListFilter) ([]File, int, error)
	Claim(ctx context.Context, id uuid.UUID) (File, error)
	Ingest(ctx context.Context, id uuid.UUID, recs []records.Record) (int64, error)
	Fail(ctx context.Context, id uuid.UUID, message string) error
	Delete(ctx context.Context, showroomID int64, id uuid.UUID) error
}

// Queue schedules background work.
type Queue interface {
	EnqueueProcessUpload(ctx context.Context, id uuid.UUID) error
	EnqueueRematch(ctx context.Context, showroomID int64, city string) error
}

// Invalidator drops cached dashboards.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Options configures file storage.
type Options struct {
	Dir      string
	MaxBytes int64
}

// Service accepts and processes uploads.
type Service struct {
	store  Store
	queue  Queue
	cache  Invalidator
	audit  shared.AuditRecorder
	logger *slog.Logger
	opts   Options
}

// NewService wires the upload service.
func NewService(store Store, queue Queue, cache Invalidator, audit shared.AuditRecorder, logger *slog.Logger, opts Options) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	return &Service{store: store, queue: queue, cache: cache, audit: audit, logger: logger, opts: opts}
}

// Accept stores body and schedules it for processing. The returned file is
// pending.
func (s *Service) Accept(ctx context.Context, p *rbac.Principal, in Input, body io.Reader) (*File, error) {
	kind, err := ingest.ParseUploadType(in.Type)
	if err != nil {
		return nil, err
	}
	if !ingest.SupportedExtension(in.FileName) {
		return nil, fmt.Errorf("%s: %w", filepath.Ext(in.FileName), ingest.ErrUnsupportedFile)
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		city = p.City
	}
	if city == "" {
		return nil, shared.ErrCityRequired
	}
	if err := os.MkdirAll(s.opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(in.FileName))
	tmpPath, hash, err := s.spool(body, ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	id := uuid.New()
	f, err := s.store.Create(ctx, File{
		ID:         id,
		ShowroomID: p.ShowroomID,
		City:       city,
		Type:       kind,
		FileName:   filepath.Base(in.FileName),
		StoredPath: filepath.Join(s.opts.Dir, id.String()+ext),
		Hash:       hash,
		UploadedBy: p.UserID,
	})
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, f.StoredPath); err != nil {
		_ = s.store.Fail(ctx, f.ID, "store file")
		return nil, fmt.Errorf("store file: %w", err)
	}
	if err := s.queue.EnqueueProcessUpload(ctx, f.ID); err != nil {
		_ = s.store.Fail(ctx, f.ID, "enqueue processing")
		return nil, fmt.Errorf("enqueue upload: %w", err)
	}
	s.logger.Info("upload accepted",
		slog.String("upload_id", f.ID.String()),
		slog.String("type", string(f.Type)),
		slog.String("city", f.City),
		slog.Int64("showroom_id", f.ShowroomID),
	)
	return &f, nil
}

// spool copies body to a temp file in the upload dir while hashing it.
func (s *Service) spool(body io.Reader, ext string) (string, string, error) {
	tmp, err := os.CreateTemp(s.opts.Dir, "upload-*"+ext)
	if err != nil {
		return "", "", fmt.Errorf("temp file: %w", err)
	}
	defer tmp.Close()

	src := body
	if s.opts.MaxBytes > 0 {
		src = io.LimitReader(body, s.opts.MaxBytes+1)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	switch {
	case err != nil:
		err = fmt.Errorf("spool upload: %w", err)
	case n == 0:
		err = ErrEmptyFile
	case s.opts.MaxBytes > 0 && n > s.opts.MaxBytes:
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", "", err
	}
	return tmp.Name(), hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns one upload of the principal's showroom.
func (s *Service) Get(ctx context.Context, p *rbac.Principal, id uuid.UUID) (File, error) {
	return s.store.Get(ctx, p.ShowroomID, id)
}

// List returns a page of uploads for the principal's showroom.
func (s *Service) List(ctx context.Context, p *rbac.Principal, city string, page, perPage int) ([]File, shared.Pagination, error) {
	pg := shared.NewPagination(page, perPage, 0)
	files, total, err := s.store.List(ctx, ListFilter{
		ShowroomID: p.ShowroomID,
		City:       strings.TrimSpace(city),
		Limit:      pg.PerPage,
		Offset:     pg.Offset(),
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return files, shared.NewPagination(pg.Page, pg.PerPage, total), nil
}

// Delete removes an upload with its rows and stored file.
func (s *Service) Delete(ctx context.Context, p *rbac.Principal, id uuid.UUID) error {
	f, err := s.store.Get(ctx, p.ShowroomID, id)
	if err != nil {
		return err
	}
	if f.Status == StatusProcessing {
		return ErrBusy
	}
	if err := s.store.Delete(ctx, p.ShowroomID, id); err != nil {
		return err
	}
	if err := os.Remove(f.StoredPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove stored upload", slog.String("path", f.StoredPath), slog.Any("error", err))
	}
	if f.Status == StatusCompleted {
		s.changed(ctx, f)
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:    p.UserID,
		ShowroomID: p.ShowroomID,
		Action:     "uploads.delete",
		Entity:     "uploaded_files",
		EntityID:   f.ID.String(),
		Meta:       map[string]any{"file_name": f.FileName, "type": string(f.Type), "rows": f.RowCount},
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
	return nil
}

// Process parses a stored upload and loads its rows. Errors wrapping
// ErrUnprocessable are final; the upload is marked failed.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (*File, error) {
	f, err := s.store.Claim(ctx, id)
	if errors.Is(err, ErrNotClaimable) {
		s.logger.Info("upload already handled", slog.String("upload_id", id.String()))
		return nil, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrUnprocessable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("claim upload: %w", err)
	}
	logger := s.logger.With(slog.String("upload_id", f.ID.String()), slog.String("type", string(f.Type)))

	sheet, err := ingest.ReadFile(f.StoredPath)
	if err != nil {
		return nil, s.fail(ctx, f, fmt.Errorf("%w: %w", ErrUnprocessable, err))
	}
	recs := BuildRecords(f, sheet)
	n, err := s.store.Ingest(ctx, f.ID, recs)
	if err != nil {
		return nil, s.fail(ctx, f, fmt.Errorf("load rows: %w", err))
	}
	f.Status = StatusCompleted
	f.RowCount = int(n)
	f.Error = ""
	logger.Info("upload processed", slog.Int64("rows", n))
	s.changed(ctx, f)
	return &f, nil
}

// BuildRecords normalises every sheet row into a record owned by f.
func BuildRecords(f File, sheet *ingest.Sheet) []records.Record {
	out := make([]records.Record, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rec := records.FromCanonical(ingest.Normalize(row, f.Type), f.Type)
		rec.UploadID = f.ID
		rec.ShowroomID = f.ShowroomID
		rec.City = f.City
		out = append(out, rec)
	}
	return out
}

func (s *Service) fail(ctx context.Context, f File, cause error) error {
	message := "rows could not be stored"
	if errors.Is(cause, ErrUnprocessable) {
		message = cause.Error()
	}
	if err := s.store.Fail(ctx, f.ID, message); err != nil {
		s.logger.Error("mark upload failed", slog.String("upload_id", f.ID.String()), slog.Any("error", err))
	}
	s.logger.Warn("upload failed", slog.String("upload_id", f.ID.String()), slog.Any("error", cause))
	return cause
}

// changed refreshes derived state after the rows of f were added or removed.
func (s *Service) changed(ctx context.Context, f File) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("dashboard cache bump failed", slog.Any("error", err))
		}
	}
	if !f.TriggersRematch() {
		return
	}
	if err := s.queue.EnqueueRematch(ctx, f.ShowroomID, f.City); err != nil {
		s.logger.Warn("enqueue rematch failed", slog.Int64("showroom_id", f.ShowroomID), slog.Any("error", err))
	}
}
