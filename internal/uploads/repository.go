package uploads

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/platform/db"
	"github.com/serviceline/serviceline/internal/records"
)

// Repository persists uploaded_files and loads their rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const fileColumns = `id, showroom_id, city, upload_type, file_name, stored_path, file_hash,
	uploaded_by, row_count, status, COALESCE(error_message, ''), created_at, updated_at`

func scanFile(row pgx.Row) (File, error) {
	var (
		f    File
		kind string
		st   string
	)
	err := row.Scan(&f.ID, &f.ShowroomID, &f.City, &kind, &f.FileName, &f.StoredPath, &f.Hash,
		&f.UploadedBy, &f.RowCount, &st, &f.Error, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return File{}, ErrNotFound
	}
	if err != nil {
		return File{}, err
	}
	f.Type = ingest.UploadType(kind)
	f.Status = Status(st)
	return f, nil
}

// Create inserts a pending upload.
func (r *Repository) Create(ctx context.Context, f File) (File, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO uploaded_files
		(id, showroom_id, city, upload_type, file_name, stored_path, file_hash, uploaded_by, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING `+fileColumns,
		f.ID, f.ShowroomID, f.City, string(f.Type), f.FileName, f.StoredPath, f.Hash, f.UploadedBy)
	out, err := scanFile(row)
	if db.IsUniqueViolation(err) {
		return File{}, ErrDuplicateUpload
	}
	return out, err
}

// Get loads an upload of the showroom.
func (r *Repository) Get(ctx context.Context, showroomID int64, id uuid.UUID) (File, error) {
	return scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM uploaded_files
		WHERE showroom_id = $1 AND id = $2`, showroomID, id))
}

// ListFilter scopes List.
type ListFilter struct {
	ShowroomID int64
	City       string
	Limit      int
	Offset     int
}

// List returns uploads newest first with the total match count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]File, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM uploaded_files
		WHERE showroom_id = $1 AND ($2 = '' OR lower(city) = lower($2))`,
		f.ShowroomID, f.City).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+fileColumns+` FROM uploaded_files
		WHERE showroom_id = $1 AND ($2 = '' OR lower(city) = lower($2))
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		f.ShowroomID, f.City, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []File{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, file)
	}
	return out, total, rows.Err()
}

// Claim moves a pending or failed upload to processing and returns it.
// Uploads in any other state yield ErrNotClaimable.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID) (File, error) {
	f, err := scanFile(r.pool.QueryRow(ctx, `UPDATE uploaded_files
		SET status = 'processing', error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending','failed')
		RETURNING `+fileColumns, id))
	if errors.Is(err, ErrNotFound) {
		var exists bool
		if qerr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM uploaded_files WHERE id = $1)`, id).Scan(&exists); qerr != nil {
			return File{}, qerr
		}
		if exists {
			return File{}, ErrNotClaimable
		}
	}
	return f, err
}

// Ingest replaces the rows of an upload and marks it completed in one
// transaction.
func (r *Repository) Ingest(ctx context.Context, id uuid.UUID, recs []records.Record) (int64, error) {
	var n int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM service_records WHERE upload_id = $1`, id); err != nil {
			return fmt.Errorf("clear rows: %w", err)
		}
		var err error
		n, err = records.InsertBatch(ctx, tx, recs)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE uploaded_files
			SET status = 'completed', row_count = $2, error_message = NULL, updated_at = NOW()
			WHERE id = $1`, id, n)
		return err
	})
	return n, err
}

// Fail records a processing error.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `UPDATE uploaded_files
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1`, id, message)
	return err
}

// Delete removes an upload and, by cascade, its rows.
func (r *Repository) Delete(ctx context.Context, showroomID int64, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM uploaded_files WHERE showroom_id = $1 AND id = $2`, showroomID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
