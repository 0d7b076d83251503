package targets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serviceline/serviceline/internal/platform/db"
	"github.com/serviceline/serviceline/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for targets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const valueColumns = `labour, parts, total_vehicles, paid_service, free_service, rr`

// CityTarget loads the city target, returning nil when none is saved.
func (r *Repository) CityTarget(ctx context.Context, showroomID int64, city, month string) (*CityTarget, error) {
	t := CityTarget{City: city, Month: month}
	err := r.pool.QueryRow(ctx, `SELECT `+valueColumns+` FROM targets
		WHERE showroom_id = $1 AND lower(city) = lower($2) AND month = $3 AND scope = 'city'`,
		showroomID, city, month).Scan(scanValues(&t.Values)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveCityTarget upserts the city target.
func (r *Repository) SaveCityTarget(ctx context.Context, showroomID, actorID int64, t CityTarget) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO targets (showroom_id, city, month, scope, advisor_name, `+valueColumns+`, updated_by)
		VALUES ($1, $2, $3, 'city', '', $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (showroom_id, city, month, scope, advisor_name, (COALESCE(advisor_id, 0))) DO UPDATE SET
			labour = EXCLUDED.labour, parts = EXCLUDED.parts, total_vehicles = EXCLUDED.total_vehicles,
			paid_service = EXCLUDED.paid_service, free_service = EXCLUDED.free_service, rr = EXCLUDED.rr,
			updated_by = EXCLUDED.updated_by, updated_at = NOW()`,
		showroomID, t.City, t.Month, t.Labour, t.Parts, t.TotalVehicles, t.PaidService, t.FreeService, t.RR, actorID)
	return err
}

// AdvisorTargets lists the saved advisor split ordered by name.
func (r *Repository) AdvisorTargets(ctx context.Context, showroomID int64, city, month string) ([]AdvisorTarget, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(advisor_id, 0), advisor_name, `+valueColumns+` FROM targets
		WHERE showroom_id = $1 AND lower(city) = lower($2) AND month = $3 AND scope = 'advisor'
		ORDER BY advisor_name, advisor_id NULLS FIRST`, showroomID, city, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]AdvisorTarget, 0)
	for rows.Next() {
		var t AdvisorTarget
		if err := rows.Scan(append([]any{&t.UserID, &t.AdvisorName}, scanValues(&t.Values)...)...); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReplaceAdvisorTargets deletes the previous split for the city and month
// and inserts list in one transaction.
func (r *Repository) ReplaceAdvisorTargets(ctx context.Context, showroomID, actorID int64, city, month string, list []AdvisorTarget) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM targets
			WHERE showroom_id = $1 AND lower(city) = lower($2) AND month = $3 AND scope = 'advisor'`,
			showroomID, city, month); err != nil {
			return fmt.Errorf("clear advisor targets: %w", err)
		}
		batch := &pgx.Batch{}
		for _, t := range list {
			batch.Queue(`INSERT INTO targets (showroom_id, city, month, scope, advisor_id, advisor_name, `+valueColumns+`, updated_by)
				VALUES ($1, $2, $3, 'advisor', NULLIF($4::bigint, 0), $5, $6, $7, $8, $9, $10, $11, $12)`,
				showroomID, city, month, t.UserID, t.AdvisorName, t.Labour, t.Parts, t.TotalVehicles, t.PaidService, t.FreeService, t.RR, actorID)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if db.IsForeignKeyViolation(err) {
				return fmt.Errorf("unknown advisor account: %w", httpx.ErrValidation)
			}
			return err
		}
		return nil
	})
}

func scanValues(v *Values) []any {
	return []any{&v.Labour, &v.Parts, &v.TotalVehicles, &v.PaidService, &v.FreeService, &v.RR}
}
