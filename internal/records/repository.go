package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/platform/db"
	"github.com/serviceline/serviceline/internal/targets"
)

// ErrShowroomRequired guards against unscoped reads.
var ErrShowroomRequired = errors.New("records: showroom scope required")

// Repository provides PostgreSQL backed persistence for service_records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var copyColumns = []string{
	"upload_id", "showroom_id", "city", "record_type", "ro_number", "advisor_name",
	"vin", "registration_no", "work_type", "labour_amount", "part_amount", "bill_date", "payload",
}

// InsertBatch bulk loads recs with COPY on q, which may be a transaction.
func InsertBatch(ctx context.Context, q db.DBTX, recs []Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return 0, fmt.Errorf("encode payload: %w", err)
		}
		rows = append(rows, []any{
			r.UploadID, r.ShowroomID, r.City, string(r.Type), r.RONumber, r.AdvisorName,
			r.VIN, r.RegistrationNo, r.WorkType, r.LabourAmount.InexactFloat64(), r.PartAmount.InexactFloat64(), r.Date, payload,
		})
	}
	n, err := q.CopyFrom(ctx, pgx.Identifier{"service_records"}, copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy service_records: %w", err)
	}
	return n, nil
}

// List returns the records matching f ordered by id.
func (r *Repository) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.ShowroomID == 0 {
		return nil, ErrShowroomRequired
	}
	var (
		where = []string{"showroom_id = $1"}
		args  = []any{f.ShowroomID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Type != "" {
		add("record_type = $%d", string(f.Type))
	}
	if f.City != "" {
		add("lower(city) = lower($%d)", f.City)
	}
	if !f.From.IsZero() {
		add("bill_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("bill_date < $%d", f.To)
	}
	if f.AdvisorUserID != 0 {
		args = append(args, f.AdvisorUserID, f.AdvisorName)
		where = append(where, fmt.Sprintf("(advisor_id = $%d OR (advisor_id IS NULL AND lower(btrim(advisor_name)) = lower(btrim($%d))))", len(args)-1, len(args)))
	}

	sql := `SELECT id, upload_id, showroom_id, city, record_type, ro_number, advisor_name, advisor_id,
		vin, registration_no, work_type, labour_amount, part_amount, bill_date, matched, payload
		FROM service_records WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			rec     Record
			kind    string
			labour  float64
			part    float64
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UploadID, &rec.ShowroomID, &rec.City, &kind, &rec.RONumber,
			&rec.AdvisorName, &rec.AdvisorID, &rec.VIN, &rec.RegistrationNo, &rec.WorkType,
			&labour, &part, &rec.Date, &rec.Matched, &payload); err != nil {
			return nil, err
		}
		rec.Type = ingest.UploadType(kind)
		rec.LabourAmount = decimal.NewFromFloat(labour)
		rec.PartAmount = decimal.NewFromFloat(part)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, fmt.Errorf("decode payload %d: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DistinctAdvisors returns one entry per advisor in a city's billing rows.
// Reconciled rows collapse onto their account and take the account name
// whatever spelling the file used; the rest are keyed by trimmed name.
func (r *Repository) DistinctAdvisors(ctx context.Context, showroomID int64, city string) ([]targets.Advisor, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT COALESCE(r.advisor_id, 0) AS advisor_id,
			COALESCE(u.name, btrim(r.advisor_name)) AS name
		FROM service_records r LEFT JOIN users u ON u.id = r.advisor_id
		WHERE r.showroom_id = $1 AND lower(r.city) = lower($2) AND r.record_type = 'ro_billing'
		AND (r.advisor_id IS NOT NULL OR btrim(r.advisor_name) <> '')
		ORDER BY name, advisor_id`, showroomID, city)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[targets.Advisor])
}

// SetMatched rewrites the matched flag of the booking rows in scope.
func (r *Repository) SetMatched(ctx context.Context, showroomID int64, city string, matchedIDs []int64) (int64, error) {
	if matchedIDs == nil {
		matchedIDs = []int64{}
	}
	tag, err := r.pool.Exec(ctx, `UPDATE service_records SET matched = (id = ANY($3))
		WHERE showroom_id = $1 AND lower(city) = lower($2) AND record_type = 'booking_list'
		AND matched IS DISTINCT FROM (id = ANY($3))`, showroomID, city, matchedIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UnassignedAdvisorNames counts rows without advisor_id per trimmed name.
func (r *Repository) UnassignedAdvisorNames(ctx context.Context, showroomID int64) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT btrim(advisor_name), COUNT(*) FROM service_records
		WHERE showroom_id = $1 AND advisor_id IS NULL AND btrim(advisor_name) <> ''
		GROUP BY btrim(advisor_name)`, showroomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			name  string
			count int64
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		out[name] = count
	}
	return out, rows.Err()
}

// AssignAdvisor sets advisor_id on unassigned rows carrying name.
func (r *Repository) AssignAdvisor(ctx context.Context, showroomID int64, name string, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE service_records SET advisor_id = $3
		WHERE showroom_id = $1 AND advisor_id IS NULL AND btrim(advisor_name) = $2`, showroomID, name, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Cities returns the cities that have rows of kind in the showroom.
func (r *Repository) Cities(ctx context.Context, showroomID int64, kind ingest.UploadType) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT city FROM service_records
		WHERE showroom_id = $1 AND record_type = $2 ORDER BY city`, showroomID, string(kind))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
