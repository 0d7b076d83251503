package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window returns up to limit rows after skipping offset, newest first.
// A non-positive limit returns every matching row.
func (r *PGRepository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := timelineWhere(f)
	sql := `SELECT a.occurred_at, a.actor_id, COALESCE(u.name, ''), a.action, a.entity, a.entity_id, a.meta
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE ` + where + `
		ORDER BY a.occurred_at DESC, a.id DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.At, &row.ActorID, &row.ActorName, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func timelineWhere(f TimelineFilters) (string, []any) {
	clauses := []string{"a.showroom_id = $1"}
	args := []any{f.ShowroomID}
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !f.From.IsZero() {
		add("a.occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.occurred_at < $%d", f.To)
	}
	if f.ActorID > 0 {
		add("a.actor_id = $%d", f.ActorID)
	}
	if f.Entity != "" {
		add("a.entity = $%d", f.Entity)
	}
	if f.Action != "" {
		add("a.action = $%d", f.Action)
	}
	return strings.Join(clauses, " AND "), args
}
