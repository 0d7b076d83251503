package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serviceline/serviceline/internal/platform/db"
	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, showroom_id, city, roles, is_active, created_at, updated_at`

// ListUsers returns the users of a showroom.
func (r *Repository) ListUsers(ctx context.Context, showroomID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE showroom_id = $1 ORDER BY name, id`, showroomID)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

// ListByRole returns active users of a showroom holding role.
func (r *Repository) ListByRole(ctx context.Context, showroomID int64, role rbac.Role) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users
		WHERE showroom_id = $1 AND is_active AND $2 = ANY(roles) ORDER BY name, id`, showroomID, string(role))
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

// CreateUser inserts the account and returns its id.
func (r *Repository) CreateUser(ctx context.Context, in CreateInput, passwordHash string, roles rbac.Set) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, showroom_id, city, roles)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		in.Email, in.Name, passwordHash, in.ShowroomID, in.City, roles.Strings()).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("email %s already registered: %w", in.Email, httpx.ErrDuplicate)
		}
		return 0, err
	}
	return id, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()
	var users []User
	for rows.Next() {
		var (
			user  User
			roles []string
		)
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.ShowroomID, &user.City,
			&roles, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		user.Roles = rbac.SetFromStrings(roles)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// EnsureShowroom returns the id of the showroom with code, creating it when
// missing.
func (r *Repository) EnsureShowroom(ctx context.Context, code, name, city string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO showrooms (code, name, city) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, code, name, city).Scan(&id)
	return id, err
}
