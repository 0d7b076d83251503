package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var (
		user  User
		roles []string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, email, name, password_hash, showroom_id, city, roles, is_active, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)`, email).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.ShowroomID, &user.City,
		&roles, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.Roles = rbac.SetFromStrings(roles)
	return &user, nil
}

var _ Repository = (*PGRepository)(nil)
