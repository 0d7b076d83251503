package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, showroomID int64) ([]User, error)
	ListByRole(ctx context.Context, showroomID int64, role rbac.Role) ([]User, error)
	CreateUser(ctx context.Context, in CreateInput, passwordHash string, roles rbac.Set) (int64, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users of the showroom.
func (s *Service) ListUsers(ctx context.Context, showroomID int64) ([]User, error) {
	return s.repo.ListUsers(ctx, showroomID)
}

// ListAdvisors returns the active service advisors of the showroom.
func (s *Service) ListAdvisors(ctx context.Context, showroomID int64) ([]User, error) {
	return s.repo.ListByRole(ctx, showroomID, rbac.RoleServiceAdvisor)
}

// CreateUser parses the role string once, hashes the password and stores
// the account. Unrecognised role tokens are rejected.
func (s *Service) CreateUser(ctx context.Context, in CreateInput) (int64, error) {
	roles, unknown := rbac.ParseLegacyRoles(in.Roles)
	if len(unknown) > 0 {
		return 0, fmt.Errorf("unknown roles %s: %w", strings.Join(unknown, ", "), httpx.ErrValidation)
	}
	if len(roles) == 0 {
		return 0, fmt.Errorf("at least one role required: %w", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	return s.repo.CreateUser(ctx, in, string(hash), roles)
}
