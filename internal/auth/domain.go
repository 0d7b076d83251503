package auth

import (
	"time"

	"github.com/serviceline/serviceline/internal/rbac"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	ShowroomID   int64
	City         string
	Roles        rbac.Set
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal converts the account into the request principal.
func (u *User) Principal() *rbac.Principal {
	return &rbac.Principal{
		UserID:     u.ID,
		Name:       u.Name,
		ShowroomID: u.ShowroomID,
		City:       u.City,
		Roles:      u.Roles,
	}
}
