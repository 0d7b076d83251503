package users

import (
	"time"

	"github.com/serviceline/serviceline/internal/rbac"
)

// User represents a user account for management.
type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	ShowroomID int64     `json:"showroom_id"`
	City       string    `json:"city"`
	Roles      rbac.Set  `json:"-"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateInput carries the fields for a new account. Roles may be tags or a
// legacy "Owner | GM" string.
type CreateInput struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required,max=120"`
	Password   string `json:"password" validate:"required,min=8"`
	City       string `json:"city" validate:"max=80"`
	Roles      string `json:"roles" validate:"required"`
	ShowroomID int64  `json:"-"`
}
