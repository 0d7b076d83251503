package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/serviceline/serviceline/internal/users"
)

// UserCreator stores accounts.
type UserCreator interface {
	CreateUser(ctx context.Context, in users.CreateInput) (int64, error)
}

// ShowroomStore creates showrooms on demand.
type ShowroomStore interface {
	EnsureShowroom(ctx context.Context, code, name, city string) (int64, error)
}

// SeedOptions describes the account to seed.
type SeedOptions struct {
	ShowroomCode string
	ShowroomName string
	City         string
	Email        string
	Name         string
	Password     string
	Roles        string
	Stdout       io.Writer
	Stderr       io.Writer
}

// UsersCLI seeds accounts for first time setup.
type UsersCLI struct {
	users     UserCreator
	showrooms ShowroomStore
	validate  *validator.Validate
}

// NewUsersCLI wires the helper.
func NewUsersCLI(users UserCreator, showrooms ShowroomStore) *UsersCLI {
	return &UsersCLI{users: users, showrooms: showrooms, validate: validator.New()}
}

// SeedCommand ensures the showroom exists and creates the account. Roles
// accept tags or the legacy "Owner | GM" form.
func (c *UsersCLI) SeedCommand(ctx context.Context, opts SeedOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	code := strings.TrimSpace(opts.ShowroomCode)
	if code == "" {
		fmt.Fprintln(opts.Stderr, "users seed: --showroom is required")
		return 1
	}
	name := strings.TrimSpace(opts.ShowroomName)
	if name == "" {
		name = code
	}
	in := users.CreateInput{
		Email:    opts.Email,
		Name:     opts.Name,
		Password: opts.Password,
		City:     opts.City,
		Roles:    opts.Roles,
	}
	if err := c.validate.Struct(in); err != nil {
		fmt.Fprintf(opts.Stderr, "users seed: %v\n", err)
		return 1
	}
	showroomID, err := c.showrooms.EnsureShowroom(ctx, code, name, opts.City)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "users seed: showroom: %v\n", err)
		return 1
	}
	in.ShowroomID = showroomID
	id, err := c.users.CreateUser(ctx, in)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "users seed: %v\n", err)
		return 1
	}
	fmt.Fprintf(opts.Stdout, "created user %d (%s) in showroom %s\n", id, strings.ToLower(strings.TrimSpace(in.Email)), code)
	return 0
}
