package auth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/serviceline/serviceline/internal/shared"
)

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Roles     []string  `json:"roles"`
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *Tokens
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *Tokens) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresAt: expires,
		UserID:    user.ID,
		Name:      user.Name,
		City:      user.City,
		Roles:     user.Roles.Strings(),
	}, nil
}

// HashPassword returns the bcrypt hash stored for new accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
