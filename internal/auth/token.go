package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/serviceline/serviceline/internal/rbac"
)

// ErrInvalidToken is returned for malformed, expired or forged tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the custom payload of an access token.
type Claims struct {
	UserID     int64    `json:"uid"`
	ShowroomID int64    `json:"sid"`
	City       string   `json:"city"`
	Name       string   `json:"name"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens constructs a token issuer.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock overrides the clock used for issued-at and expiry.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	t.now = now
	return t
}

// Issue signs a token for the user and returns it with its expiry.
func (t *Tokens) Issue(u *User) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := Claims{
		UserID:     u.ID,
		ShowroomID: u.ShowroomID,
		City:       u.City,
		Name:       u.Name,
		Roles:      u.Roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the token and returns the principal it carries.
func (t *Tokens) Parse(raw string) (*rbac.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 || claims.ShowroomID == 0 {
		return nil, ErrInvalidToken
	}
	return &rbac.Principal{
		UserID:     claims.UserID,
		Name:       claims.Name,
		ShowroomID: claims.ShowroomID,
		City:       claims.City,
		Roles:      rbac.SetFromStrings(claims.Roles),
	}, nil
}
