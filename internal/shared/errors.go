package shared

import (
	"errors"
	"fmt"

	"github.com/serviceline/serviceline/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = fmt.Errorf("not found: %w", httpx.ErrNotFound)
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	// ErrInvalidMonth is returned for month values not in YYYY-MM form.
	ErrInvalidMonth = fmt.Errorf("month must be YYYY-MM: %w", httpx.ErrValidation)
	// ErrCityRequired is returned when a city scoped call has no city.
	ErrCityRequired = fmt.Errorf("city required: %w", httpx.ErrValidation)
)

// UserSafeMessage returns a message safe to show in API responses.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrDuplicate), errors.Is(err, httpx.ErrForbidden):
		return err.Error()
	default:
		return "unexpected error"
	}
}
