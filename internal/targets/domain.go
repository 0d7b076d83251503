// Package targets persists city targets and their split across advisors.
package targets

import (
	"errors"
	"fmt"

	"github.com/serviceline/serviceline/internal/platform/httpx"
)

// Values are the six targeted metrics.
type Values struct {
	Labour        float64 `json:"labour" validate:"gte=0"`
	Parts         float64 `json:"parts" validate:"gte=0"`
	TotalVehicles float64 `json:"totalVehicles" validate:"gte=0"`
	PaidService   float64 `json:"paidService" validate:"gte=0"`
	FreeService   float64 `json:"freeService" validate:"gte=0"`
	RR            float64 `json:"rr" validate:"gte=0"`
}

// IsZero reports whether every field is zero.
func (v Values) IsZero() bool {
	return v == Values{}
}

// CityTarget is the GM entered target for a city and month.
type CityTarget struct {
	City   string `json:"city"`
	Month  string `json:"month"`
	Values
}

// AdvisorTarget is one advisor's share of a city target. UserID is set when
// the share belongs to a reconciled account and is zero for name-only rows.
type AdvisorTarget struct {
	UserID      int64  `json:"userId,omitempty" validate:"gte=0"`
	AdvisorName string `json:"advisorName" validate:"required"`
	Values
}

// Advisor identifies one billing advisor. Reconciled advisors carry their
// account id and account name; the rest are known by the name on the rows.
type Advisor struct {
	UserID int64
	Name   string
}

// Scope of a stored target row.
const (
	ScopeCity    = "city"
	ScopeAdvisor = "advisor"
)

// Distribution modes.
const (
	ModeAutomatic = "automatic"
	ModeManual    = "manual"
)

// Distribution is the saved advisor split for a city and month.
type Distribution struct {
	City     string          `json:"city"`
	Month    string          `json:"month"`
	Mode     string          `json:"mode,omitempty"`
	Advisors []AdvisorTarget `json:"advisors" validate:"dive"`
}

var (
	// ErrNoCityTarget is returned when distributing before a city target exists.
	ErrNoCityTarget = fmt.Errorf("no city target saved for this month: %w", httpx.ErrNotFound)
	// ErrNoAdvisors is returned when the city has no billing advisors.
	ErrNoAdvisors = fmt.Errorf("no advisors found in billing data: %w", httpx.ErrValidation)
	// ErrDuplicateAdvisor is returned for manual lists naming an advisor twice.
	ErrDuplicateAdvisor = fmt.Errorf("advisor listed more than once: %w", httpx.ErrValidation)
	errNegative         = errors.New("target values must not be negative")
)
