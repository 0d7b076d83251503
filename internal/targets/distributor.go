package targets

import (
	"fmt"
	"math"
	"strings"

	"github.com/serviceline/serviceline/internal/platform/httpx"
)

// DistributeEvenly splits city across advisors. Each field is divided by the
// number of distinct advisors and rounded on its own, so per-advisor values
// need not sum back to the city total. No advisors yields an empty result.
func DistributeEvenly(city Values, advisors []Advisor) []AdvisorTarget {
	list := uniqueAdvisors(advisors)
	n := float64(len(list))
	out := make([]AdvisorTarget, 0, len(list))
	if n == 0 {
		return out
	}
	share := Values{
		Labour:        math.Round(city.Labour / n),
		Parts:         math.Round(city.Parts / n),
		TotalVehicles: math.Round(city.TotalVehicles / n),
		PaidService:   math.Round(city.PaidService / n),
		FreeService:   math.Round(city.FreeService / n),
		RR:            math.Round(city.RR / n),
	}
	for _, a := range list {
		out = append(out, AdvisorTarget{UserID: a.UserID, AdvisorName: a.Name, Values: share})
	}
	return out
}

// ManualDistribution validates an operator supplied list. Advisors left out
// get no row and therefore a zero target.
func ManualDistribution(entries []AdvisorTarget) ([]AdvisorTarget, error) {
	seen := make(map[string]bool, len(entries))
	seenID := make(map[int64]bool, len(entries))
	out := make([]AdvisorTarget, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSpace(e.AdvisorName)
		if name == "" {
			return nil, fmt.Errorf("advisor name required: %w", httpx.ErrValidation)
		}
		if e.UserID < 0 {
			return nil, fmt.Errorf("%s: invalid user id: %w", name, httpx.ErrValidation)
		}
		key := strings.ToLower(name)
		if e.UserID != 0 {
			key = fmt.Sprintf("%s#%d", key, e.UserID)
		}
		if seen[key] || (e.UserID != 0 && seenID[e.UserID]) {
			return nil, fmt.Errorf("%s: %w", name, ErrDuplicateAdvisor)
		}
		if negative(e.Values) {
			return nil, fmt.Errorf("%s: %w: %w", name, errNegative, httpx.ErrValidation)
		}
		seen[key] = true
		if e.UserID != 0 {
			seenID[e.UserID] = true
		}
		e.AdvisorName = name
		out = append(out, e)
	}
	return out, nil
}

// uniqueAdvisors keeps one entry per account id and one per trimmed name
// for unreconciled advisors. A name-only entry spelled exactly like a
// reconciled account's name is the same person and is folded into it.
func uniqueAdvisors(advisors []Advisor) []Advisor {
	ids := make(map[int64]bool, len(advisors))
	accountNames := make(map[string]bool, len(advisors))
	for _, a := range advisors {
		if a.UserID != 0 {
			accountNames[strings.TrimSpace(a.Name)] = true
		}
	}
	names := make(map[string]bool, len(advisors))
	out := make([]Advisor, 0, len(advisors))
	for _, a := range advisors {
		a.Name = strings.TrimSpace(a.Name)
		switch {
		case a.UserID != 0:
			if ids[a.UserID] {
				continue
			}
			ids[a.UserID] = true
		case a.Name == "" || names[a.Name] || accountNames[a.Name]:
			continue
		default:
			names[a.Name] = true
		}
		out = append(out, a)
	}
	return out
}

func negative(v Values) bool {
	return v.Labour < 0 || v.Parts < 0 || v.TotalVehicles < 0 || v.PaidService < 0 || v.FreeService < 0 || v.RR < 0
}
