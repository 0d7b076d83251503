// Package advisors links free text advisor names on uploaded rows to user
// accounts.
package advisors

import (
	"sort"
	"strings"
)

// Candidate is a service advisor account a name may resolve to.
type Candidate struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
}

// Match policies.
const (
	PolicyExact     = "exact"
	PolicySubstring = "substring"
)

// Proposal links every unassigned row carrying Name to UserID.
type Proposal struct {
	Name     string `json:"name"`
	Rows     int64  `json:"rows"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	Policy   string `json:"policy"`
}

// Ambiguous is a name that matched more than one account.
type Ambiguous struct {
	Name       string      `json:"name"`
	Rows       int64       `json:"rows"`
	Candidates []Candidate `json:"candidates"`
}

// Unmatched is a name that matched no account.
type Unmatched struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// Plan is the outcome of matching names against accounts.
type Plan struct {
	Proposals []Proposal  `json:"proposals"`
	Ambiguous []Ambiguous `json:"ambiguous"`
	Unmatched []Unmatched `json:"unmatched"`
}

// BuildPlan matches each name, ignoring case, first by exact equality and
// then by substring in either direction. A name resolving to several
// accounts at the first policy that matches is reported as ambiguous.
func BuildPlan(names map[string]int64, candidates []Candidate) Plan {
	plan := Plan{Proposals: []Proposal{}, Ambiguous: []Ambiguous{}, Unmatched: []Unmatched{}}
	keys := make([]string, 0, len(names))
	for n := range names {
		keys = append(keys, n)
	}
	sort.Strings(keys)

	for _, name := range keys {
		rows := names[name]
		needle := strings.ToLower(strings.TrimSpace(name))
		if needle == "" {
			continue
		}
		policy := PolicyExact
		found := matchWhere(candidates, func(c string) bool { return c == needle })
		if len(found) == 0 {
			policy = PolicySubstring
			found = matchWhere(candidates, func(c string) bool {
				return strings.Contains(c, needle) || strings.Contains(needle, c)
			})
		}
		switch len(found) {
		case 0:
			plan.Unmatched = append(plan.Unmatched, Unmatched{Name: name, Rows: rows})
		case 1:
			plan.Proposals = append(plan.Proposals, Proposal{
				Name: name, Rows: rows, UserID: found[0].UserID, UserName: found[0].Name, Policy: policy,
			})
		default:
			plan.Ambiguous = append(plan.Ambiguous, Ambiguous{Name: name, Rows: rows, Candidates: found})
		}
	}
	return plan
}

func matchWhere(candidates []Candidate, pred func(string) bool) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			continue
		}
		if pred(name) {
			out = append(out, c)
		}
	}
	return out
}
