package rbac

import (
	"sort"
	"strings"
)

// Role is a single tagged role a user may hold. A user may hold several.
type Role string

const (
	RoleOwner           Role = "owner"
	RoleGeneralManager  Role = "general_manager"
	RoleServiceManager  Role = "service_manager"
	RoleServiceAdvisor  Role = "service_advisor"
	RoleBodyShopManager Role = "body_shop_manager"
)

// AllRoles lists every known role in display order.
func AllRoles() []Role {
	return []Role{RoleOwner, RoleGeneralManager, RoleServiceManager, RoleServiceAdvisor, RoleBodyShopManager}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// Label is the human readable name used in legacy role strings.
func (r Role) Label() string {
	switch r {
	case RoleOwner:
		return "Owner"
	case RoleGeneralManager:
		return "General Manager"
	case RoleServiceManager:
		return "Service Manager"
	case RoleServiceAdvisor:
		return "Service Advisor"
	case RoleBodyShopManager:
		return "Body Shop Manager"
	}
	return string(r)
}

// Set is an unordered collection of roles.
type Set map[Role]struct{}

// NewSet builds a Set from roles, dropping unknown values.
func NewSet(roles ...Role) Set {
	s := make(Set, len(roles))
	for _, r := range roles {
		if r.Valid() {
			s[r] = struct{}{}
		}
	}
	return s
}

// SetFromStrings builds a Set from stored role tags.
func SetFromStrings(values []string) Set {
	roles := make([]Role, 0, len(values))
	for _, v := range values {
		roles = append(roles, Role(strings.TrimSpace(strings.ToLower(v))))
	}
	return NewSet(roles...)
}

// Has reports membership.
func (s Set) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// HasAny reports whether at least one of roles is present.
func (s Set) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// HasAll reports whether every role is present.
func (s Set) HasAll(roles ...Role) bool {
	for _, r := range roles {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// Strings returns the sorted role tags, suitable for token claims and storage.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

var legacyAliases = map[string]Role{
	"owner":             RoleOwner,
	"gm":                RoleGeneralManager,
	"general manager":   RoleGeneralManager,
	"sm":                RoleServiceManager,
	"service manager":   RoleServiceManager,
	"sa":                RoleServiceAdvisor,
	"advisor":           RoleServiceAdvisor,
	"service advisor":   RoleServiceAdvisor,
	"bsm":               RoleBodyShopManager,
	"body shop manager": RoleBodyShopManager,
}

// ParseLegacyRoles converts strings such as "Owner | CRM | BSM" into a Set.
// Tokens without a known role are returned separately so callers can log them.
func ParseLegacyRoles(raw string) (Set, []string) {
	set := make(Set)
	var unknown []string
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '|' || r == ',' || r == '/' || r == ';'
	})
	for _, field := range fields {
		token := strings.Join(strings.Fields(strings.ToLower(field)), " ")
		if token == "" {
			continue
		}
		if role, ok := legacyAliases[token]; ok {
			set[role] = struct{}{}
			continue
		}
		if role := Role(strings.ReplaceAll(token, " ", "_")); role.Valid() {
			set[role] = struct{}{}
			continue
		}
		unknown = append(unknown, strings.TrimSpace(field))
	}
	return set, unknown
}

// Route level role groups.
var (
	// Managers may view every advisor in their showroom.
	Managers = []Role{RoleOwner, RoleGeneralManager, RoleServiceManager, RoleBodyShopManager}
	// TargetSetters may save city targets and distributions.
	TargetSetters = []Role{RoleOwner, RoleGeneralManager}
	// Uploaders may ingest spreadsheets.
	Uploaders = []Role{RoleOwner, RoleGeneralManager, RoleServiceManager, RoleBodyShopManager}
	// Everyone covers all authenticated roles.
	Everyone = AllRoles()
)
