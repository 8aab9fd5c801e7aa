// Package access decides, for a navigation attempt, whether a role may
// enter a resource group and where to send it otherwise. Decisions are
// pure: no fetches, no mutation, safe to evaluate on every render.
package access

import (
	"fmt"

	"packdesk/internal/config"
	"packdesk/internal/domain"
)

// DeniedError indicates a role was refused entry to a resource group.
// It is only used where a denial must surface as an error (the HTTP
// API); navigation denials are resolved into redirects, never errors.
type DeniedError struct {
	Role  domain.Role
	Group string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("role %s not allowed on %s", e.Role, e.Group)
}

// Decision is the outcome of a gate check: either the navigation may
// proceed, or it must redirect to RedirectTo.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// Named allowed-role sets shared by route registrations.
var (
	AdminOnly      = []domain.Role{domain.RoleAGQAdmin}
	PartnerOrAdmin = []domain.Role{domain.RoleAnonymous, domain.RolePartnerAdmin, domain.RoleAGQAdmin}
	Reporting      = []domain.Role{domain.RoleAGQAdmin, domain.RolePartnerAdmin, domain.RoleAnalyst}
	Unrestricted   = []domain.Role{domain.RoleAnonymous, domain.RolePartnerAdmin, domain.RoleAnalyst, domain.RoleAGQAdmin}
)

const fallbackPage = "/campaigns"

// DefaultLandingPage maps every role to its fallback path. Total:
// unknown roles land on the fallback page.
func DefaultLandingPage(role domain.Role) string {
	switch role {
	case domain.RoleAnonymous:
		return "/campaigns"
	case domain.RolePartnerAdmin:
		return "/home"
	case domain.RoleAnalyst:
		return "/reports"
	case domain.RoleAGQAdmin:
		return "/admin"
	}
	return fallbackPage
}

// Check performs the membership test. A denied navigation redirects to
// the role's landing page; it never renders the protected view.
func Check(role domain.Role, allowed []domain.Role) Decision {
	for _, a := range allowed {
		if role == a {
			return Decision{Allowed: true}
		}
	}
	return Decision{RedirectTo: DefaultLandingPage(role)}
}

// Gate consults a resource-group policy table. One table per deployment
// replaces per-route role comparisons scattered across call sites.
type Gate struct {
	groups  map[string][]domain.Role
	landing map[domain.Role]string
	fallbk  string
}

// NewGate builds a gate from the workspace config. A nil config yields
// the compiled-in default policy table.
func NewGate(cfg *config.Config) Gate {
	if cfg == nil {
		cfg = config.Default("packdesk")
	}
	g := Gate{
		groups:  make(map[string][]domain.Role, len(cfg.Access.Groups)),
		landing: make(map[domain.Role]string, len(cfg.Access.LandingPages)),
		fallbk:  cfg.Access.FallbackPage,
	}
	if g.fallbk == "" {
		g.fallbk = fallbackPage
	}
	for name, group := range cfg.Access.Groups {
		roles := make([]domain.Role, 0, len(group.Roles))
		for _, r := range group.Roles {
			roles = append(roles, domain.Role(r))
		}
		g.groups[name] = roles
	}
	for role, page := range cfg.Access.LandingPages {
		g.landing[domain.Role(role)] = page
	}
	return g
}

// LandingPage maps a role to its fallback path per the policy table,
// falling back to the compiled-in mapping for roles the table omits.
func (g Gate) LandingPage(role domain.Role) string {
	if page, ok := g.landing[role]; ok {
		return page
	}
	if role.Known() {
		return DefaultLandingPage(role)
	}
	return g.fallbk
}

// AllowedRoles returns the roles permitted on a resource group and
// whether the group is declared at all.
func (g Gate) AllowedRoles(group string) ([]domain.Role, bool) {
	roles, ok := g.groups[group]
	return roles, ok
}

// CheckGroup gates a navigation against a named resource group.
// Undeclared groups deny: absent policy defaults closed.
func (g Gate) CheckGroup(role domain.Role, group string) Decision {
	roles, ok := g.groups[group]
	if !ok {
		return Decision{RedirectTo: g.LandingPage(role)}
	}
	for _, a := range roles {
		if role == a {
			return Decision{Allowed: true}
		}
	}
	return Decision{RedirectTo: g.LandingPage(role)}
}

// Require is CheckGroup for callers that need an error on denial (the
// HTTP API maps it to 403).
func (g Gate) Require(role domain.Role, group string) error {
	if d := g.CheckGroup(role, group); !d.Allowed {
		return DeniedError{Role: role, Group: group}
	}
	return nil
}
