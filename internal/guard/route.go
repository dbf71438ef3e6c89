// Package guard contains the admission decisions made before a navigation
// is allowed and after every backend response.
package guard

import (
	"go.uber.org/zap"
)

// Decision is the outcome of a navigation attempt.
type Decision int

const (
	// DecisionAllowed lets the navigation proceed.
	DecisionAllowed Decision = iota
	// DecisionDeniedUnauthenticated denies because no user is logged in.
	DecisionDeniedUnauthenticated
	// DecisionDeniedForbidden denies because the user lacks a required role.
	DecisionDeniedForbidden
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionDeniedUnauthenticated:
		return "unauthenticated"
	case DecisionDeniedForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Allowed reports whether the navigation may proceed.
func (d Decision) Allowed() bool { return d == DecisionAllowed }

// Redirect destinations for denied decisions.
const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// Navigator receives the redirects produced by denied decisions and by the
// request guard.
type Navigator interface {
	NavigateTo(path string)
}

// SessionReader is the read side of the session store consulted by guards.
type SessionReader interface {
	IsAuthenticated() bool
	HasAnyRole(roles []string) bool
	HasAllRoles(roles []string) bool
}

// Requirement is a route's declared role requirement. Empty Roles means the
// route only requires authentication.
type Requirement struct {
	Roles      []string
	RequireAll bool
}

// RouteGuard decides whether a navigation may proceed. Rules are evaluated
// in order: authentication first, then the role requirement (empty passes),
// with any-of or all-of semantics per the requirement. Denials redirect and
// never return an error.
type RouteGuard struct {
	session SessionReader
	nav     Navigator
	log     *zap.Logger
}

// NewRouteGuard creates a guard reading session state from session and
// sending redirects to nav.
func NewRouteGuard(session SessionReader, nav Navigator, log *zap.Logger) *RouteGuard {
	if log == nil {
		log = zap.NewNop()
	}
	return &RouteGuard{session: session, nav: nav, log: log}
}

// CanActivate runs the admission machine for req.
func (g *RouteGuard) CanActivate(req Requirement) Decision {
	if !g.session.IsAuthenticated() {
		g.nav.NavigateTo(LoginPath)
		return DecisionDeniedUnauthenticated
	}
	if len(req.Roles) == 0 {
		return DecisionAllowed
	}
	ok := g.session.HasAnyRole(req.Roles)
	if req.RequireAll {
		ok = g.session.HasAllRoles(req.Roles)
	}
	if ok {
		return DecisionAllowed
	}
	g.log.Warn("navigation forbidden", zap.Strings("required", req.Roles))
	g.nav.NavigateTo(UnauthorizedPath)
	return DecisionDeniedForbidden
}

// CanActivateAny admits when the user holds at least one of roles.
func (g *RouteGuard) CanActivateAny(roles []string) Decision {
	return g.CanActivate(Requirement{Roles: roles})
}

// CanActivateAll admits only when the user holds every one of roles.
func (g *RouteGuard) CanActivateAll(roles []string) Decision {
	return g.CanActivate(Requirement{Roles: roles, RequireAll: true})
}
