// Package session holds the process-wide authentication state and the role
// and permission checks evaluated against it.
package session

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Identity describes the authenticated user as reported by the backend.
// Roles keep the server-provided order.
type Identity struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// RouteRegistrar rebuilds the active route table when the session changes.
// Implemented by routes.Router.
type RouteRegistrar interface {
	RegisterRoutesForRoles(roles []string)
	ClearRoutes()
}

// Observer is called after every session change with the new identity,
// nil when the session was cleared.
type Observer func(*Identity)

// Store is the single owner of session state. All mutation goes through
// SetUser and ClearAuth; every other component only reads. The route
// registrar is an explicit collaborator so routes can never go stale
// relative to the session.
type Store struct {
	// writeMu serializes SetUser and ClearAuth in full: the state change
	// and the route rebuild it triggers are one indivisible step, so a
	// concurrent mutation cannot slip in between them and leave the table
	// stale relative to the session. The registrar never calls back into
	// the store.
	writeMu sync.Mutex

	mu            sync.RWMutex
	authenticated bool
	user          *Identity

	registrar RouteRegistrar
	log       *zap.Logger

	obsMu     sync.Mutex
	observers []Observer
}

// New creates a Store wired to the given route registrar.
func New(registrar RouteRegistrar, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{registrar: registrar, log: log}
}

// IsAuthenticated reports whether a user is currently logged in.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// CurrentUser returns a copy of the current identity, or nil when
// unauthenticated.
func (s *Store) CurrentUser() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIdentity(s.user)
}

// Subscribe registers an observer for session changes. Observers run
// synchronously in the goroutine performing the change, after the route
// table has been rebuilt.
func (s *Store) Subscribe(fn Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

// SetUser marks the session authenticated and stores the identity. The
// route table is rebuilt for the user's roles before SetUser returns, so a
// caller observing IsAuthenticated() == true always sees current routes.
func (s *Store) SetUser(user Identity) {
	u := cloneIdentity(&user)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.authenticated = true
	s.user = u
	s.mu.Unlock()

	s.registrar.RegisterRoutesForRoles(append([]string(nil), u.Roles...))
	s.log.Info("session established",
		zap.String("username", u.Username),
		zap.Strings("roles", u.Roles))
	s.notify(cloneIdentity(u))
}

// ClearAuth drops the session and collapses the route table to the public
// routes. Safe to call when already unauthenticated.
func (s *Store) ClearAuth() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.authenticated = false
	s.user = nil
	s.mu.Unlock()

	s.registrar.ClearRoutes()
	s.log.Info("session cleared")
	s.notify(nil)
}

// HasRole reports whether the user holds role, either verbatim or in the
// "ROLE_"-prefixed form. Both naming schemes are in use by the backends this
// console talks to, so both are accepted.
func (s *Store) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return false
	}
	for _, r := range s.user.Roles {
		if r == role || r == "ROLE_"+role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user holds at least one of roles.
func (s *Store) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if s.HasRole(r) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the user holds every one of roles.
func (s *Store) HasAllRoles(roles []string) bool {
	for _, r := range roles {
		if !s.HasRole(r) {
			return false
		}
	}
	return true
}

// HasPermission reports whether the user holds permission. Comparison is
// case-insensitive.
func (s *Store) HasPermission(permission string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return false
	}
	for _, p := range s.user.Permissions {
		if strings.EqualFold(p, permission) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the user holds at least one of permissions.
func (s *Store) HasAnyPermission(permissions []string) bool {
	for _, p := range permissions {
		if s.HasPermission(p) {
			return true
		}
	}
	return false
}

func (s *Store) notify(u *Identity) {
	s.obsMu.Lock()
	obs := append([]Observer(nil), s.observers...)
	s.obsMu.Unlock()
	for _, fn := range obs {
		fn(cloneIdentity(u))
	}
}

func cloneIdentity(u *Identity) *Identity {
	if u == nil {
		return nil
	}
	return &Identity{
		UserID:      u.UserID,
		Username:    u.Username,
		Roles:       append([]string(nil), u.Roles...),
		Permissions: append([]string(nil), u.Permissions...),
	}
}
