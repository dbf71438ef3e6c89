package routes

import "sync"

// NavItem is a menu entry derived from a currently registered feature.
type NavItem struct {
	Path  string
	Label string
	Icon  string
	Roles []string
}

// Route is one node of the active route table. A node either terminates a
// path, redirects, or carries children; children come from the static
// Children slice or from the lazy loader, whichever is set.
type Route struct {
	Path string

	// Protected marks the node (and everything under it) as requiring the
	// route guard. Roles optionally narrow that to a role requirement.
	Protected  bool
	Roles      []string
	RequireAll bool

	// Redirect, when non-empty, forwards navigation to another path.
	Redirect string

	Children []Route
	Load     LoaderFunc

	loadOnce *sync.Once
	loaded   []Route
	loadErr  error
}

// childRoutes returns the node's children, invoking the lazy loader exactly
// once per table.
func (r *Route) childRoutes() ([]Route, error) {
	if r.Load == nil {
		return r.Children, nil
	}
	if r.loadOnce == nil {
		return r.Load()
	}
	r.loadOnce.Do(func() {
		r.loaded, r.loadErr = r.Load()
	})
	return r.loaded, r.loadErr
}

// Table is an immutable snapshot of the navigable route tree. It is replaced
// wholesale on every login and logout and never mutated in place; Version
// increases strictly across rebuilds.
type Table struct {
	Version  uint64
	Routes   []Route
	NavItems []NavItem
}
