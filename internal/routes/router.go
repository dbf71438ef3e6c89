package routes

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/digibo/backoffice/internal/authz"
)

// Public destinations present in every table.
const (
	PathLogin        = "login"
	PathUnauthorized = "unauthorized"
	PathRoot         = ""

	pathCatchAll = "*"
	maxRedirects = 8
)

var (
	// ErrNoRoute is returned when a path matches nothing in the table.
	ErrNoRoute = errors.New("no matching route")
	// ErrRedirectLoop is returned when redirects chain past the limit.
	ErrRedirectLoop = errors.New("redirect loop")
)

// Match is the result of resolving a path against the active table.
type Match struct {
	// Path is the navigated path after redirects, without a leading slash.
	Path       string
	Protected  bool
	Roles      []string
	RequireAll bool
}

// Router owns the active route table. The table is an atomically swapped
// value: readers always observe a complete table, never a partial rebuild.
type Router struct {
	registry Registry
	log      *zap.Logger
	version  atomic.Uint64
	table    atomic.Pointer[Table]
}

// NewRouter creates a Router exposing only the public routes.
func NewRouter(registry Registry, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{registry: registry, log: log}
	r.table.Store(r.publicTable())
	return r
}

// RegisterRoutesForRoles rebuilds the table for a user holding roles: the
// public routes, a guarded root with a dashboard plus one subtree per
// feature the roles qualify for, and a catch-all back to the root. The
// whole table is replaced in one swap.
func (r *Router) RegisterRoutesForRoles(userRoles []string) {
	var accepted []FeatureRoute
	for _, f := range r.registry {
		if authz.SatisfiesAny(userRoles, f.Roles) {
			accepted = append(accepted, f)
		}
	}

	nav := make([]NavItem, 0, len(accepted))
	children := []Route{{Path: ""}} // dashboard
	paths := make([]string, 0, len(accepted))
	for _, f := range accepted {
		nav = append(nav, NavItem{
			Path:  f.Path,
			Label: f.Label,
			Icon:  f.Icon,
			Roles: append([]string(nil), f.Roles...),
		})
		children = append(children, Route{
			Path:     f.Path,
			Load:     f.Load,
			loadOnce: new(sync.Once),
		})
		paths = append(paths, f.Path)
	}

	tbl := &Table{
		Version: r.version.Add(1),
		Routes: []Route{
			{Path: PathLogin},
			{Path: PathUnauthorized},
			{Path: PathRoot, Protected: true, Children: children},
			{Path: pathCatchAll, Redirect: PathRoot},
		},
		NavItems: nav,
	}
	r.table.Store(tbl)
	r.log.Info("registered feature routes",
		zap.Strings("features", paths),
		zap.Uint64("version", tbl.Version))
}

// ClearRoutes resets the table to the public routes only; unknown paths
// redirect to the login page.
func (r *Router) ClearRoutes() {
	tbl := r.publicTable()
	r.table.Store(tbl)
	r.log.Info("cleared feature routes", zap.Uint64("version", tbl.Version))
}

func (r *Router) publicTable() *Table {
	return &Table{
		Version: r.version.Add(1),
		Routes: []Route{
			{Path: PathLogin},
			{Path: PathUnauthorized},
			{Path: pathCatchAll, Redirect: PathLogin},
		},
	}
}

// Snapshot returns the current table.
func (r *Router) Snapshot() *Table {
	return r.table.Load()
}

// ActiveNavItems returns the menu entries for the current table.
func (r *Router) ActiveNavItems() []NavItem {
	tbl := r.Snapshot()
	return append([]NavItem(nil), tbl.NavItems...)
}

// IsRouteRegistered reports whether path is one of the currently registered
// feature routes.
func (r *Router) IsRouteRegistered(path string) bool {
	for _, item := range r.Snapshot().NavItems {
		if item.Path == path {
			return true
		}
	}
	return false
}

// Resolve matches path against the current table, following redirects and
// triggering lazy feature loads as needed.
func (r *Router) Resolve(path string) (*Match, error) {
	tbl := r.Snapshot()
	norm := strings.Trim(path, "/")
	for depth := 0; depth <= maxRedirects; depth++ {
		m, redirect, err := matchRoutes(tbl.Routes, norm, Match{})
		if err != nil {
			return nil, err
		}
		if m != nil {
			m.Path = norm
			return m, nil
		}
		if redirect == "" {
			return nil, ErrNoRoute
		}
		norm = strings.Trim(redirect, "/")
	}
	return nil, ErrRedirectLoop
}

// matchRoutes walks routes looking for a node consuming all of path.
// First match wins; a matched catch-all yields its redirect target.
func matchRoutes(nodes []Route, path string, inherited Match) (*Match, string, error) {
	for i := range nodes {
		rt := &nodes[i]
		if rt.Path == pathCatchAll {
			if rt.Redirect != "" {
				return nil, rt.Redirect, nil
			}
			continue
		}
		rest, ok := consume(path, rt.Path)
		if !ok {
			continue
		}

		m := inherited
		if rt.Protected {
			m.Protected = true
		}
		if len(rt.Roles) > 0 {
			m.Roles = append([]string(nil), rt.Roles...)
			m.RequireAll = rt.RequireAll
		}
		if rt.Redirect != "" {
			return nil, rt.Redirect, nil
		}

		children, err := rt.childRoutes()
		if err != nil {
			return nil, "", err
		}
		if rest == "" {
			if len(children) == 0 {
				return &m, "", nil
			}
			if sub, red, err := matchRoutes(children, "", m); sub != nil || red != "" || err != nil {
				return sub, red, err
			}
			// No index child; the node itself terminates the path.
			return &m, "", nil
		}
		if len(children) > 0 {
			if sub, red, err := matchRoutes(children, rest, m); sub != nil || red != "" || err != nil {
				return sub, red, err
			}
		}
		// Segments left over with no matching child: not a match here,
		// keep scanning siblings.
	}
	return nil, "", nil
}

// consume tries to match prefix against the head of path. An empty prefix
// matches without consuming anything.
func consume(path, prefix string) (rest string, ok bool) {
	if prefix == "" {
		return path, true
	}
	if path == prefix {
		return "", true
	}
	if strings.HasPrefix(path, prefix+"/") {
		return path[len(prefix)+1:], true
	}
	return "", false
}
