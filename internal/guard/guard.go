// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package guard decides which view a request may see given the session state.
package guard

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/session"
)

// Views.
const (
	ViewRoot      = "/"
	ViewSignIn    = "/signin"
	ViewSignUp    = "/signup"
	ViewDashboard = "/dashboard"
)

// DefaultProtected are the patterns guarded when none are configured.
var DefaultProtected = []string{"/dashboard", "/dashboard/**", "/events"}

// Decision is the outcome of a navigation check. When Redirect is set the
// caller must send the browser to View instead of the requested path.
type Decision struct {
	View     string
	Redirect bool
}

// Guard holds the compiled protected patterns.
type Guard struct {
	patterns []string
	globs    []glob.Glob
}

// New compiles patterns. An empty list uses DefaultProtected.
func New(patterns ...string) (*Guard, error) {
	if len(patterns) == 0 {
		patterns = DefaultProtected
	}
	g := &Guard{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "/") {
			return nil, oops.Code("GUARD_PATTERN_INVALID").
				With("pattern", p).
				Errorf("protected pattern must start with /")
		}
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.Code("GUARD_PATTERN_INVALID").With("pattern", p).Wrap(err)
		}
		g.patterns = append(g.patterns, p)
		g.globs = append(g.globs, compiled)
	}
	return g, nil
}

// Patterns returns the protected patterns.
func (g *Guard) Patterns() []string {
	return append([]string(nil), g.patterns...)
}

// Protected reports whether p requires an authenticated session.
func (g *Guard) Protected(p string) bool {
	p = clean(p)
	for _, m := range g.globs {
		if m.Match(p) {
			return true
		}
	}
	return false
}

// Decide maps the requested path to the view to render. It has no side effects.
func (g *Guard) Decide(state session.State, requested string) Decision {
	p := clean(requested)
	switch {
	case p == ViewRoot:
		return Decision{View: ViewSignIn, Redirect: true}
	case g.Protected(p) && !state.IsAuthenticated():
		return Decision{View: ViewSignIn, Redirect: true}
	default:
		return Decision{View: p}
	}
}

func clean(p string) string {
	if p == "" {
		return ViewRoot
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
