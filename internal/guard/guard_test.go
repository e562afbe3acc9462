// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

var signedIn = session.Authenticated(auth.Identity{UserID: "u-1", Email: "user@example.com"})

func TestDecide(t *testing.T) {
	g, err := New()
	require.NoError(t, err)

	tests := []struct {
		name  string
		state session.State
		path  string
		want  Decision
	}{
		{"root redirects anonymous", session.Anonymous, "/", Decision{View: ViewSignIn, Redirect: true}},
		{"root redirects authenticated", signedIn, "/", Decision{View: ViewSignIn, Redirect: true}},
		{"empty path is root", session.Anonymous, "", Decision{View: ViewSignIn, Redirect: true}},
		{"dashboard denied when anonymous", session.Anonymous, "/dashboard", Decision{View: ViewSignIn, Redirect: true}},
		{"dashboard allowed when authenticated", signedIn, "/dashboard", Decision{View: ViewDashboard}},
		{"nested dashboard denied", session.Anonymous, "/dashboard/projects/3", Decision{View: ViewSignIn, Redirect: true}},
		{"trailing slash still protected", session.Anonymous, "/dashboard/", Decision{View: ViewSignIn, Redirect: true}},
		{"dot segments cannot escape", session.Anonymous, "/signin/../dashboard", Decision{View: ViewSignIn, Redirect: true}},
		{"events denied when anonymous", session.Anonymous, "/events", Decision{View: ViewSignIn, Redirect: true}},
		{"signin open to anonymous", session.Anonymous, "/signin", Decision{View: ViewSignIn}},
		{"signup open to anonymous", session.Anonymous, "/signup", Decision{View: ViewSignUp}},
		{"signin open to authenticated", signedIn, "/signin", Decision{View: ViewSignIn}},
		{"unknown path passes through", session.Anonymous, "/about", Decision{View: "/about"}},
		{"prefix lookalike is not protected", session.Anonymous, "/dashboards", Decision{View: "/dashboards"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Decide(tt.state, tt.path))
		})
	}
}

func TestNew_CustomPatterns(t *testing.T) {
	g, err := New("/admin/*", "/reports/**")
	require.NoError(t, err)

	assert.True(t, g.Protected("/admin/users"))
	assert.False(t, g.Protected("/admin/users/7"))
	assert.True(t, g.Protected("/reports/2026/q1"))
	assert.False(t, g.Protected("/dashboard"))
	assert.Equal(t, []string{"/admin/*", "/reports/**"}, g.Patterns())
}

func TestNew_RejectsBadPatterns(t *testing.T) {
	_, err := New("dashboard")
	errutil.AssertErrorCode(t, err, "GUARD_PATTERN_INVALID")

	_, err = New("/dash[")
	errutil.AssertErrorCode(t, err, "GUARD_PATTERN_INVALID")
}

func TestDecide_IsPure(t *testing.T) {
	g, err := New()
	require.NoError(t, err)

	first := g.Decide(session.Anonymous, "/dashboard")
	second := g.Decide(session.Anonymous, "/dashboard")
	assert.Equal(t, first, second)
	assert.Equal(t, DefaultProtected, g.Patterns())
}
