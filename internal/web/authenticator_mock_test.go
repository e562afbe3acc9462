// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/guard"
	"github.com/gatehouse/gatehouse/internal/session"
)

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) SignUp(ctx context.Context, c auth.Credentials) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockAuthenticator) SignIn(ctx context.Context, c auth.Credentials) (*auth.Session, error) {
	args := m.Called(ctx, c)
	sess, _ := args.Get(0).(*auth.Session)
	return sess, args.Error(1)
}

func (m *mockAuthenticator) SignOut(ctx context.Context, sess *auth.Session) error {
	return m.Called(ctx, sess).Error(0)
}

type noopRestorer struct{}

func (noopRestorer) Restore(_ context.Context, s *auth.Session) (*auth.Session, error) {
	return s, nil
}

// newMockHarness serves the handlers over a mocked authenticator.
func newMockHarness(t *testing.T, m *mockAuthenticator) *harness {
	t.Helper()
	reg, err := session.NewRegistry(session.NewMemoryStore(), noopRestorer{}, session.WithLogger(discard))
	require.NoError(t, err)
	g, err := guard.New()
	require.NoError(t, err)

	h := &harness{forms: NewFormGuard()}
	h.server, err = NewServer(Config{Heartbeat: 20 * time.Millisecond}, m, reg, g,
		WithLogger(discard), WithFormGuard(h.forms))
	require.NoError(t, err)
	h.ts = httptest.NewServer(h.server.Handler())
	h.transport = &http.Transport{}
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{
		Jar:       jar,
		Transport: h.transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return h
}

func TestHandlers_PassFormValuesToAuthenticator(t *testing.T) {
	m := &mockAuthenticator{}
	m.On("SignUp", mock.Anything, auth.Credentials{Email: " User@Example.com ", Password: "Abcdef12"}).
		Return(nil).Once()
	h := newMockHarness(t, m)
	defer h.close()

	res := h.post(t, "/signup", creds(" User@Example.com ", "Abcdef12"))
	assert.Equal(t, http.StatusSeeOther, res.status)
	m.AssertExpectations(t)
}

func TestHandlers_SignOutHandsOverTheStoredSession(t *testing.T) {
	sess := &auth.Session{
		Identity:     auth.Identity{UserID: "u-1", Email: "user@example.com"},
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	m := &mockAuthenticator{}
	m.On("SignIn", mock.Anything, mock.AnythingOfType("auth.Credentials")).Return(sess, nil).Once()
	m.On("SignOut", mock.Anything, mock.MatchedBy(func(s *auth.Session) bool {
		return s != nil && s.AccessToken == "access"
	})).Return(nil).Once()
	h := newMockHarness(t, m)
	defer h.close()

	require.Equal(t, http.StatusSeeOther, h.post(t, "/signin", creds("user@example.com", "x")).status)
	res := h.post(t, "/signout", nil)
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/signin", res.location)
	m.AssertExpectations(t)
}

func TestHandlers_UnknownErrorsRenderGenericMessage(t *testing.T) {
	m := &mockAuthenticator{}
	m.On("SignIn", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()
	h := newMockHarness(t, m)
	defer h.close()

	res := h.post(t, "/signin", creds("user@example.com", "x"))
	assert.Equal(t, http.StatusInternalServerError, res.status)
	assert.Contains(t, res.body, auth.GenericMessage)
	assert.NotContains(t, res.body, "boom")
	m.AssertNotCalled(t, "SignOut", mock.Anything, mock.Anything)
}
