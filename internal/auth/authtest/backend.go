// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package authtest provides an in-memory auth.Backend for tests.
package authtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Operation names counted by Calls in addition to the auth.Op* names.
const (
	OpGetUser = "get_user"
	OpRefresh = "refresh"
)

// Backend is a scriptable in-memory auth backend.
// The zero value is not usable; call NewBackend.
type Backend struct {
	mu       sync.Mutex
	users    map[string]user
	sessions map[string]auth.Identity
	refresh  map[string]auth.Identity
	calls    map[string]int
	errs     map[string]error
	// TTL is the lifetime of issued access tokens.
	TTL time.Duration
	// Now is the clock used for expiry.
	Now func() time.Time
	// Gate, when set, is received from before SignInWithPassword returns.
	Gate chan struct{}
	seq  int
}

type user struct {
	id       string
	password string
}

// NewBackend returns an empty backend issuing one-hour sessions.
func NewBackend() *Backend {
	return &Backend{
		users:    make(map[string]user),
		sessions: make(map[string]auth.Identity),
		refresh:  make(map[string]auth.Identity),
		calls:    make(map[string]int),
		errs:     make(map[string]error),
		TTL:      time.Hour,
		Now:      time.Now,
	}
}

// AddUser registers an account directly and returns its id.
func (b *Backend) AddUser(email, password string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	b.users[email] = user{id: id, password: password}
	return id
}

// Fail makes every subsequent call of operation return err until cleared with nil.
func (b *Backend) Fail(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, operation)
		return
	}
	b.errs[operation] = err
}

// Revoke invalidates an access token as if it had been signed out elsewhere.
func (b *Backend) Revoke(accessToken string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, accessToken)
}

// Calls returns how many times operation was invoked.
func (b *Backend) Calls(operation string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[operation]
}

// TotalCalls returns the number of calls across all operations.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *Backend) begin(operation string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[operation]++
	return b.errs[operation]
}

// SignUp implements auth.Backend.
func (b *Backend) SignUp(_ context.Context, c auth.Credentials) error {
	if err := b.begin(auth.OpSignUp); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[c.Email]; exists {
		return auth.Rejected(http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
	}
	b.users[c.Email] = user{id: uuid.NewString(), password: c.Password}
	return nil
}

// SignInWithPassword implements auth.Backend.
func (b *Backend) SignInWithPassword(ctx context.Context, c auth.Credentials) (*auth.Session, error) {
	if err := b.begin(auth.OpSignIn); err != nil {
		return nil, err
	}
	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return nil, auth.Unreachable(auth.OpSignIn, ctx.Err())
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[c.Email]
	if !ok || u.password != c.Password {
		return nil, auth.Rejected(http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
	}
	return b.issue(auth.Identity{UserID: u.id, Email: c.Email}), nil
}

// SignOut implements auth.Backend.
func (b *Backend) SignOut(_ context.Context, accessToken string) error {
	if err := b.begin(auth.OpSignOut); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[accessToken]; !ok {
		return auth.Rejected(http.StatusUnauthorized, "session_not_found", "Session not found")
	}
	delete(b.sessions, accessToken)
	return nil
}

// GetUser implements auth.Backend.
func (b *Backend) GetUser(_ context.Context, accessToken string) (auth.Identity, error) {
	if err := b.begin(OpGetUser); err != nil {
		return auth.Identity{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.sessions[accessToken]
	if !ok {
		return auth.Identity{}, auth.Rejected(http.StatusUnauthorized, "bad_jwt", "invalid JWT")
	}
	return id, nil
}

// Refresh implements auth.Backend.
func (b *Backend) Refresh(_ context.Context, refreshToken string) (*auth.Session, error) {
	if err := b.begin(OpRefresh); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.refresh[refreshToken]
	if !ok {
		return nil, auth.Rejected(http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
	}
	delete(b.refresh, refreshToken)
	return b.issue(id), nil
}

// issue must be called with b.mu held.
func (b *Backend) issue(id auth.Identity) *auth.Session {
	b.seq++
	access := fmt.Sprintf("access-%d", b.seq)
	refresh := fmt.Sprintf("refresh-%d", b.seq)
	b.sessions[access] = id
	b.refresh[refresh] = id
	return &auth.Session{
		Identity:     id,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    b.Now().Add(b.TTL),
	}
}

var _ auth.Backend = (*Backend)(nil)
