// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"log/slog"
	"time"
)

// Identity is the backend's view of a signed-in user.
type Identity struct {
	UserID string
	Email  string
}

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool {
	return i.UserID == "" && i.Email == ""
}

// Session is an authenticated backend session.
type Session struct {
	Identity     Identity
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExpiresWithin reports whether the access token expires before now+d.
// A zero ExpiresAt never expires.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}

// Clone returns an independent copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// LogValue keeps tokens out of structured logs.
func (s *Session) LogValue() slog.Value {
	if s == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("user_id", s.Identity.UserID),
		slog.String("email", s.Identity.Email),
		slog.Time("expires_at", s.ExpiresAt),
	)
}

// Backend is the hosted authentication service.
// Implementations make exactly one request per call and return errors built
// with Rejected or Unreachable.
type Backend interface {
	// SignUp registers a new account. Any session the backend returns is discarded.
	SignUp(ctx context.Context, c Credentials) error
	// SignInWithPassword exchanges credentials for a session.
	SignInWithPassword(ctx context.Context, c Credentials) (*Session, error)
	// SignOut revokes the session identified by accessToken.
	SignOut(ctx context.Context, accessToken string) error
	// GetUser returns the identity behind accessToken.
	GetUser(ctx context.Context, accessToken string) (Identity, error)
	// Refresh exchanges a refresh token for a new session.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}
