// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// ErrNotFound is returned by Store.Load when no record exists.
var ErrNotFound = errors.New("session record not found")

// Record is the persisted form of a browser session's backend session.
type Record struct {
	ID           ulid.ULID
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session rebuilds the auth session held by r.
func (r *Record) Session() *auth.Session {
	return &auth.Session{
		Identity:     auth.Identity{UserID: r.UserID, Email: r.Email},
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
	}
}

// NewRecord builds the record for sess at time now.
func NewRecord(id ulid.ULID, sess *auth.Session, now time.Time) *Record {
	return &Record{
		ID:           id,
		UserID:       sess.Identity.UserID,
		Email:        sess.Identity.Email,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Store persists session records so a restart can reconcile them.
type Store interface {
	// Save inserts or replaces the record. CreatedAt is kept from the first save.
	Save(ctx context.Context, r *Record) error
	// Load returns the record or an error wrapping ErrNotFound.
	Load(ctx context.Context, id ulid.ULID) (*Record, error)
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id ulid.ULID) error
	// DeleteExpired removes records whose access token expired before cutoff
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
