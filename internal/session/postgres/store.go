// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres persists browser sessions in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/session"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements session.Store on the browser_sessions table.
type Store struct {
	pool Pool
}

// New returns a Store on pool.
func New(pool Pool) *Store {
	return &Store{pool: pool}
}

// Save implements session.Store.
func (s *Store) Save(ctx context.Context, r *session.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO browser_sessions (id, user_id, email, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`,
		r.ID.String(),
		r.UserID,
		r.Email,
		r.AccessToken,
		r.RefreshToken,
		nullableTime(r.ExpiresAt),
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return wrap(err, "SESSION_SAVE_FAILED", r.ID)
	}
	return nil
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, id ulid.ULID) (*session.Record, error) {
	var (
		rawID     string
		expiresAt *time.Time
		r         session.Record
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, email, access_token, refresh_token, expires_at, created_at, updated_at
		FROM browser_sessions
		WHERE id = $1
	`, id.String()).Scan(&rawID, &r.UserID, &r.Email, &r.AccessToken, &r.RefreshToken, &expiresAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(session.ErrNotFound)
	}
	if err != nil {
		return nil, wrap(err, "SESSION_LOAD_FAILED", id)
	}
	if r.ID, err = ulid.Parse(rawID); err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("id", rawID).Wrap(err)
	}
	if expiresAt != nil {
		r.ExpiresAt = *expiresAt
	}
	return &r, nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, id ulid.ULID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM browser_sessions WHERE id = $1`, id.String()); err != nil {
		return wrap(err, "SESSION_DELETE_FAILED", id)
	}
	return nil
}

// DeleteExpired implements session.Store.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM browser_sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").With("cutoff", cutoff).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func wrap(err error, code string, id ulid.ULID) error {
	b := oops.Code(code).With("id", id.String())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return b.Hint("run `gatehouse migrate up`").Wrapf(err, "browser_sessions table missing")
	}
	return b.Wrap(err)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ session.Store = (*Store)(nil)
