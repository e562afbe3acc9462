// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package redisstore persists browser sessions as Redis hashes.
package redisstore

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/session"
)

// KeyPrefix namespaces session keys.
const KeyPrefix = "gatehouse:session:"

const (
	fieldUserID       = "user_id"
	fieldEmail        = "email"
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldExpiresAt    = "expires_at"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

// Store implements session.Store. Each record is a hash that Redis expires
// once the retention window after its token expiry has passed.
type Store struct {
	client    redis.Cmdable
	retention time.Duration
}

// New returns a Store on client. Keys outlive their access token by retention.
func New(client redis.Cmdable, retention time.Duration) *Store {
	return &Store{client: client, retention: retention}
}

func key(id ulid.ULID) string {
	return KeyPrefix + id.String()
}

// Save implements session.Store.
func (s *Store) Save(ctx context.Context, r *session.Record) error {
	k := key(r.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			fieldUserID, r.UserID,
			fieldEmail, r.Email,
			fieldAccessToken, r.AccessToken,
			fieldRefreshToken, r.RefreshToken,
			fieldExpiresAt, formatTime(r.ExpiresAt),
			fieldUpdatedAt, formatTime(r.UpdatedAt),
		)
		pipe.HSetNX(ctx, k, fieldCreatedAt, formatTime(r.CreatedAt))
		if r.ExpiresAt.IsZero() {
			pipe.Persist(ctx, k)
		} else {
			pipe.ExpireAt(ctx, k, r.ExpiresAt.Add(s.retention))
		}
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("id", r.ID.String()).Wrap(err)
	}
	return nil
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, id ulid.ULID) (*session.Record, error) {
	fields, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("id", id.String()).Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(session.ErrNotFound)
	}

	r := &session.Record{
		ID:           id,
		UserID:       fields[fieldUserID],
		Email:        fields[fieldEmail],
		AccessToken:  fields[fieldAccessToken],
		RefreshToken: fields[fieldRefreshToken],
	}
	for name, dst := range map[string]*time.Time{
		fieldExpiresAt: &r.ExpiresAt,
		fieldCreatedAt: &r.CreatedAt,
		fieldUpdatedAt: &r.UpdatedAt,
	} {
		if *dst, err = parseTime(fields[name]); err != nil {
			return nil, oops.Code("SESSION_LOAD_FAILED").
				With("id", id.String()).
				With("field", name).
				Wrap(err)
		}
	}
	return r, nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, id ulid.ULID) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	return nil
}

// DeleteExpired implements session.Store. Key expiry already removes old
// records, so there is never anything left to purge.
func (s *Store) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

var _ session.Store = (*Store)(nil)
