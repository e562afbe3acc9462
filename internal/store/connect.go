// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Retry controls how connections are retried at startup.
type Retry struct {
	Attempts  uint64
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry gives a database about half a minute to come up.
var DefaultRetry = Retry{Attempts: 6, BaseDelay: 250 * time.Millisecond, MaxDelay: 8 * time.Second}

func (r Retry) backoff() retry.Backoff {
	base := r.BaseDelay
	if base <= 0 {
		base = DefaultRetry.BaseDelay
	}
	b := retry.NewExponential(base)
	if r.MaxDelay > 0 {
		b = retry.WithCappedDuration(r.MaxDelay, b)
	}
	return retry.WithMaxRetries(r.Attempts, b)
}

func (r Retry) do(ctx context.Context, target string, fn func(context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			slog.WarnContext(ctx, "connection attempt failed",
				"target", target,
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// ConnectPool opens a pgx pool for dsn and pings it, retrying per r.
func ConnectPool(ctx context.Context, dsn string, r Retry) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := r.do(ctx, "postgres", pool.Ping); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", r.Attempts+1).
			Wrap(err)
	}
	return pool, nil
}

// ConnectRedis opens a client for opts and pings it, retrying per r.
func ConnectRedis(ctx context.Context, opts *redis.Options, r Retry) (*redis.Client, error) {
	if opts == nil || opts.Addr == "" {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Errorf("redis address is required")
	}
	client := redis.NewClient(opts)
	err := r.do(ctx, "redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close() //nolint:errcheck // ping error is the one worth returning
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", opts.Addr).
			With("attempts", r.Attempts+1).
			Wrap(err)
	}
	return client, nil
}
