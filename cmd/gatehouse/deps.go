// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/gotrue"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory creates the auth backend client.
	// Default: gotrue.New
	BackendFactory func(cfg config.Backend) (auth.Backend, error)

	// PoolFactory opens the Postgres pool for the postgres session store.
	// Default: store.ConnectPool with store.DefaultRetry
	PoolFactory func(ctx context.Context, dsn string) (*pgxpool.Pool, error)

	// RedisFactory opens the Redis client for the redis session store.
	// Default: store.ConnectRedis with store.DefaultRetry
	RedisFactory func(ctx context.Context, opts *redis.Options) (*redis.Client, error)

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM
	Signals <-chan os.Signal

	// LogOutput receives log output.
	// Default: os.Stderr
	LogOutput io.Writer

	// Ready is called once both servers are listening.
	Ready func(webAddr, metricsAddr string)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.BackendFactory == nil {
		out.BackendFactory = func(cfg config.Backend) (auth.Backend, error) {
			client, err := gotrue.New(cfg.URL, cfg.APIKey, gotrue.WithTimeout(cfg.Timeout))
			if err != nil {
				return nil, err //nolint:wrapcheck // gotrue errors are already coded
			}
			return client, nil
		}
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
			//nolint:wrapcheck // store errors are already coded
			return store.ConnectPool(ctx, dsn, store.DefaultRetry)
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = func(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
			//nolint:wrapcheck // store errors are already coded
			return store.ConnectRedis(ctx, opts, store.DefaultRetry)
		}
	}
	if out.LogOutput == nil {
		out.LogOutput = os.Stderr
	}
	return &out
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

func (d *MigrateDeps) withDefaults() *MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err //nolint:wrapcheck // store errors are already coded
			}
			return m, nil
		}
	}
	return &out
}
