// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/guard"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/session/postgres"
	"github.com/gatehouse/gatehouse/internal/session/redisstore"
	"github.com/gatehouse/gatehouse/internal/web"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the view server",
		Long: `Start the view server, which serves the sign-in, sign-up and dashboard
views, and the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// sessionStore is an opened session store and how to check and release it.
type sessionStore struct {
	store session.Store
	check observability.Check
	close func()
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.With("operation", "load config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate config").Wrap(err)
	}

	level, _ := logging.ParseLevel(cfg.Server.LogLevel) //nolint:errcheck // validated above
	logger := logging.Setup(logging.Options{
		Service: cfg.Telemetry.ServiceName,
		Version: version,
		Format:  cfg.Server.LogFormat,
		Level:   level,
	}, deps.LogOutput)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracing, err := observability.SetupTracing(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, version)
	if err != nil {
		return oops.With("operation", "set up tracing").Wrap(err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error flushing traces", "error", err)
		}
	}()

	logger.Info("starting gatehouse",
		"addr", cfg.Server.Addr,
		"backend", cfg.Backend.URL,
		"session_store", cfg.Sessions.Store,
		"sealed", cfg.Sessions.SealKey != "",
		"tracing", tracing.Enabled(),
	)

	backend, err := deps.BackendFactory(cfg.Backend)
	if err != nil {
		return oops.With("operation", "create auth backend").Wrap(err)
	}
	gateway, err := auth.NewGateway(backend,
		auth.WithLogger(logger),
		auth.WithRefreshLeeway(cfg.Backend.RefreshLeeway),
		auth.WithTracerProvider(tracing.Provider),
	)
	if err != nil {
		return oops.With("operation", "create auth gateway").Wrap(err)
	}

	sessions, err := openSessionStore(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer sessions.close()

	registry, err := session.NewRegistry(sessions.store, gateway,
		session.WithLogger(logger),
		session.WithIdleTTL(cfg.Sessions.IdleTTL),
		session.WithRetention(cfg.Sessions.Retention),
		session.WithRefreshLeeway(cfg.Backend.RefreshLeeway),
	)
	if err != nil {
		return oops.With("operation", "create session registry").Wrap(err)
	}

	g, err := guard.New(cfg.ProtectedPatterns()...)
	if err != nil {
		return oops.With("operation", "compile route guard").Wrap(err)
	}

	webServer, err := web.NewServer(web.Config{
		Addr:          cfg.Server.Addr,
		SecureCookies: cfg.Server.SecureCookies,
		CookieMaxAge:  cfg.Sessions.Retention,
	}, gateway, registry, g, web.WithLogger(logger))
	if err != nil {
		return oops.With("operation", "create view server").Wrap(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		registry.Run(ctx, cfg.Sessions.SweepInterval)
	}()
	defer wg.Wait()
	defer cancel()

	webErrCh, err := webServer.Start()
	if err != nil {
		return oops.With("operation", "start view server").Wrap(err)
	}
	defer stopServer(logger, "view", webServer.Stop)

	var obsErrCh <-chan error
	metricsAddr := ""
	if cfg.Server.MetricsAddr != "" {
		obsServer := observability.NewServer(cfg.Server.MetricsAddr, version,
			observability.WithLogger(logger),
			observability.WithCollectors(auth.RegisterMetrics, session.RegisterMetrics, web.RegisterMetrics),
		)
		obsServer.AddCheck("session_store", sessions.check)
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer stopServer(logger, "observability", obsServer.Stop)
		metricsAddr = obsServer.Addr()
	}

	signals := deps.Signals
	if signals == nil {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		signals = sigChan
	}

	cmd.Println("Gatehouse started")
	logger.Info("gatehouse ready", "addr", webServer.Addr(), "metrics_addr", metricsAddr)
	if deps.Ready != nil {
		deps.Ready(webServer.Addr(), metricsAddr)
	}

	select {
	case sig := <-signals:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-webErrCh:
		if err != nil {
			return oops.Code("WEB_SERVE_FAILED").Wrap(err)
		}
	case err := <-obsErrCh:
		if err != nil {
			return oops.Code("OBSERVABILITY_SERVE_FAILED").Wrap(err)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	return nil
}

func stopServer(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// openSessionStore opens the configured store, sealing tokens when a key is set.
func openSessionStore(ctx context.Context, cfg *config.Config, deps *ServeDeps) (*sessionStore, error) {
	var out *sessionStore
	switch cfg.Sessions.Store {
	case config.StorePostgres:
		pool, err := deps.PoolFactory(ctx, cfg.Sessions.DatabaseURL)
		if err != nil {
			return nil, oops.With("operation", "connect session database").Wrap(err)
		}
		out = &sessionStore{
			store: postgres.New(pool),
			check: pool.Ping,
			close: pool.Close,
		}
	case config.StoreRedis:
		client, err := deps.RedisFactory(ctx, &redis.Options{
			Addr: cfg.Sessions.RedisAddr,
			DB:   cfg.Sessions.RedisDB,
		})
		if err != nil {
			return nil, oops.With("operation", "connect session redis").Wrap(err)
		}
		out = &sessionStore{
			store: redisstore.New(client, cfg.Sessions.Retention),
			check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close: func() { _ = client.Close() }, //nolint:errcheck // nothing to do on shutdown
		}
	default:
		out = &sessionStore{
			store: session.NewMemoryStore(),
			check: func(context.Context) error { return nil },
			close: func() {},
		}
	}

	if cfg.Sessions.SealKey == "" {
		return out, nil
	}
	key, err := session.ParseSealKey(cfg.Sessions.SealKey)
	if err == nil {
		out.store, err = session.NewSealedStore(out.store, key)
	}
	if err != nil {
		out.close()
		return nil, oops.With("operation", "seal session store").Wrap(err)
	}
	return out, nil
}
