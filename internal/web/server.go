// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package web serves the sign-in, sign-up and dashboard views.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/guard"
	"github.com/gatehouse/gatehouse/internal/session"
)

// DefaultHeartbeat is how often an idle event stream sends a keep-alive comment.
const DefaultHeartbeat = 15 * time.Second

// Authenticator is the auth gateway as the handlers use it.
type Authenticator interface {
	SignUp(ctx context.Context, c auth.Credentials) error
	SignIn(ctx context.Context, c auth.Credentials) (*auth.Session, error)
	SignOut(ctx context.Context, sess *auth.Session) error
}

// Sessions hands out the provider for a browser session.
type Sessions interface {
	Open(ctx context.Context, id ulid.ULID) *session.Provider
}

// Config configures the view server.
type Config struct {
	Addr          string
	SecureCookies bool
	CookieMaxAge  time.Duration
	Heartbeat     time.Duration
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	auth     Authenticator
	sessions Sessions
	guard    *guard.Guard
	forms    *FormGuard
	logger   *slog.Logger
	router   chi.Router

	baseCtx    context.Context
	cancelBase context.CancelFunc
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFormGuard shares a FormGuard, mainly so tests can inspect it.
func WithFormGuard(g *FormGuard) Option {
	return func(s *Server) {
		if g != nil {
			s.forms = g
		}
	}
}

// NewServer wires the router. authenticator, sessions and g are required.
func NewServer(cfg Config, authenticator Authenticator, sessions Sessions, g *guard.Guard, opts ...Option) (*Server, error) {
	if authenticator == nil || sessions == nil || g == nil {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("authenticator, sessions and guard are required")
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	s := &Server{
		cfg:      cfg,
		auth:     authenticator,
		sessions: sessions,
		guard:    g,
		forms:    NewFormGuard(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.browserSession)
	r.Use(s.sameOrigin)
	r.Use(s.guarded)

	r.Get("/", s.handleRoot)
	r.Get("/signin", s.handleSignInForm)
	r.Post("/signin", s.handleSignIn)
	r.Get("/signup", s.handleSignUpForm)
	r.Post("/signup", s.handleSignUp)
	r.Get("/dashboard", s.handleDashboard)
	r.Post("/signout", s.handleSignOut)
	r.Get("/events", s.handleEvents)
	r.NotFound(s.handleNotFound)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address. The returned channel reports a
// serve failure and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_SERVER_RUNNING").Errorf("web server already running")
	}
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", err)
			errCh <- err
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop ends open event streams and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancelBase()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.Code("WEB_SHUTDOWN_FAILED").With("operation", "shutdown web server").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
