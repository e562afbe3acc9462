// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// DefaultRefreshLeeway is how close to expiry a session is refreshed rather than checked.
const DefaultRefreshLeeway = time.Minute

const tracerName = "github.com/gatehouse/gatehouse/internal/auth"

// Gateway is the only path from the application to the auth backend.
// Each call is a single attempt; backend messages pass through unmodified.
type Gateway struct {
	backend       Backend
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
	refreshLeeway time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRefreshLeeway sets how close to expiry Restore refreshes a session.
func WithRefreshLeeway(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d >= 0 {
			g.refreshLeeway = d
		}
	}
}

// WithTracerProvider sets the tracer provider used for backend spans.
func WithTracerProvider(tp trace.TracerProvider) GatewayOption {
	return func(g *Gateway) {
		if tp != nil {
			g.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewGateway creates a Gateway over backend.
func NewGateway(backend Backend, opts ...GatewayOption) (*Gateway, error) {
	if backend == nil {
		return nil, oops.Code(CodeGatewayInvalid).Errorf("backend is required")
	}
	g := &Gateway{
		backend:       backend,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
		refreshLeeway: DefaultRefreshLeeway,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RefreshLeeway returns the configured refresh leeway.
func (g *Gateway) RefreshLeeway() time.Duration {
	return g.refreshLeeway
}

// SignUp registers c with the backend. It never yields a session.
func (g *Gateway) SignUp(ctx context.Context, c Credentials) error {
	c = c.Normalize()
	if err := ValidateCredentials(c, ModeSignUp); err != nil {
		return err
	}
	return g.observe(ctx, OpSignUp, c.Email, func(ctx context.Context) error {
		return g.backend.SignUp(ctx, c)
	})
}

// SignIn exchanges c for a session.
func (g *Gateway) SignIn(ctx context.Context, c Credentials) (*Session, error) {
	c = c.Normalize()
	if err := ValidateCredentials(c, ModeSignIn); err != nil {
		return nil, err
	}
	var sess *Session
	err := g.observe(ctx, OpSignIn, c.Email, func(ctx context.Context) error {
		var err error
		sess, err = g.backend.SignInWithPassword(ctx, c)
		if err == nil && sess == nil {
			err = oops.Code(CodeBackendProtocol).Errorf("backend returned no session")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// SignOut revokes sess. A nil session, or one the backend no longer
// recognises, is already signed out.
func (g *Gateway) SignOut(ctx context.Context, sess *Session) error {
	if sess == nil || sess.AccessToken == "" {
		return nil
	}
	return g.observe(ctx, OpSignOut, sess.Identity.Email, func(ctx context.Context) error {
		err := g.backend.SignOut(ctx, sess.AccessToken)
		if err != nil && KindOf(err) == KindAuth {
			switch StatusOf(err) {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				g.logger.DebugContext(ctx, "backend session already gone", "status", StatusOf(err))
				return nil
			}
		}
		return err
	})
}

// Restore confirms a stored session is still valid, refreshing it when the
// access token is expired or about to expire.
func (g *Gateway) Restore(ctx context.Context, sess *Session) (*Session, error) {
	if sess == nil {
		return nil, oops.Code(CodeBackendRejected).With("status", http.StatusUnauthorized).Wrap(ErrNoSession)
	}
	var restored *Session
	err := g.observe(ctx, OpRestore, sess.Identity.Email, func(ctx context.Context) error {
		if sess.ExpiresWithin(g.now(), g.refreshLeeway) {
			if sess.RefreshToken == "" {
				return Rejected(http.StatusUnauthorized, "session_expired", "Session expired")
			}
			next, err := g.backend.Refresh(ctx, sess.RefreshToken)
			if err != nil {
				return err
			}
			if next == nil {
				return oops.Code(CodeBackendProtocol).Errorf("backend returned no session")
			}
			restored = next
			return nil
		}
		identity, err := g.backend.GetUser(ctx, sess.AccessToken)
		if err != nil {
			return err
		}
		restored = sess.Clone()
		restored.Identity = identity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

func (g *Gateway) observe(ctx context.Context, operation, email string, fn func(context.Context) error) error {
	ctx, span := g.tracer.Start(ctx, "auth."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("auth.operation", operation)),
	)
	defer span.End()

	start := g.now()
	err := fn(ctx)
	recordOperation(operation, err, g.now().Sub(start))

	if err == nil {
		g.logger.InfoContext(ctx, "auth operation succeeded", "operation", operation, "email", email)
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, KindOf(err).String())
	switch KindOf(err) {
	case KindAuth:
		g.logger.InfoContext(ctx, "auth operation rejected",
			"operation", operation,
			"email", email,
			"status", StatusOf(err),
			"message", err.Error(),
		)
	default:
		errutil.LogError(g.logger, "auth operation failed", err, "operation", operation, "email", email)
	}
	return err
}
