// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Registry defaults.
const (
	DefaultIdleTTL        = 30 * time.Minute
	DefaultRetention      = 7 * 24 * time.Hour
	DefaultSweepInterval  = 30 * time.Second
	defaultPersistTimeout = 5 * time.Second
)

// Restorer revalidates a stored session with the backend.
type Restorer interface {
	Restore(ctx context.Context, sess *auth.Session) (*auth.Session, error)
}

// Registry owns every Provider in the process, keyed by browser session id.
// It reconciles providers with the Store the first time they are opened and
// writes every transition through to the Store.
type Registry struct {
	store     Store
	restorer  Restorer
	logger    *slog.Logger
	now       func() time.Time
	idleTTL   time.Duration
	retention time.Duration
	leeway    time.Duration

	mu      sync.Mutex
	entries map[ulid.ULID]*entry
}

type entry struct {
	provider *Provider
	once     sync.Once
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIdleTTL sets how long an unused provider stays in memory.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTTL = d
		}
	}
}

// WithRetention sets how long past its expiry a stored record is kept.
func WithRetention(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithRefreshLeeway sets how close to expiry Sweep refreshes a session.
func WithRefreshLeeway(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d >= 0 {
			r.leeway = d
		}
	}
}

// NewRegistry creates a Registry. store and restorer are required.
func NewRegistry(store Store, restorer Restorer, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, oops.Code("SESSION_REGISTRY_INVALID").Errorf("store is required")
	}
	if restorer == nil {
		return nil, oops.Code("SESSION_REGISTRY_INVALID").Errorf("restorer is required")
	}
	r := &Registry{
		store:     store,
		restorer:  restorer,
		logger:    slog.Default(),
		now:       time.Now,
		idleTTL:   DefaultIdleTTL,
		retention: DefaultRetention,
		leeway:    auth.DefaultRefreshLeeway,
		entries:   make(map[ulid.ULID]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Open returns the provider for id, creating and reconciling it on first use.
// Concurrent opens of the same id reconcile once.
func (r *Registry) Open(ctx context.Context, id ulid.ULID) *Provider {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		p := NewProvider(id, WithProviderClock(r.now))
		p.setHook(r.persist(id))
		e = &entry{provider: p}
		r.entries[id] = e
	}
	e.provider.touch()
	r.mu.Unlock()

	e.once.Do(func() { r.reconcile(context.WithoutCancel(ctx), e.provider) })
	e.provider.touch()
	return e.provider
}

func (r *Registry) idle(p *Provider, now time.Time) bool {
	return p.Subscribers() == 0 && now.Sub(p.LastSeen()) > r.idleTTL
}

// Len returns the number of providers in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) reconcile(ctx context.Context, p *Provider) {
	rec, err := r.store.Load(ctx, p.ID())
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		errutil.LogError(r.logger, "failed to load stored session", err, "session_id", p.ID().String())
		return
	}

	restored, err := r.restorer.Restore(ctx, rec.Session())
	if err != nil {
		if auth.KindOf(err) == auth.KindNetwork {
			r.logger.WarnContext(ctx, "backend unreachable, stored session left for a later start",
				"session_id", p.ID().String())
			return
		}
		r.logger.InfoContext(ctx, "stored session no longer valid",
			"session_id", p.ID().String(),
			"reason", auth.PublicMessage(err))
		r.deleteRecord(ctx, p.ID())
		return
	}

	if err := p.Restored(restored); err != nil {
		errutil.LogError(r.logger, "restored session rejected", err, "session_id", p.ID().String())
		r.deleteRecord(ctx, p.ID())
	}
}

// persist writes each change through to the store. Failures are logged and
// never alter in-memory state.
func (r *Registry) persist(id ulid.ULID) func(Change) {
	return func(c Change) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultPersistTimeout)
		defer cancel()

		switch c.Event {
		case EventSignedIn, EventRestored:
			if c.session == nil {
				return
			}
			if err := r.store.Save(ctx, NewRecord(id, c.session, c.At)); err != nil {
				persistFailures.WithLabelValues("save").Inc()
				errutil.LogError(r.logger, "failed to persist session", err, "session_id", id.String())
			}
		case EventSignedOut, EventExpired:
			r.deleteRecord(ctx, id)
		}
	}
}

func (r *Registry) deleteRecord(ctx context.Context, id ulid.ULID) {
	if err := r.store.Delete(ctx, id); err != nil {
		persistFailures.WithLabelValues("delete").Inc()
		errutil.LogError(r.logger, "failed to delete stored session", err, "session_id", id.String())
	}
}

// SweepResult summarises one Sweep.
type SweepResult struct {
	Refreshed int
	Expired   int
	Evicted   int
	Purged    int64
}

// Sweep refreshes sessions close to expiry, expires those that cannot be
// refreshed, evicts idle providers nobody listens to, and purges stored
// records past the retention window.
func (r *Registry) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	now := r.now()

	r.mu.Lock()
	providers := make([]*Provider, 0, len(r.entries))
	for _, e := range r.entries {
		providers = append(providers, e.provider)
	}
	r.mu.Unlock()

	authenticated := 0
	for _, p := range providers {
		if ctx.Err() != nil {
			return res
		}
		sess := p.Session()
		if sess != nil && sess.ExpiresWithin(now, r.leeway) {
			// The provider may sign out or in again while Restore runs; only
			// the session that was refreshed is replaced or expired.
			restored, err := r.restorer.Restore(ctx, sess)
			switch {
			case err == nil:
				applied, rerr := p.restoreIfCurrent(sess, restored)
				switch {
				case rerr != nil:
					if p.expireIfCurrent(sess) {
						res.Expired++
					}
				case applied:
					res.Refreshed++
				}
			case auth.KindOf(err) == auth.KindNetwork && !sess.ExpiresWithin(now, 0):
				// Still valid; try again next sweep.
			default:
				if p.expireIfCurrent(sess) {
					res.Expired++
				}
			}
		}
		if p.State().IsAuthenticated() {
			authenticated++
		}

		if r.idle(p, now) {
			r.mu.Lock()
			// Open touches under r.mu, so a provider handed out since the
			// first check is no longer idle here.
			if e, ok := r.entries[p.ID()]; ok && e.provider == p && r.idle(p, now) {
				delete(r.entries, p.ID())
				res.Evicted++
			}
			r.mu.Unlock()
		}
	}
	authenticatedSessions.Set(float64(authenticated))

	purged, err := r.store.DeleteExpired(ctx, now.Add(-r.retention))
	if err != nil {
		errutil.LogError(r.logger, "failed to purge expired sessions", err)
	}
	res.Purged = purged

	if res != (SweepResult{}) {
		r.logger.DebugContext(ctx, "session sweep",
			"refreshed", res.Refreshed,
			"expired", res.Expired,
			"evicted", res.Evicted,
			"purged", res.Purged,
		)
	}
	return res
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}
