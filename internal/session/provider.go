// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Provider owns the session of one browser session. It is the only place the
// session is mutated; everything else reads copies or subscribes.
type Provider struct {
	id  ulid.ULID
	now func() time.Time

	mu        sync.Mutex
	sess      *auth.Session
	listeners []subscription
	nextSub   int
	lastSeen  time.Time
	hook      func(Change)

	// deliverMu orders delivery across concurrent transitions.
	deliverMu sync.Mutex
}

type subscription struct {
	id int
	fn Listener
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderClock overrides time.Now.
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProvider returns an anonymous provider.
func NewProvider(id ulid.ULID, opts ...ProviderOption) *Provider {
	p := &Provider{id: id, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.lastSeen = p.now()
	return p
}

// ID returns the browser session id.
func (p *Provider) ID() ulid.ULID {
	return p.id
}

// State returns the current state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return stateOf(p.sess)
}

// Session returns a copy of the current session, or nil when anonymous.
func (p *Provider) Session() *auth.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess.Clone()
}

// Subscribe registers l and returns a function that removes it.
// The returned function is safe to call more than once.
func (p *Provider) Subscribe(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSub++
	id := p.nextSub
	p.listeners = append(p.listeners, subscription{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, s := range p.listeners {
				if s.id == id {
					p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of active listeners.
func (p *Provider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// SignedIn records a session obtained from a successful sign-in.
func (p *Provider) SignedIn(sess *auth.Session) error {
	return p.authenticate(EventSignedIn, sess)
}

// Restored records a session recovered from storage or refreshed.
func (p *Provider) Restored(sess *auth.Session) error {
	return p.authenticate(EventRestored, sess)
}

// SignedOut drops the session. It is idempotent.
func (p *Provider) SignedOut() {
	p.clear(EventSignedOut)
}

// Expired drops a session the backend no longer honours.
func (p *Provider) Expired() {
	p.clear(EventExpired)
}

// LastSeen returns when the provider was last opened.
func (p *Provider) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

func (p *Provider) touch() {
	p.mu.Lock()
	p.lastSeen = p.now()
	p.mu.Unlock()
}

// setHook installs the persistence hook. It runs before listeners.
func (p *Provider) setHook(h func(Change)) {
	p.mu.Lock()
	p.hook = h
	p.mu.Unlock()
}

// restoreIfCurrent publishes Restored only while prev is still the held
// session. It reports whether next was applied.
func (p *Provider) restoreIfCurrent(prev, next *auth.Session) (bool, error) {
	return p.swap(EventRestored, next, func(held *auth.Session) bool {
		return sameSession(held, prev)
	})
}

// expireIfCurrent publishes Expired only while prev is still the held
// session. It reports whether the session was dropped.
func (p *Provider) expireIfCurrent(prev *auth.Session) bool {
	p.mu.Lock()
	if p.sess == nil || !sameSession(p.sess, prev) {
		p.mu.Unlock()
		return false
	}
	prevState := stateOf(p.sess)
	p.sess = nil
	p.publish(EventExpired, prevState)
	return true
}

func (p *Provider) authenticate(event Event, sess *auth.Session) error {
	_, err := p.swap(event, sess, nil)
	return err
}

// swap installs sess when current, if set, accepts the held session.
func (p *Provider) swap(event Event, sess *auth.Session, current func(held *auth.Session) bool) (bool, error) {
	if sess == nil || sess.AccessToken == "" || sess.Identity.UserID == "" {
		return false, oops.Code("SESSION_INVALID").
			With("event", string(event)).
			With("session_id", p.id.String()).
			Errorf("session must carry an access token and a user id")
	}

	p.mu.Lock()
	if current != nil && !current(p.sess) {
		p.mu.Unlock()
		return false, nil
	}
	if sameSession(p.sess, sess) {
		p.mu.Unlock()
		return true, nil
	}
	prev := stateOf(p.sess)
	p.sess = sess.Clone()
	p.publish(event, prev)
	return true, nil
}

func (p *Provider) clear(event Event) {
	p.mu.Lock()
	if p.sess == nil {
		p.mu.Unlock()
		return
	}
	prev := stateOf(p.sess)
	p.sess = nil
	p.publish(event, prev)
}

// publish must be called with p.mu held; it releases it.
func (p *Provider) publish(event Event, prev State) {
	change := Change{
		Event:    event,
		Previous: prev,
		Current:  stateOf(p.sess),
		At:       p.now(),
		session:  p.sess.Clone(),
	}
	hook := p.hook
	listeners := make([]Listener, len(p.listeners))
	for i, s := range p.listeners {
		listeners[i] = s.fn
	}

	p.deliverMu.Lock()
	p.mu.Unlock()
	defer p.deliverMu.Unlock()

	recordTransition(event)
	if hook != nil {
		hook(change)
	}
	for _, l := range listeners {
		l(change)
	}
}

func stateOf(sess *auth.Session) State {
	if sess == nil {
		return Anonymous
	}
	return Authenticated(sess.Identity)
}

func sameSession(a, b *auth.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Identity == b.Identity &&
		a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}
