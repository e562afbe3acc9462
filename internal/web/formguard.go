// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import "sync"

// FormGuard allows one in-flight submission per key.
type FormGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewFormGuard returns an empty FormGuard.
func NewFormGuard() *FormGuard {
	return &FormGuard{inflight: make(map[string]struct{})}
}

// TryAcquire marks key busy. When ok is false another submission holds it and
// release is nil. release is safe to call more than once.
func (g *FormGuard) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return nil, false
	}
	g.inflight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		})
	}, true
}

// InFlight returns the number of held keys.
func (g *FormGuard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
