// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MemoryStore keeps records in process memory. Records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[ulid.ULID]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[ulid.ULID]Record)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *r
	if existing, ok := s.records[r.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	s.records[r.ID] = rec
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id ulid.ULID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	return &rec, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
