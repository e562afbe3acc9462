// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormGuard_OneHolderPerKey(t *testing.T) {
	g := NewFormGuard()

	release, ok := g.TryAcquire("b1:signin")
	require.True(t, ok)

	_, ok = g.TryAcquire("b1:signin")
	assert.False(t, ok)

	other, ok := g.TryAcquire("b2:signin")
	require.True(t, ok, "other browsers are unaffected")
	other()

	release()
	release()
	assert.Zero(t, g.InFlight())

	again, ok := g.TryAcquire("b1:signin")
	require.True(t, ok)
	again()
}

func TestFormGuard_ReleasedOnPanic(t *testing.T) {
	g := NewFormGuard()

	func() {
		defer func() { _ = recover() }()
		release, ok := g.TryAcquire("k")
		require.True(t, ok)
		defer release()
		panic("handler blew up")
	}()

	assert.Zero(t, g.InFlight())
}

func TestFormGuard_ConcurrentAcquire(t *testing.T) {
	g := NewFormGuard()
	var winners atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAcquire("same"); ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
