// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package session holds the Anonymous/Authenticated state machine.
//
// A Provider owns one browser session's auth.Session and pushes a Change to
// its listeners on every transition. The Registry owns all providers,
// reconciles each with its Store the first time it is opened after a start,
// writes transitions through to the Store, and sweeps sessions that are about
// to expire.
//
// Store implementations live in this package (MemoryStore, SealedStore) and
// in the postgres and redisstore subpackages.
package session
