// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package store connects to the databases behind session persistence and
// owns the embedded PostgreSQL schema.
package store
