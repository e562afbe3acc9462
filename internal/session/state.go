// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"time"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Status is the coarse session state.
type Status int

// Session statuses.
const (
	StatusAnonymous Status = iota
	StatusAuthenticated
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

// State is what consumers see. It is a value and cannot alter the provider.
type State struct {
	Status   Status
	Identity auth.Identity
}

// Anonymous is the state before sign-in and after sign-out.
var Anonymous = State{Status: StatusAnonymous}

// Authenticated returns the state for identity.
func Authenticated(identity auth.Identity) State {
	return State{Status: StatusAuthenticated, Identity: identity}
}

// IsAuthenticated reports whether s carries an identity.
func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated
}

// Event names a transition.
type Event string

// Transition events.
const (
	EventSignedIn  Event = "signed_in"
	EventSignedOut Event = "signed_out"
	EventRestored  Event = "restored"
	EventExpired   Event = "expired"
)

// Change is pushed to listeners after every transition that changed the session.
type Change struct {
	Event    Event
	Previous State
	Current  State
	At       time.Time

	// session is the provider's session after the change, for persistence.
	session *auth.Session
}

// Listener receives changes in the order they happened. Listeners run on the
// goroutine that made the transition and must not start another transition
// on the same provider synchronously.
type Listener func(Change)
