// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth holds the credential rules and the gateway to the hosted
// authentication backend.
//
// # Validation
//
// ValidateCredentials runs before any network call. Sign-in only checks that
// the email is well formed and a password is present; sign-up additionally
// requires MinPasswordLength characters, an uppercase letter and a digit.
//
// # Gateway
//
// Gateway wraps a Backend (see package gotrue) and is the only component that
// talks to it. Calls are single attempts. Errors are coded oops errors that
// KindOf sorts into validation, auth and network failures, and PublicMessage
// turns into the text a form displays.
//
// Gateway never holds session state. Callers hand the returned Session to the
// session package, which owns it.
package auth
