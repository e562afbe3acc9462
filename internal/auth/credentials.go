// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"log/slog"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 8

// PasswordHint describes the sign-up password rules to the user.
const PasswordHint = "8+ characters, 1 uppercase, 1 number"

// Mode selects which rules ValidateCredentials applies.
type Mode int

// Form modes.
const (
	ModeSignIn Mode = iota + 1
	ModeSignUp
)

// String returns the form name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeSignIn:
		return "signin"
	case ModeSignUp:
		return "signup"
	default:
		return "unknown"
	}
}

// Credentials is a single form submission. It is never persisted.
type Credentials struct {
	Email    string
	Password string
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", c.Email))
}

// Normalize trims whitespace around the email. The password is left untouched.
func (c Credentials) Normalize() Credentials {
	c.Email = strings.TrimSpace(c.Email)
	return c
}

// ValidateCredentials checks c against the rules for mode.
// The email is checked before the password in both modes.
func ValidateCredentials(c Credentials, mode Mode) error {
	if mode != ModeSignIn && mode != ModeSignUp {
		return oops.Code(CodeInvalidMode).With("mode", int(mode)).Errorf("unknown form mode %d", mode)
	}
	if err := ValidateEmail(c.Email); err != nil {
		return err
	}
	if mode == ModeSignUp {
		return ValidatePasswordStrength(c.Password)
	}
	if c.Password == "" {
		return oops.Code(CodePasswordRequired).
			With("field", FieldPassword).
			Errorf("Password is required")
	}
	return nil
}

// ValidateEmail reports whether email is a bare address with a dotted domain.
// Display names and angle brackets are rejected.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalidEmail("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return invalidEmail("Invalid email address")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !validDomain(email[at+1:]) {
		return invalidEmail("Invalid email address")
	}
	return nil
}

func validDomain(domain string) bool {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" {
			return false
		}
	}
	return true
}

func invalidEmail(msg string) error {
	return oops.Code(CodeInvalidEmail).With("field", FieldEmail).Errorf("%s", msg)
}

// ValidatePasswordStrength applies the sign-up rules: at least
// MinPasswordLength characters, one uppercase letter and one ASCII digit.
// The message lists every rule the password misses.
func ValidatePasswordStrength(password string) error {
	var hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case '0' <= r && r <= '9':
			hasDigit = true
		}
	}

	var unmet []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		unmet = append(unmet, "be at least 8 characters")
	}
	if !hasUpper {
		unmet = append(unmet, "contain an uppercase letter")
	}
	if !hasDigit {
		unmet = append(unmet, "contain a number")
	}
	if len(unmet) == 0 {
		return nil
	}

	return oops.Code(CodeWeakPassword).
		With("field", FieldPassword).
		With("unmet", len(unmet)).
		Errorf("Password must %s", joinRules(unmet))
}

func joinRules(rules []string) string {
	switch len(rules) {
	case 1:
		return rules[0]
	case 2:
		return rules[0] + " and " + rules[1]
	default:
		return strings.Join(rules[:len(rules)-1], ", ") + " and " + rules[len(rules)-1]
	}
}
