// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"simple address", "user@example.com", true},
		{"subdomain", "first.last@mail.example.co.uk", true},
		{"plus tag", "user+tag@example.com", true},
		{"surrounding whitespace", "  user@example.com ", true},
		{"empty", "", false},
		{"no at sign", "bad", false},
		{"no domain dot", "user@localhost", false},
		{"trailing dot", "user@example.", false},
		{"leading dot domain", "user@.example.com", false},
		{"missing local part", "@example.com", false},
		{"display name", "User <user@example.com>", false},
		{"angle brackets", "<user@example.com>", false},
		{"inner space", "us er@example.com", false},
		{"two at signs", "a@b@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, auth.CodeInvalidEmail)
			assert.Equal(t, auth.FieldEmail, auth.FieldOf(err))
		})
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantMsg  string
	}{
		{"meets all rules", "Abcdef12", ""},
		{"unicode uppercase", "Ábcdefg1", ""},
		{"exactly seven", "Abcdef1", "Password must be at least 8 characters"},
		{"no uppercase", "abcdefg1", "Password must contain an uppercase letter"},
		{"no digit", "Abcdefgh", "Password must contain a number"},
		{"arabic-indic digit only", "Abcdefg١", "Password must contain a number"},
		{"short and lowercase", "abc1", "Password must be at least 8 characters and contain an uppercase letter"},
		{"empty", "", "Password must be at least 8 characters, contain an uppercase letter and contain a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePasswordStrength(tt.password)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, auth.FieldPassword, auth.FieldOf(err))
		})
	}
}

func TestValidateCredentials_SignUp(t *testing.T) {
	require.NoError(t, auth.ValidateCredentials(auth.Credentials{Email: "user@example.com", Password: "Abcdef12"}, auth.ModeSignUp))

	err := auth.ValidateCredentials(auth.Credentials{Email: "user@example.com", Password: "abcdefgh"}, auth.ModeSignUp)
	errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)
}

func TestValidateCredentials_SignInSkipsStrength(t *testing.T) {
	for _, pw := range []string{"x", "abc", "password"} {
		assert.NoError(t, auth.ValidateCredentials(auth.Credentials{Email: "user@example.com", Password: pw}, auth.ModeSignIn), pw)
	}
}

func TestValidateCredentials_SignInRequiresPassword(t *testing.T) {
	err := auth.ValidateCredentials(auth.Credentials{Email: "user@example.com"}, auth.ModeSignIn)
	errutil.AssertErrorCode(t, err, auth.CodePasswordRequired)
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestValidateCredentials_EmailCheckedFirst(t *testing.T) {
	for _, mode := range []auth.Mode{auth.ModeSignIn, auth.ModeSignUp} {
		t.Run(mode.String(), func(t *testing.T) {
			err := auth.ValidateCredentials(auth.Credentials{Email: "bad", Password: "x"}, mode)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidEmail)
		})
	}
}

func TestValidateCredentials_UnknownMode(t *testing.T) {
	err := auth.ValidateCredentials(auth.Credentials{Email: "user@example.com", Password: "x"}, auth.Mode(0))
	errutil.AssertErrorCode(t, err, auth.CodeInvalidMode)
}

func TestValidateCredentials_Idempotent(t *testing.T) {
	c := auth.Credentials{Email: "user@example.com", Password: "short"}
	first := auth.ValidateCredentials(c, auth.ModeSignUp)
	second := auth.ValidateCredentials(c, auth.ModeSignUp)
	assert.Equal(t, first.Error(), second.Error())
}

func TestCredentials_LogValueOmitsPassword(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("submit", "credentials", auth.Credentials{Email: "user@example.com", Password: "Abcdef12"})

	assert.Contains(t, buf.String(), "user@example.com")
	assert.NotContains(t, buf.String(), "Abcdef12")
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "signin", auth.ModeSignIn.String())
	assert.Equal(t, "signup", auth.ModeSignUp.String())
	assert.Equal(t, "unknown", auth.Mode(9).String())
}
