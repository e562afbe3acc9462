// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Error codes carried by oops errors from this package and its backends.
const (
	CodeInvalidEmail       = "AUTH_INVALID_EMAIL"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodePasswordRequired   = "AUTH_PASSWORD_REQUIRED"
	CodeInvalidMode        = "AUTH_INVALID_MODE"
	CodeBackendRejected    = "AUTH_BACKEND_REJECTED"
	CodeBackendUnreachable = "AUTH_BACKEND_UNREACHABLE"
	CodeBackendProtocol    = "AUTH_BACKEND_PROTOCOL"
	CodeGatewayInvalid     = "AUTH_GATEWAY_INVALID"
)

// Form fields a validation error can point at.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
)

// Messages shown when an error carries no text the user should see.
const (
	NetworkMessage = "Unable to reach the sign-in service. Please try again."
	GenericMessage = "An error occurred"
)

// ErrNoSession is returned when an operation needs a session and none was given.
var ErrNoSession = errors.New("no session")

// Kind classifies an error for presentation.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindNetwork
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// KindOf classifies err by its oops code.
func KindOf(err error) Kind {
	switch errutil.Code(err) {
	case CodeInvalidEmail, CodeWeakPassword, CodePasswordRequired:
		return KindValidation
	case CodeBackendRejected:
		return KindAuth
	case CodeBackendUnreachable, CodeBackendProtocol:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// FieldOf returns the form field a validation error refers to, or "".
func FieldOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	field, _ := oopsErr.Context()["field"].(string)
	return field
}

// StatusOf returns the backend HTTP status attached to an auth error, or 0.
func StatusOf(err error) int {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0
	}
	status, _ := oopsErr.Context()["status"].(int)
	return status
}

// PublicMessage returns the text a form should display for err.
// Validation and backend rejections are shown verbatim; transport failures
// get a fixed message.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindValidation, KindAuth:
		if oopsErr, ok := oops.AsOops(err); ok {
			if msg := oopsErr.Error(); msg != "" {
				return msg
			}
		}
		return GenericMessage
	case KindNetwork:
		return NetworkMessage
	default:
		return GenericMessage
	}
}

// Rejected builds the error for a backend that answered with a failure.
// message is the backend's text and is kept unmodified.
func Rejected(status int, errorCode, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = GenericMessage
	}
	b := oops.Code(CodeBackendRejected).With("status", status)
	if errorCode != "" {
		b = b.With("error_code", errorCode)
	}
	return b.Errorf("%s", message)
}

// Unreachable wraps a transport failure.
func Unreachable(operation string, err error) error {
	return oops.Code(CodeBackendUnreachable).With("operation", operation).Wrap(err)
}
