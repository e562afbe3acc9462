// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Notices shown above the forms.
const (
	BusyMessage       = "A request is already in progress."
	RegisteredMessage = "Account created. You can sign in now."
)

type authView struct {
	Mode         string
	Title        string
	Submit       string
	SwitchPrompt string
	SwitchLabel  string
	SwitchHref   string
	Placeholder  string
	Email        string
	Error        string
	ErrorField   string
	Notice       string
}

type project struct {
	Number   int
	Progress int
}

type dashboardView struct {
	Email    string
	Role     string
	Projects []project
	Error    string
}

func newAuthView(mode auth.Mode) authView {
	if mode == auth.ModeSignUp {
		return authView{
			Mode:         mode.String(),
			Title:        "Join us today",
			Submit:       "Create account",
			SwitchPrompt: "Already have an account?",
			SwitchLabel:  "Sign in",
			SwitchHref:   "/signin",
			Placeholder:  auth.PasswordHint,
		}
	}
	return authView{
		Mode:         mode.String(),
		Title:        "Welcome back!",
		Submit:       "Sign in",
		SwitchPrompt: "New to our platform?",
		SwitchLabel:  "Create an account",
		SwitchHref:   "/signup",
		Placeholder:  "••••••••",
	}
}

// statusFor maps a failed submission to its response status.
func statusFor(err error, mode auth.Mode) int {
	switch auth.KindOf(err) {
	case auth.KindValidation:
		return http.StatusUnprocessableEntity
	case auth.KindAuth:
		if auth.StatusOf(err) == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		if mode == auth.ModeSignUp {
			return http.StatusBadRequest
		}
		return http.StatusUnauthorized
	case auth.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, view any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, view); err != nil {
		errutil.LogError(s.logger, "failed to render template", err, "template", name)
		http.Error(w, auth.GenericMessage, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = buf.WriteTo(w) //nolint:errcheck // client may have gone away
}
