// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"math/rand/v2"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/guard"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

const projectCount = 6

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, guard.ViewSignIn, http.StatusFound)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "notfound.html", nil)
}

func (s *Server) handleSignInForm(w http.ResponseWriter, r *http.Request) {
	view := newAuthView(auth.ModeSignIn)
	if r.URL.Query().Get("registered") == "1" {
		view.Notice = RegisteredMessage
	}
	s.render(w, r, http.StatusOK, "auth.html", view)
}

func (s *Server) handleSignUpForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "auth.html", newAuthView(auth.ModeSignUp))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, auth.ModeSignIn)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, auth.ModeSignUp)
}

// submit runs one sign-in or sign-up attempt. Only one attempt per browser
// and form runs at a time; the session changes only after a successful
// sign-in.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, mode auth.Mode) {
	b := browserFrom(r.Context())
	view := newAuthView(mode)

	if err := r.ParseForm(); err != nil {
		view.Error = "Invalid form data"
		s.render(w, r, http.StatusBadRequest, "auth.html", view)
		return
	}
	creds := auth.Credentials{Email: r.PostFormValue("email"), Password: r.PostFormValue("password")}
	view.Email = creds.Normalize().Email

	release, ok := s.forms.TryAcquire(b.id.String() + ":" + mode.String())
	if !ok {
		busySubmissions.WithLabelValues(mode.String()).Inc()
		view.Error = BusyMessage
		s.render(w, r, http.StatusConflict, "auth.html", view)
		return
	}
	defer release()

	var err error
	if mode == auth.ModeSignUp {
		err = s.auth.SignUp(r.Context(), creds)
	} else {
		var sess *auth.Session
		if sess, err = s.auth.SignIn(r.Context(), creds); err == nil {
			err = b.provider.SignedIn(sess)
		}
	}
	if err != nil {
		if auth.KindOf(err) == auth.KindUnknown {
			errutil.LogError(s.logger, "submission failed", err, "form", mode.String())
		}
		view.Error = auth.PublicMessage(err)
		view.ErrorField = auth.FieldOf(err)
		s.render(w, r, statusFor(err, mode), "auth.html", view)
		return
	}

	if mode == auth.ModeSignUp {
		http.Redirect(w, r, guard.ViewSignIn+"?registered=1", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, guard.ViewDashboard, http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r.Context())
	s.render(w, r, http.StatusOK, "dashboard.html", s.dashboard(b, ""))
}

func (s *Server) dashboard(b *browser, errMsg string) dashboardView {
	view := dashboardView{
		Email:    b.provider.State().Identity.Email,
		Role:     "Administrator",
		Projects: make([]project, projectCount),
		Error:    errMsg,
	}
	for i := range view.Projects {
		view.Projects[i] = project{Number: i + 1, Progress: rand.IntN(100)}
	}
	return view
}

// handleSignOut revokes the backend session, then drops the local one. If the
// backend cannot be reached the session is kept and the dashboard says so.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	b := browserFrom(r.Context())
	if !b.provider.State().IsAuthenticated() {
		http.Redirect(w, r, guard.ViewSignIn, http.StatusSeeOther)
		return
	}

	release, ok := s.forms.TryAcquire(b.id.String() + ":signout")
	if !ok {
		busySubmissions.WithLabelValues("signout").Inc()
		s.render(w, r, http.StatusConflict, "dashboard.html", s.dashboard(b, BusyMessage))
		return
	}
	defer release()

	if err := s.auth.SignOut(r.Context(), b.provider.Session()); err != nil {
		s.render(w, r, http.StatusBadGateway, "dashboard.html", s.dashboard(b, auth.PublicMessage(err)))
		return
	}
	b.provider.SignedOut()
	http.Redirect(w, r, guard.ViewSignIn, http.StatusSeeOther)
}
