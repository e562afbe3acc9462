// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package gotruetest runs an in-memory GoTrue-compatible server for tests.
package gotruetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// APIKey is the key the server expects in the apikey header.
const APIKey = "test-anon-key"

var signingKey = []byte("gotruetest-signing-key")

// Server is a fake GoTrue server. Create it with NewServer and Close it when done.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	users       map[string]*account
	access      map[string]string
	refresh     map[string]string
	calls       map[string]int
	failures    map[string]failure
	ttl         time.Duration
	autoConfirm bool
}

type account struct {
	id        string
	email     string
	password  string
	confirmed bool
}

type failure struct {
	status int
	body   string
}

// Option configures a Server.
type Option func(*Server)

// WithTTL sets the lifetime of issued access tokens.
func WithTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// WithAutoConfirm makes sign-up confirm the account immediately.
func WithAutoConfirm() Option {
	return func(s *Server) { s.autoConfirm = true }
}

// NewServer starts a fake server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		users:    make(map[string]*account),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		calls:    make(map[string]int),
		failures: make(map[string]failure),
		ttl:      time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.count, s.requireAPIKey, s.injectFailure)
	r.Post("/auth/v1/signup", s.handleSignUp)
	r.Post("/auth/v1/token", s.handleToken)
	r.Post("/auth/v1/logout", s.handleLogout)
	r.Get("/auth/v1/user", s.handleUser)

	s.Server = httptest.NewServer(r)
	return s
}

// AddUser creates a confirmed account and returns its id.
func (s *Server) AddUser(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &account{id: uuid.NewString(), email: email, password: password, confirmed: true}
	s.users[email] = a
	return a.id
}

// Confirm marks an account as confirmed.
func (s *Server) Confirm(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.users[email]; ok {
		a.confirmed = true
	}
}

// Fail makes every request to path answer with status and body until cleared
// with status 0.
func (s *Server) Fail(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = failure{status: status, body: body}
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// TotalCalls returns the number of requests across all paths.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Revoke invalidates an access token.
func (s *Server) Revoke(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, accessToken)
}

// ActiveSessions returns the number of live access tokens.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.access)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.URL.Path]
		s.mu.Unlock()
		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	if len(in.Password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Email]; exists {
		writeError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	a := &account{id: uuid.NewString(), email: in.Email, password: in.Password, confirmed: s.autoConfirm}
	s.users[in.Email] = a
	if a.confirmed {
		writeJSON(w, http.StatusOK, s.issue(a))
		return
	}
	writeJSON(w, http.StatusOK, userJSON(a))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.URL.Query().Get("grant_type") {
	case "password":
		a, ok := s.users[in.Email]
		if !ok || a.password != in.Password {
			writeError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		if !a.confirmed {
			writeError(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
			return
		}
		writeJSON(w, http.StatusOK, s.issue(a))
	case "refresh_token":
		email, ok := s.refresh[in.RefreshToken]
		if !ok {
			writeError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(s.refresh, in.RefreshToken)
		writeJSON(w, http.StatusOK, s.issue(s.users[email]))
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "unsupported_grant_type")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.access[token]; !ok {
		writeError(w, http.StatusUnauthorized, "session_not_found", "Session from session_id claim in JWT does not exist")
		return
	}
	delete(s.access, token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.access[token]
	if !ok {
		writeError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT: unable to parse or verify signature, token is expired")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(s.users[email]))
}

// issue must be called with s.mu held.
func (s *Server) issue(a *account) map[string]any {
	expires := time.Now().Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   a.id,
		"email": a.email,
		"exp":   expires.Unix(),
		"iat":   time.Now().Unix(),
		"jti":   uuid.NewString(),
		"role":  "authenticated",
	})
	access, err := token.SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("gotruetest: sign token: %v", err))
	}
	refresh := uuid.NewString()
	s.access[access] = a.email
	s.refresh[refresh] = a.email
	return map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    int64(s.ttl / time.Second),
		"expires_at":    expires.Unix(),
		"refresh_token": refresh,
		"user":          userJSON(a),
	}
}

func userJSON(a *account) map[string]any {
	return map[string]any{
		"id":    a.id,
		"aud":   "authenticated",
		"role":  "authenticated",
		"email": a.email,
	}
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
