// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"context"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/session"
)

// CookieName holds the browser session id.
const CookieName = "gatehouse_session"

type ctxKey struct{}

type browser struct {
	id       ulid.ULID
	provider *session.Provider
}

// ProviderFrom returns the session provider attached to ctx by the server.
func ProviderFrom(ctx context.Context) (*session.Provider, bool) {
	b, ok := ctx.Value(ctxKey{}).(*browser)
	if !ok || b.provider == nil {
		return nil, false
	}
	return b.provider, true
}

// browserSession attaches the provider for the request's browser session,
// issuing a new id cookie when the request has none or an unreadable one.
func (s *Server) browserSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := readCookie(r)
		if !ok {
			id = ulid.Make()
			http.SetCookie(w, s.newCookie(id))
		}
		b := &browser{id: id, provider: s.sessions.Open(r.Context(), id)}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, b)))
	})
}

func readCookie(r *http.Request) (ulid.ULID, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ulid.ULID{}, false
	}
	id, err := ulid.ParseStrict(c.Value)
	if err != nil {
		return ulid.ULID{}, false
	}
	return id, true
}

func (s *Server) newCookie(id ulid.ULID) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cfg.CookieMaxAge > 0 {
		c.MaxAge = int(s.cfg.CookieMaxAge / time.Second)
	}
	return c
}

func browserFrom(ctx context.Context) *browser {
	b, _ := ctx.Value(ctxKey{}).(*browser)
	return b
}
