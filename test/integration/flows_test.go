// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth/gotruetest"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/web"
)

const (
	pathSignUp = "/auth/v1/signup"
	pathToken  = "/auth/v1/token"
	pathLogout = "/auth/v1/logout"
)

// providerFor returns the session provider behind b's cookie.
func providerFor(s *stack, b *browser) *session.Provider {
	u, err := url.Parse(b.base)
	Expect(err).NotTo(HaveOccurred())
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == web.CookieName {
			id, err := ulid.ParseStrict(c.Value)
			Expect(err).NotTo(HaveOccurred())
			return s.registry.Open(context.Background(), id)
		}
	}
	Fail("browser has no session cookie")
	return nil
}

var _ = Describe("Sign-in flows against GoTrue", func() {
	var (
		backend *gotruetest.Server
		s       *stack
		b       *browser
	)

	BeforeEach(func() {
		backend = gotruetest.NewServer(gotruetest.WithAutoConfirm())
		s = newStack(session.NewMemoryStore(), backend)
		b = newBrowser(s.http.URL)
	})

	AfterEach(func() {
		s.close()
		backend.Close()
	})

	Describe("signing up", func() {
		It("registers once and sends the user to sign in without a session", func() {
			p := b.post("/signup", credentials("user@example.com", "Abcdef12"))

			Expect(p.status).To(Equal(http.StatusSeeOther))
			Expect(p.location).To(Equal("/signin?registered=1"))
			Expect(backend.Calls(pathSignUp)).To(Equal(1))
			Expect(backend.Calls(pathToken)).To(BeZero())
			Expect(providerFor(s, b).State().IsAuthenticated()).To(BeFalse())

			p = b.get(p.location)
			Expect(p.status).To(Equal(http.StatusOK))
			Expect(p.body).To(ContainSubstring("Account created. You can sign in now."))
		})

		It("rejects a weak password before calling the backend", func() {
			p := b.post("/signup", credentials("user@example.com", "abcdefgh"))

			Expect(p.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(backend.TotalCalls()).To(BeZero())
		})

		It("shows the backend's message verbatim when it refuses", func() {
			backend.Fail(pathSignUp, http.StatusBadRequest, `{"msg":"User already registered"}`)

			p := b.post("/signup", credentials("user@example.com", "Abcdef12"))
			Expect(p.status).To(Equal(http.StatusBadRequest))
			Expect(p.body).To(ContainSubstring("User already registered"))
		})
	})

	Describe("signing in", func() {
		It("rejects a malformed email without calling the backend", func() {
			p := b.post("/signin", credentials("bad", "x"))

			Expect(p.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(backend.TotalCalls()).To(BeZero())
		})

		It("walks sign-in, dashboard, sign-out and back to the guard", func() {
			backend.AddUser("user@example.com", "Abcdef12")

			p := b.get("/dashboard")
			Expect(p.status).To(Equal(http.StatusFound))
			Expect(p.location).To(Equal("/signin"))

			p = b.post("/signin", credentials("user@example.com", "Abcdef12"))
			Expect(p.status).To(Equal(http.StatusSeeOther))
			Expect(p.location).To(Equal("/dashboard"))
			Expect(providerFor(s, b).State().IsAuthenticated()).To(BeTrue())

			p = b.get("/dashboard")
			Expect(p.status).To(Equal(http.StatusOK))
			Expect(p.body).To(ContainSubstring("user@example.com"))

			p = b.post("/signout", nil)
			Expect(p.status).To(Equal(http.StatusSeeOther))
			Expect(p.location).To(Equal("/signin"))
			Expect(backend.Calls(pathLogout)).To(Equal(1))
			Expect(backend.ActiveSessions()).To(BeZero())
			Expect(providerFor(s, b).State().IsAuthenticated()).To(BeFalse())

			p = b.get("/dashboard")
			Expect(p.status).To(Equal(http.StatusFound))
			Expect(p.location).To(Equal("/signin"))
		})

		It("reports wrong credentials with 401 and stays anonymous", func() {
			backend.AddUser("user@example.com", "Abcdef12")

			p := b.post("/signin", credentials("user@example.com", "Wrong123"))
			Expect(p.status).To(Equal(http.StatusUnauthorized))
			Expect(providerFor(s, b).State().IsAuthenticated()).To(BeFalse())
		})

		It("reports an unreachable backend with the network message", func() {
			backend.Close()

			p := b.post("/signin", credentials("user@example.com", "Abcdef12"))
			Expect(p.status).To(Equal(http.StatusBadGateway))
			Expect(p.body).To(ContainSubstring("Unable to reach the sign-in service"))
		})
	})

	Describe("signing out", func() {
		It("succeeds when the backend has already dropped the session", func() {
			backend.AddUser("user@example.com", "Abcdef12")
			b.post("/signin", credentials("user@example.com", "Abcdef12"))
			backend.Revoke(providerFor(s, b).Session().AccessToken)

			p := b.post("/signout", nil)
			Expect(p.status).To(Equal(http.StatusSeeOther))
			Expect(p.location).To(Equal("/signin"))
			Expect(providerFor(s, b).State().IsAuthenticated()).To(BeFalse())
		})

		It("keeps the session when the backend fails", func() {
			backend.AddUser("user@example.com", "Abcdef12")
			b.post("/signin", credentials("user@example.com", "Abcdef12"))
			backend.Fail(pathLogout, http.StatusServiceUnavailable, `{}`)

			p := b.post("/signout", nil)
			Expect(p.status).To(Equal(http.StatusBadGateway))
			Expect(providerFor(s, b).State().IsAuthenticated()).To(BeTrue())
		})
	})
})
