// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // gomega convention

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/gotrue"
	"github.com/gatehouse/gatehouse/internal/auth/gotruetest"
	"github.com/gatehouse/gatehouse/internal/guard"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/web"
)

// stack is a full Gatehouse wired to a fake GoTrue server.
type stack struct {
	backend  *gotruetest.Server
	gateway  *auth.Gateway
	registry *session.Registry
	server   *web.Server
	http     *httptest.Server
}

func newStack(store session.Store, backend *gotruetest.Server) *stack {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := gotrue.New(backend.URL, gotruetest.APIKey)
	Expect(err).NotTo(HaveOccurred())
	gateway, err := auth.NewGateway(client, auth.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())
	registry, err := session.NewRegistry(store, gateway, session.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())
	g, err := guard.New(guard.DefaultProtected...)
	Expect(err).NotTo(HaveOccurred())
	server, err := web.NewServer(web.Config{}, gateway, registry, g, web.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	return &stack{
		backend:  backend,
		gateway:  gateway,
		registry: registry,
		server:   server,
		http:     httptest.NewServer(server.Handler()),
	}
}

func (s *stack) close() {
	s.http.Close()
}

// browser is a cookie-keeping client that does not follow redirects.
type browser struct {
	base   string
	client *http.Client
}

func newBrowser(base string) *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &browser{
		base: base,
		client: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type page struct {
	status   int
	location string
	body     string
}

func (b *browser) get(path string) page {
	resp, err := b.client.Get(b.base + path)
	Expect(err).NotTo(HaveOccurred())
	return readPage(resp)
}

func (b *browser) post(path string, form url.Values) page {
	resp, err := b.client.PostForm(b.base+path, form)
	Expect(err).NotTo(HaveOccurred())
	return readPage(resp)
}

// moveTo points the browser's cookies at another server.
func (b *browser) moveTo(base string) {
	from, err := url.Parse(b.base)
	Expect(err).NotTo(HaveOccurred())
	to, err := url.Parse(base)
	Expect(err).NotTo(HaveOccurred())
	b.client.Jar.SetCookies(to, b.client.Jar.Cookies(from))
	b.base = base
}

func readPage(resp *http.Response) page {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return page{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(body)}
}

func credentials(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}
