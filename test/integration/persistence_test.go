// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth/gotruetest"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/session/postgres"
	"github.com/gatehouse/gatehouse/internal/store"
)

var sealKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var _ = Describe("Sessions persisted in PostgreSQL", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		pool      *pgxpool.Pool
		backend   *gotruetest.Server
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("gatehouse"),
			tcpostgres.WithUsername("gatehouse"),
			tcpostgres.WithPassword("gatehouse"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		Expect(err).NotTo(HaveOccurred())
		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		m, err := store.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Up()).To(Succeed())
		Expect(m.Close()).To(Succeed())

		pool, err = store.ConnectPool(ctx, dsn, store.DefaultRetry)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	BeforeEach(func() {
		_, err := pool.Exec(ctx, "TRUNCATE browser_sessions")
		Expect(err).NotTo(HaveOccurred())
		backend = gotruetest.NewServer()
		backend.AddUser("user@example.com", "Abcdef12")
	})

	AfterEach(func() {
		backend.Close()
	})

	sealedStore := func() session.Store {
		key, err := session.ParseSealKey(sealKey)
		Expect(err).NotTo(HaveOccurred())
		sealed, err := session.NewSealedStore(postgres.New(pool), key)
		Expect(err).NotTo(HaveOccurred())
		return sealed
	}

	It("restores a signed-in browser after a restart", func() {
		first := newStack(sealedStore(), backend)
		b := newBrowser(first.http.URL)
		p := b.post("/signin", credentials("user@example.com", "Abcdef12"))
		Expect(p.status).To(Equal(http.StatusSeeOther))
		first.close()

		var stored string
		Expect(pool.QueryRow(ctx, "SELECT access_token FROM browser_sessions").Scan(&stored)).To(Succeed())
		Expect(stored).To(HavePrefix("v1."))

		second := newStack(sealedStore(), backend)
		defer second.close()
		b.moveTo(second.http.URL)

		p = b.get("/dashboard")
		Expect(p.status).To(Equal(http.StatusOK))
		Expect(p.body).To(ContainSubstring("user@example.com"))
	})

	It("drops a stored session the backend no longer accepts", func() {
		first := newStack(sealedStore(), backend)
		b := newBrowser(first.http.URL)
		b.post("/signin", credentials("user@example.com", "Abcdef12"))
		backend.Revoke(providerFor(first, b).Session().AccessToken)
		first.close()

		second := newStack(sealedStore(), backend)
		defer second.close()
		b.moveTo(second.http.URL)

		p := b.get("/dashboard")
		Expect(p.status).To(Equal(http.StatusFound))
		Expect(p.location).To(Equal("/signin"))

		var n int
		Expect(pool.QueryRow(ctx, "SELECT count(*) FROM browser_sessions").Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})

	It("removes the stored row on sign-out", func() {
		s := newStack(sealedStore(), backend)
		defer s.close()
		b := newBrowser(s.http.URL)
		b.post("/signin", credentials("user@example.com", "Abcdef12"))
		b.post("/signout", nil)

		var n int
		Expect(pool.QueryRow(ctx, "SELECT count(*) FROM browser_sessions").Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})

	It("purges records past retention on sweep", func() {
		s := newStack(postgres.New(pool), backend)
		defer s.close()
		_, err := pool.Exec(ctx, `INSERT INTO browser_sessions
			(id, user_id, email, access_token, refresh_token, expires_at, created_at, updated_at)
			VALUES ('01J0000000000000000000000A', 'u', 'old@example.com', 'a', 'r',
			        now() - interval '30 days', now() - interval '31 days', now() - interval '30 days')`)
		Expect(err).NotTo(HaveOccurred())

		res := s.registry.Sweep(ctx)
		Expect(res.Purged).To(Equal(int64(1)))
	})
})
