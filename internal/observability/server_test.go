// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", "test", opts...)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("failed to GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	requests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatehouse_test_requests_total",
		Help: "Test counter",
	})
	server := startServer(t, WithCollectors(func(reg prometheus.Registerer) {
		reg.MustRegister(requests)
	}))
	requests.Inc()

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	for _, want := range []string{"# HELP", "# TYPE", "go_", "process_", `gatehouse_build_info{version="test"} 1`, "gatehouse_test_requests_total 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestServer_LivenessReturns200(t *testing.T) {
	server := startServer(t)

	status, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestServer_ReadinessWithoutChecks(t *testing.T) {
	server := startServer(t)

	status, body := get(t, "http://"+server.Addr()+"/healthz/readiness")
	if status != http.StatusOK {
		t.Errorf("expected status 200 with no checks, got %d", status)
	}
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestServer_ReadinessListsFailingChecks(t *testing.T) {
	server := NewServer("127.0.0.1:0", "test")
	server.AddCheck("store", func(context.Context) error { return errors.New("connection refused") })
	server.AddCheck("web", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "not ready\n") {
		t.Errorf("expected body to start with 'not ready', got %q", body)
	}
	if !strings.Contains(body, "store: connection refused") {
		t.Errorf("expected failing check in body, got %q", body)
	}
	if strings.Contains(body, "web:") {
		t.Errorf("passing check should not be listed, got %q", body)
	}
}

func TestServer_AddCheckReplaces(t *testing.T) {
	server := NewServer("127.0.0.1:0", "test")
	server.AddCheck("store", func(context.Context) error { return errors.New("down") })
	server.AddCheck("store", func(context.Context) error { return nil })

	if failed := server.Ready(context.Background()); len(failed) != 0 {
		t.Errorf("expected no failures, got %v", failed)
	}
}

func TestServer_ReadinessChecksGetDeadline(t *testing.T) {
	server := NewServer("127.0.0.1:0", "test")
	server.AddCheck("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on double start, got nil")
	}
}

func TestServer_StartFailsOnBusyAddress(t *testing.T) {
	first := startServer(t)

	second := NewServer(first.Addr(), "test")
	if _, err := second.Start(); err == nil {
		t.Fatal("expected listen error")
	}
	// A failed start leaves the server startable.
	if second.running.Load() {
		t.Error("server should not be marked running after a failed start")
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", "test")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Errorf("stop without start should not error: %v", err)
	}
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", "test")

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	// Closing the listener under Serve makes it fail.
	if server.listener != nil {
		_ = server.listener.Close()
	}

	select {
	case serveErr := <-errCh:
		if serveErr == nil {
			t.Error("expected an error from the error channel after closing listener")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", "test")

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	select {
	case serveErr, ok := <-errCh:
		if ok {
			t.Errorf("expected closed channel, got error: %v", serveErr)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}
