// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// EndpointStatus is the result of probing one health endpoint.
type EndpointStatus struct {
	Endpoint string   `json:"endpoint"`
	URL      string   `json:"url"`
	Healthy  bool     `json:"healthy"`
	Status   int      `json:"status,omitempty"`
	Details  []string `json:"details,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	addr       string
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running Gatehouse",
		Long: `Probe the liveness and readiness endpoints of a running Gatehouse on its
metrics address (server.metrics_addr unless --addr is given).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().StringVar(&cfg.addr, "addr", "", "metrics/health address to probe")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "per-request timeout")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	addr := cfg.addr
	if addr == "" {
		loaded, err := loadConfig(cmd)
		if err != nil {
			return oops.With("operation", "load config").Wrap(err)
		}
		addr = loaded.Server.MetricsAddr
	}
	if addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("no metrics address: set server.metrics_addr or --addr")
	}

	client := &http.Client{Timeout: cfg.timeout}
	statuses := []EndpointStatus{
		probe(cmd.Context(), client, "liveness", healthURL(addr, "/healthz/liveness")),
		probe(cmd.Context(), client, "readiness", healthURL(addr, "/healthz/readiness")),
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return oops.With("operation", "format status").Wrap(err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Print(formatStatusTable(statuses))
	}

	for _, s := range statuses {
		if !s.Healthy {
			return oops.Code("NOT_HEALTHY").With("endpoint", s.Endpoint).Errorf("%s check failed", s.Endpoint)
		}
	}
	return nil
}

// healthURL turns a listen address such as ":9100" into a URL.
func healthURL(addr, path string) string {
	host, port, err := net.SplitHostPort(addr)
	if err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	return "http://" + addr + path
}

func probe(ctx context.Context, client *http.Client, endpoint, url string) EndpointStatus {
	status := EndpointStatus{Endpoint: endpoint, URL: url}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		status.Error = fmt.Sprintf("failed to read response: %v", err)
		return status
	}
	status.Status = resp.StatusCode
	status.Healthy = resp.StatusCode == http.StatusOK
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if line = strings.TrimSpace(line); line != "" && line != "ok" && line != "not ready" {
			status.Details = append(status.Details, line)
		}
	}
	return status
}

func formatStatusTable(statuses []EndpointStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t------")
	for _, s := range statuses {
		state := "healthy"
		if !s.Healthy {
			state = "unhealthy"
		}
		detail := s.Error
		if detail == "" {
			detail = strings.Join(s.Details, "; ")
		}
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Endpoint, state, detail)
	}

	_ = w.Flush()
	return b.String()
}
