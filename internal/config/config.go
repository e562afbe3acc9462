// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads Gatehouse configuration from defaults, a YAML file,
// command-line flags and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/gatehouse/gatehouse/internal/guard"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/session"
)

// Session store kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the full configuration.
type Config struct {
	Server    Server    `koanf:"server" yaml:"server"`
	Backend   Backend   `koanf:"backend" yaml:"backend"`
	Sessions  Sessions  `koanf:"sessions" yaml:"sessions"`
	Guard     Guard     `koanf:"guard" yaml:"guard"`
	Telemetry Telemetry `koanf:"telemetry" yaml:"telemetry"`
}

// Server configures the listeners and logging.
type Server struct {
	Addr          string `koanf:"addr" yaml:"addr" jsonschema:"description=View server listen address"`
	MetricsAddr   string `koanf:"metrics_addr" yaml:"metrics_addr" jsonschema:"description=Metrics and health listen address; empty disables"`
	LogFormat     string `koanf:"log_format" yaml:"log_format" jsonschema:"enum=json,enum=text"`
	LogLevel      string `koanf:"log_level" yaml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	SecureCookies bool   `koanf:"secure_cookies" yaml:"secure_cookies"`
}

// Backend configures the GoTrue auth backend.
type Backend struct {
	URL           string        `koanf:"url" yaml:"url" jsonschema:"format=uri"`
	APIKey        string        `koanf:"api_key" yaml:"api_key"`
	Timeout       time.Duration `koanf:"timeout" yaml:"timeout"`
	RefreshLeeway time.Duration `koanf:"refresh_leeway" yaml:"refresh_leeway"`
}

// Sessions configures session persistence and the sweeper.
type Sessions struct {
	Store         string        `koanf:"store" yaml:"store" jsonschema:"enum=memory,enum=postgres,enum=redis"`
	DatabaseURL   string        `koanf:"database_url" yaml:"database_url"`
	RedisAddr     string        `koanf:"redis_addr" yaml:"redis_addr"`
	RedisDB       int           `koanf:"redis_db" yaml:"redis_db" jsonschema:"minimum=0"`
	SealKey       string        `koanf:"seal_key" yaml:"seal_key" jsonschema:"description=64 hex characters; empty stores tokens unsealed"`
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
	IdleTTL       time.Duration `koanf:"idle_ttl" yaml:"idle_ttl"`
	Retention     time.Duration `koanf:"retention" yaml:"retention"`
}

// Guard lists the paths that need a signed-in session.
type Guard struct {
	Protected []string `koanf:"protected" yaml:"protected"`
}

// Telemetry configures trace export.
type Telemetry struct {
	OTLPEndpoint string `koanf:"otlp_endpoint" yaml:"otlp_endpoint" jsonschema:"description=OTLP/HTTP endpoint; empty disables export"`
	ServiceName  string `koanf:"service_name" yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:        ":8080",
			MetricsAddr: "127.0.0.1:9100",
			LogFormat:   "json",
			LogLevel:    "info",
		},
		Backend: Backend{
			Timeout:       10 * time.Second,
			RefreshLeeway: time.Minute,
		},
		Sessions: Sessions{
			Store:         StoreMemory,
			SweepInterval: session.DefaultSweepInterval,
			IdleTTL:       session.DefaultIdleTTL,
			Retention:     session.DefaultRetention,
		},
		Guard: Guard{
			Protected: append([]string(nil), guard.DefaultProtected...),
		},
		Telemetry: Telemetry{
			ServiceName: "gatehouse",
		},
	}
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var problems []error
	add := func(field, format string, args ...any) {
		problems = append(problems, fmt.Errorf("%s: "+format, append([]any{field}, args...)...))
	}

	if c.Server.Addr == "" {
		add("server.addr", "is required")
	}
	if c.Server.LogFormat != "json" && c.Server.LogFormat != "text" {
		add("server.log_format", "must be json or text, got %q", c.Server.LogFormat)
	}
	if _, err := logging.ParseLevel(c.Server.LogLevel); err != nil {
		add("server.log_level", "%v", err)
	}

	if c.Backend.URL == "" {
		add("backend.url", "is required")
	} else if u, err := url.Parse(c.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("backend.url", "must be an absolute http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.APIKey == "" {
		add("backend.api_key", "is required")
	}
	if c.Backend.Timeout <= 0 {
		add("backend.timeout", "must be positive")
	}
	if c.Backend.RefreshLeeway < 0 {
		add("backend.refresh_leeway", "must not be negative")
	}

	switch c.Sessions.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Sessions.DatabaseURL == "" {
			add("sessions.database_url", "is required for the postgres store")
		}
	case StoreRedis:
		if c.Sessions.RedisAddr == "" {
			add("sessions.redis_addr", "is required for the redis store")
		}
	default:
		add("sessions.store", "must be memory, postgres or redis, got %q", c.Sessions.Store)
	}
	if c.Sessions.RedisDB < 0 {
		add("sessions.redis_db", "must not be negative")
	}
	if c.Sessions.SealKey != "" {
		if _, err := session.ParseSealKey(c.Sessions.SealKey); err != nil {
			add("sessions.seal_key", "must be %d hex-encoded bytes", session.SealKeySize)
		}
	}
	for field, d := range map[string]time.Duration{
		"sessions.sweep_interval": c.Sessions.SweepInterval,
		"sessions.idle_ttl":       c.Sessions.IdleTTL,
		"sessions.retention":      c.Sessions.Retention,
	} {
		if d <= 0 {
			add(field, "must be positive")
		}
	}

	if _, err := guard.New(c.Guard.Protected...); err != nil {
		add("guard.protected", "%v", err)
	}

	if len(problems) == 0 {
		return nil
	}
	return oops.Code("CONFIG_INVALID").With("problems", len(problems)).Wrap(errors.Join(problems...))
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return logging.Redacted
	}
	c.Backend.APIKey = mask(c.Backend.APIKey)
	c.Sessions.SealKey = mask(c.Sessions.SealKey)
	if c.Sessions.DatabaseURL != "" {
		if u, err := url.Parse(c.Sessions.DatabaseURL); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
				c.Sessions.DatabaseURL = u.String()
			}
		}
	}
	c.Guard.Protected = append([]string(nil), c.Guard.Protected...)
	return c
}

// YAML renders c as a config file.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}

// ProtectedPatterns returns the trimmed, non-empty guard patterns.
func (c *Config) ProtectedPatterns() []string {
	out := make([]string, 0, len(c.Guard.Protected))
	for _, p := range c.Guard.Protected {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
