// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/xdg"
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"addr":           "server.addr",
	"metrics-addr":   "server.metrics_addr",
	"log-format":     "server.log_format",
	"log-level":      "server.log_level",
	"secure-cookies": "server.secure_cookies",
	"backend-url":    "backend.url",
	"session-store":  "sessions.store",
	"otlp-endpoint":  "telemetry.otlp_endpoint",
}

// RegisterFlags adds the overridable settings to fs. Defaults shown in help
// come from Default(); only flags the user sets take effect.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "view server listen address")
	fs.String("metrics-addr", d.Server.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Server.LogFormat, "log format (json or text)")
	fs.String("log-level", d.Server.LogLevel, "log level (debug, info, warn, error)")
	fs.Bool("secure-cookies", d.Server.SecureCookies, "mark session cookies Secure")
	fs.String("backend-url", d.Backend.URL, "auth backend base URL")
	fs.String("session-store", d.Sessions.Store, "session store (memory, postgres or redis)")
	fs.String("otlp-endpoint", d.Telemetry.OTLPEndpoint, "OTLP/HTTP trace endpoint (empty = disabled)")
}

// envOverrides are deployment values read from the environment.
type envOverrides struct {
	BackendURL    *string `env:"GATEHOUSE_BACKEND_URL"`
	BackendAPIKey *string `env:"GATEHOUSE_BACKEND_API_KEY"`
	DatabaseURL   *string `env:"DATABASE_URL"`
	RedisAddr     *string `env:"GATEHOUSE_REDIS_ADDR"`
	SealKey       *string `env:"GATEHOUSE_SEAL_KEY"`
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is the config file. Empty means the XDG default, if present.
	File string
	// Flags holds flags registered with RegisterFlags. Optional.
	Flags *pflag.FlagSet
	// Environ replaces the process environment. Nil reads os.Environ.
	Environ map[string]string
}

// Load builds a Config from defaults, the config file, flags and the
// environment. The result is not validated.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		p, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "resolve default config file")
		}
		path = p
	}
	if err := loadFile(k, path, explicit); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		fs := opts.Flags
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load flags")
		}
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrapf(err, "decode config")
	}

	if err := applyEnv(&cfg, opts.Environ); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrapf(err, "read config file")
	}
	if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrapf(err, "parse config file")
	}
	return nil
}

func applyEnv(cfg *Config, environ map[string]string) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "parse environment")
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Backend.URL, o.BackendURL)
	set(&cfg.Backend.APIKey, o.BackendAPIKey)
	set(&cfg.Sessions.DatabaseURL, o.DatabaseURL)
	set(&cfg.Sessions.RedisAddr, o.RedisAddr)
	set(&cfg.Sessions.SealKey, o.SealKey)
	return nil
}
