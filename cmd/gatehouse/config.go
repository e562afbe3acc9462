// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(newConfigSchemaCmd(), newConfigValidateCmd(), newConfigShowCmd(), newConfigInitCmd())
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for config files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Schema()
			if err != nil {
				return oops.With("operation", "generate schema").Wrap(err)
			}
			cmd.Println(string(data))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a config file against the schema and the runtime rules",
		Long: `Check FILE (or --config, or the default config file) against the JSON
Schema, then load it with flags and environment applied and run the same
checks serve does.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				p, err := xdg.DefaultConfigFile()
				if err != nil {
					return oops.With("operation", "resolve config file").Wrap(err)
				}
				path = p
			}

			data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
			if err != nil {
				return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
			}
			if err := config.ValidateFile(data); err != nil {
				return oops.With("file", path).Wrap(err)
			}

			cfg, err := config.Load(config.LoadOptions{File: path, Flags: cmd.Flags()})
			if err != nil {
				return oops.With("operation", "load config").Wrap(err)
			}
			if err := cfg.Validate(); err != nil {
				return oops.With("file", path).Wrap(err)
			}
			cmd.Printf("%s: ok\n", path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return oops.With("operation", "load config").Wrap(err)
			}
			out, err := cfg.Redacted().YAML()
			if err != nil {
				return oops.With("operation", "render config").Wrap(err)
			}
			cmd.Print(string(out))
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				p, err := xdg.DefaultConfigFile()
				if err != nil {
					return oops.With("operation", "resolve config file").Wrap(err)
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !force {
				return oops.Code("CONFIG_EXISTS").With("file", path).Errorf("%s already exists; use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
			}

			out, err := config.Default().YAML()
			if err != nil {
				return oops.With("operation", "render config").Wrap(err)
			}
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return oops.With("operation", "create config dir").Wrap(err)
			}
			if err := os.WriteFile(path, out, 0o600); err != nil {
				return oops.Code("CONFIG_WRITE_FAILED").With("file", path).Wrap(err)
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
