// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"errors"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session database schema",
		Long: `Apply, roll back or inspect the PostgreSQL migrations for the session
store. The database URL comes from sessions.database_url or DATABASE_URL.`,
	}

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if all {
					cmd.Println("Rolling back all migrations...")
					return m.Down()
				}
				cmd.Println("Rolling back one migration...")
				return m.Steps(-1)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, deps, func(m Migrator) error {
					cmd.Println("Running migrations...")
					return m.Up()
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, deps, func(m Migrator) error {
					return printVersion(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied and clear the dirty flag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("INVALID_VERSION").With("version", args[0]).Wrapf(err, "version must be an integer")
				}
				return withMigrator(cmd, deps, func(m Migrator) error {
					cmd.Printf("Forcing schema version %d...\n", v)
					return m.Force(v)
				})
			},
		},
	)
	return cmd
}

func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(Migrator) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.With("operation", "load config").Wrap(err)
	}
	if cfg.Sessions.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("sessions.database_url or DATABASE_URL is required")
	}

	m, err := deps.MigratorFactory(cfg.Sessions.DatabaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := fn(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			cmd.Println("No change")
			return nil
		}
		return oops.Code("MIGRATION_FAILED").With("operation", cmd.Name()).Wrap(err)
	}
	if cmd.Name() != "version" {
		cmd.Println("Done")
	}
	return nil
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	state := ""
	if dirty {
		state = " (dirty)"
	}
	if v == 0 {
		cmd.Println("Schema version: none")
	} else {
		name, nameErr := store.MigrationName(v)
		if nameErr != nil {
			name = "unknown"
		}
		cmd.Printf("Schema version: %d %s%s\n", v, name, state)
	}

	pending, err := m.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	cmd.Printf("Pending: %d\n", len(pending))
	for _, p := range pending {
		name, nameErr := store.MigrationName(p)
		if nameErr != nil {
			name = "unknown"
		}
		cmd.Printf("  %d %s\n", p, name)
	}
	return nil
}
