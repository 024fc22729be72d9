// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/store"
)

// migrator is the part of *store.Migrator the CLI drives.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() ([]store.MigrationStatus, error)
	Close() error
}

type migrateDeps struct {
	NewMigrator func(databaseURL string) (migrator, error)
}

func (d *migrateDeps) newMigrator() func(string) (migrator, error) {
	if d == nil || d.NewMigrator == nil {
		return newStoreMigrator
	}
	return d.NewMigrator
}

func newStoreMigrator(databaseURL string) (migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		//nolint:wrapcheck // already coded
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *migrateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Manage the PostgreSQL schema. Without a subcommand, all pending
migrations are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	}
	config.BindDatabaseFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	})

	var confirmed bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (destroys all account data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("MIGRATE_CONFIRM_REQUIRED").Errorf("down drops every table; pass --yes to confirm")
			}
			return withMigrator(cmd, deps, func(m migrator) error {
				if err := m.Down(); err != nil {
					//nolint:wrapcheck // already coded
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirmed, "yes", false, "confirm rolling back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations; a negative N rolls back (pass it after --)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_STEPS").With("value", args[0]).Wrap(err)
			}
			return withMigrator(cmd, deps, func(m migrator) error {
				if err := m.Steps(n); err != nil {
					//nolint:wrapcheck // already coded
					return err
				}
				cmd.Printf("Migrated %d step(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					//nolint:wrapcheck // already coded
					return err
				}
				if dirty {
					cmd.Printf("%d (dirty)\n", v)
					return nil
				}
				cmd.Println(v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it, clearing a dirty state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m migrator) error {
				if err := m.Force(v); err != nil {
					//nolint:wrapcheck // already coded
					return err
				}
				cmd.Printf("Forced version %d\n", v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m migrator) error {
				status, err := m.Status()
				if err != nil {
					//nolint:wrapcheck // already coded
					return err
				}
				for _, s := range status {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					cmd.Printf("%06d  %-24s %s\n", s.Version, s.Name, state)
				}
				return nil
			})
		},
	})

	return cmd
}

func runMigrateUp(cmd *cobra.Command, deps *migrateDeps) error {
	return withMigrator(cmd, deps, func(m migrator) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			//nolint:wrapcheck // already coded
			return err
		}
		cmd.Println("Migrations completed successfully")
		return nil
	})
}

// withMigrator loads database settings, opens a migrator and closes it
// after fn returns.
func withMigrator(cmd *cobra.Command, deps *migrateDeps, fn func(m migrator) error) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}

	m, err := deps.newMigrator()(cfg.Database.DSN())
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	return fn(m)
}

// applyMigrations runs Up once for the serve --migrate flag.
func applyMigrations(databaseURL string, newMigrator func(string) (migrator, error)) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return nil
}

func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("value", s).Wrap(err)
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("value", s).Errorf("version must be non-negative")
	}
	return v, nil
}
