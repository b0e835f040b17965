// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pinvent/pinvent/internal/config"
	"github.com/pinvent/pinvent/internal/store"
)

// Migrator is the schema migration API the migrate subcommands drive.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Status() (applied, pending []store.Migration, err error)
	Close() error
}

// migratorFactory opens the migrator; tests replace it.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back, or inspect the embedded PostgreSQL schema migrations.
Only database.url is read from the configuration.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply (N > 0) or roll back (N < 0) N migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			n, err := parseSteps(args[0])
			if err != nil {
				return err
			}
			if err := m.Steps(n); err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Record VERSION as applied and clear the dirty flag. Use it after
repairing a migration that failed partway.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("Forced schema version to %d\n", v)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			return printVersion(cmd, m)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			applied, pending, err := m.Status()
			if err != nil {
				return err
			}
			for _, mig := range applied {
				cmd.Printf("  [applied] %s\n", mig.Name)
			}
			for _, mig := range pending {
				cmd.Printf("  [pending] %s\n", mig.Name)
			}
			cmd.Printf("%d applied, %d pending\n", len(applied), len(pending))
			return nil
		}),
	})

	return cmd
}

// withMigrator loads the database config, opens a migrator for the duration
// of fn, and closes it afterwards.
func withMigrator(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		db, err := config.LoadDatabase(configPath(), cmd.Flags())
		if err != nil {
			return err
		}
		m, err := migratorFactory(db.URL)
		if err != nil {
			return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
		}
		defer func() {
			if cerr := m.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd, m, args)
	}
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("Schema version %d (dirty)\n", v)
		return nil
	}
	cmd.Printf("Schema version %d\n", v)
	return nil
}

// parseForceVersion reads a leading integer from s. Trailing characters are
// ignored.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer, got %q", s)
	}
	return v, nil
}

func parseSteps(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err != nil || n == 0 {
		return 0, oops.Code("INVALID_STEPS").With("input", s).Errorf("steps must be a non-zero integer, got %q", s)
	}
	return n, nil
}
