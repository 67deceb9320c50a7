package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/formcheck/formcheck/internal/db"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "manage the catalogue schema",
	}

	open := func(cmd *cobra.Command) (*db.DB, error) {
		cfg, err := root.loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		return db.OpenDB(cfg.GetDatabasePath())
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.MigrateUp(db.MigrationsFS()); err != nil {
				return err
			}
			return printVersion(cmd, d)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.MigrateDown(db.MigrationsFS()); err != nil {
				return err
			}
			return printVersion(cmd, d)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "show the applied and latest schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()
			return printVersion(cmd, d)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "set the schema version without running migrations (recovers a dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			d, err := open(cmd)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.MigrateForce(db.MigrationsFS(), v); err != nil {
				return err
			}
			return printVersion(cmd, d)
		},
	})
	return cmd
}

func printVersion(cmd *cobra.Command, d *db.DB) error {
	v, dirty, err := d.MigrateVersion(db.MigrationsFS())
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion(db.MigrationsFS())
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d (%s)\n", v, latest, state)
	return nil
}
