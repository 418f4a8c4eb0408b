package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"saldo/internal/storage"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Bring the database schema to the latest version.

The server also migrates on start-up; run this before deploying to
catch failures early. Use --status to print the current version only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
			dsn := storage.DSN(opts.dbPath)

			if !status {
				opts.logger.Info("Running database migrations", "path", opts.dbPath)
				if err := storage.RunMigrations(dsn); err != nil {
					return err
				}
			}

			version, dirty, err := storage.MigrationVersion(dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			if dirty {
				fmt.Fprintln(cmd.OutOrStdout(), "warning: the last migration did not complete (dirty)")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "show the current schema version without applying changes")
	return cmd
}
