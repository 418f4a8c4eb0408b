// Command saldo-admin runs maintenance tasks against the saldo database:
// schema migrations, bootstrapping staff accounts and purging sessions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"saldo/internal/cli"
	"saldo/internal/config"
	applog "saldo/internal/log"
	"saldo/internal/storage"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	dbPath   string
	logLevel string
	logger   *applog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "saldo-admin",
		Short: "Administrative tasks for the saldo service",
		Long: `saldo-admin manages the saldo database outside the HTTP API.

Use it to apply schema migrations, create the first staff account and
remove expired sessions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			if !cmd.Flags().Changed("db") {
				opts.dbPath = config.Load().SQLiteDBPath
			}
			if !cmd.Flags().Changed("log-level") {
				if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
					opts.logLevel = lvl
				}
			}
			opts.logger = cli.SetupLogger(opts.logLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (default: $SQLITE_DB_PATH or ./data/saldo.db)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(migrateCmd(opts))
	cmd.AddCommand(usersCmd(opts))
	cmd.AddCommand(sessionsCmd(opts))

	return cmd
}

// openRepository opens the database, applying pending migrations.
func (o *rootOptions) openRepository() (*storage.SQLiteRepository, error) {
	return cli.InitSQLite(o.logger, o.dbPath)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
