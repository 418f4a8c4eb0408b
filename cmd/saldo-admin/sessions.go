package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"saldo/internal/identity"
)

func sessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage login sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			n, err := identity.NewService(repo, nil, identity.Options{}).SweepExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired session(s)\n", n)
			return nil
		},
	})

	return cmd
}
