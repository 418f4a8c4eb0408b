package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"saldo/internal/access"
	"saldo/internal/core"
	"saldo/internal/identity"
	"saldo/internal/services"
	"saldo/internal/storage"
)

func usersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
		Long: `Create users and change their staff flag directly in the database.

Only staff can grant staff over the HTTP API, so the first staff account
has to be created here.`,
	}

	cmd.AddCommand(usersCreateCmd(opts))
	cmd.AddCommand(usersSetStaffCmd(opts))
	return cmd
}

func usersCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		email    string
		password string
		fullName string
		staff    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with credentials and a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			policy := access.NewPolicy(repo)
			profiles := services.NewProfileService(identity.NewService(repo, nil, identity.Options{}), policy, nil)

			patch := core.ProfilePatch{}
			if fullName != "" {
				patch.FullName = &fullName
			}
			if staff {
				patch.IsStaff = &staff
			}

			// The command acts with staff privileges so the staff flag is kept.
			operator := access.Scope{Kind: access.StaffScope}
			profile, err := profiles.Register(cmd.Context(), &operator, services.Registration{
				Email:    email,
				Password: password,
				Profile:  patch,
			})
			if err != nil {
				return fmt.Errorf("create user: %s", describe(err))
			}
			return printJSON(cmd, profile)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "password, 8 to 72 characters (required)")
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name")
	cmd.Flags().BoolVar(&staff, "staff", false, "grant staff privileges")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func usersSetStaffCmd(opts *rootOptions) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "set-staff <user-id|email>",
		Short: "Grant or revoke staff privileges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			userID, err := resolveUserID(cmd, repo, args[0])
			if err != nil {
				return err
			}
			profile, err := repo.SetStaff(cmd.Context(), userID, !revoke)
			if err != nil {
				return fmt.Errorf("set staff: %s", describe(err))
			}
			return printJSON(cmd, profile)
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove staff privileges instead of granting them")
	return cmd
}

// resolveUserID accepts either a user id or an email address.
func resolveUserID(cmd *cobra.Command, repo *storage.SQLiteRepository, ref string) (string, error) {
	if !strings.Contains(ref, "@") {
		return ref, nil
	}
	email, err := identity.NormalizeEmail(ref)
	if err != nil {
		return "", err
	}
	account, err := repo.GetAccountByEmail(cmd.Context(), email)
	if err != nil {
		return "", fmt.Errorf("find user %s: %s", email, describe(err))
	}
	return account.ID, nil
}

// describe returns the caller-facing message of known errors.
func describe(err error) string {
	if core.IsKnown(err) {
		return core.Message(err)
	}
	return err.Error()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
