package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	settingStore "workshopreg/internal/adapters/storage/setting"
	"workshopreg/internal/application/orchestrators"
	"workshopreg/internal/config"
	"workshopreg/internal/domain/workshop"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(*cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.DBPath)
			return nil
		},
	}
}

// newHashPasswordCmd prints a bcrypt hash for the registry's password_hash field.
// The password comes from the argument or, if absent, the first line of stdin.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for a workshop operator password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := workshop.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// newRegistrationCmd flips or reports the public registration switch.
func newRegistrationCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:       "registration open|close|status",
		Short:     "Open, close or inspect public registration",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"open", "close", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(*cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			settings := settingStore.NewSQLiteStore(db)
			ctx := cmd.Context()

			switch args[0] {
			case "open":
				if err := orchestrators.ExecuteSetRegistrationOpen(ctx, true, settings); err != nil {
					return err
				}
			case "close":
				if err := orchestrators.ExecuteSetRegistrationOpen(ctx, false, settings); err != nil {
					return err
				}
			}

			open, err := orchestrators.IsRegistrationOpen(ctx, settings)
			if err != nil {
				return err
			}
			state := "closed"
			if open {
				state = "open"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registration is %s\n", state)
			return nil
		},
	}
}
