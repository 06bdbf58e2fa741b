package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/StefanPetk0vic/Locus/internal/app"
	"github.com/StefanPetk0vic/Locus/internal/auth"
	"github.com/StefanPetk0vic/Locus/internal/config"
	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/logger"
	"github.com/StefanPetk0vic/Locus/internal/repository/postgres"
)

var Version = "dev"

func main() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "locusctl",
		Short:         "Operator tooling for the Locus ride service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd(cfg))
	root.AddCommand(tokenCmd(cfg))

	return root
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			dbCfg := cfg.Database
			dbCfg.AutoMigrate = false
			db, err := app.NewDatabase(ctx, dbCfg, nil, logger.Discard())
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall migration timeout")
	return cmd
}

func tokenCmd(cfg *config.Config) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token [account-id]",
		Short: "Issue a bearer token for an account",
		Long: `Issue a signed bearer token for local testing.

Examples:
  locusctl token 3f0c... --role rider
  locusctl token 9a41... --role driver --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return issueToken(cmd.OutOrStdout(), cfg.Auth.JWTSecret, args[0], role, ttl)
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "rider", "account role (rider, driver)")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.Auth.TokenTTL, "token lifetime")
	return cmd
}

func issueToken(out io.Writer, secret, accountID, role string, ttl time.Duration) error {
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	r := domain.Role(strings.ToUpper(role))
	if r != domain.RoleRider && r != domain.RoleDriver {
		return fmt.Errorf("unknown role %q", role)
	}

	token, err := auth.NewManager(secret, ttl).Issue(accountID, r)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
