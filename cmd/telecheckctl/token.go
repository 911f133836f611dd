package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telecheck/telecheck-api/internal/auth"
	"github.com/telecheck/telecheck-api/internal/config"
	"github.com/telecheck/telecheck-api/internal/domain"
)

type tokenFlags struct {
	subject string
	email   string
	role    string
	ttl     time.Duration
	exp     int64
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue bearer tokens for testing and support",
	}
	cmd.AddCommand(newTokenSignCmd(), newTokenMockCmd())
	return cmd
}

func newTokenSignCmd() *cobra.Command {
	var flags tokenFlags
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print an HS256 token signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.subject == "" {
				return errors.New("--sub is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
			ttl := flags.ttl
			if ttl <= 0 {
				ttl = cfg.Auth.AccessTokenTTL()
			}
			token, exp, err := tokens.GenerateTokenWithTTL(flags.subject, flags.email, domain.Role(flags.role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.subject, "sub", "", "subject (user id)")
	cmd.Flags().StringVar(&flags.email, "email", "", "email claim")
	cmd.Flags().StringVar(&flags.role, "role", string(domain.RolePatient), "role claim")
	cmd.Flags().DurationVar(&flags.ttl, "ttl", 0, "token lifetime (defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	return cmd
}

func newTokenMockCmd() *cobra.Command {
	var flags tokenFlags
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Print an unsigned demo envelope (rejected in strict production)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.subject == "" && flags.email == "" {
				return errors.New("--sub or --email is required")
			}
			if flags.role == "" {
				return errors.New("--role is required")
			}
			env := auth.MockEnvelope{
				ID:    flags.subject,
				Email: flags.email,
				Role:  domain.Role(flags.role),
			}
			if flags.exp != 0 {
				env.Exp = &flags.exp
			}
			token, err := auth.EncodeMockEnvelope(env)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.subject, "sub", "", "id field")
	cmd.Flags().StringVar(&flags.email, "email", "", "email field")
	cmd.Flags().StringVar(&flags.role, "role", string(domain.RoleAdmin), "role field")
	cmd.Flags().Int64Var(&flags.exp, "exp", 0, "expiry as unix seconds or milliseconds")
	return cmd
}
