package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telecheck/telecheck-api/internal/auth"
	"github.com/telecheck/telecheck-api/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect runtime configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate configuration and print the effective auth policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			printAuthPolicy(cmd.OutOrStdout(), cfg)
			return cfg.Validate()
		},
	})
	return cmd
}

func printAuthPolicy(w io.Writer, cfg *config.Config) {
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	chain := auth.DefaultValidatorChain(cfg.Auth, tokens)
	policy := auth.NewDemoPolicy(cfg.Auth)

	fmt.Fprintf(w, "env:                   %s\n", cfg.App.Env)
	fmt.Fprintf(w, "strict production:     %t\n", policy.StrictProduction)
	fmt.Fprintf(w, "validators:            %s\n", strings.Join(chain.Names(), ", "))
	fmt.Fprintf(w, "demo markers:          %s (present: %t)\n", strings.Join(cfg.Auth.DemoMarkers, ", "), policy.DemoMarkerPresent)
	fmt.Fprintf(w, "demo path prefixes:    %s\n", strings.Join(policy.PathPrefixes, ", "))
	fmt.Fprintf(w, "demo on missing token: %t\n", policy.OnMissingToken)
	fmt.Fprintf(w, "demo on invalid token: %t\n", policy.OnInvalidToken)
	fmt.Fprintf(w, "missing token granted: %t\n", policy.Decide("/", auth.ReasonMissingToken))
}
