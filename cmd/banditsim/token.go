package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeeve/banditlab/internal/auth"
	"github.com/freeeve/banditlab/internal/config"
)

var (
	tokenClient string
	tokenScopes []string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token",
	Long: `Mint a bearer token for the banditlab server, signed with JWT_SECRET
(the server's development secret when unset).

Examples:
  banditsim token --client dashboard
  banditsim token --client ci --scope runs:read --scope runs:write --ttl 1h`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenClient, "client", "", "Client name stored as the token subject")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{auth.ScopeRead}, "Granted scopes (runs:read, runs:write)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTTL, "Token lifetime")
	tokenCmd.MarkFlagRequired("client")
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := config.Load().JWTSecret
	for _, s := range tokenScopes {
		if s != auth.ScopeRead && s != auth.ScopeRun {
			return fmt.Errorf("unknown scope %q", s)
		}
	}
	token, err := auth.NewJWTManager(secret).GenerateToken(tokenClient, tokenTTL, tokenScopes...)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
