package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dircrawl/internal/web/auth"
)

// NewTokenCommand creates the 'dircrawl token' command
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Sign a JWT for the HTTP API with the configured secret
(api.jwt_secret_file, or the DIRCRAWL_JWT_SECRET environment variable).

Roles: viewer reads jobs, history and health; operator can also trigger a run;
admin has every permission.`,
		Args: cobra.NoArgs,
		RunE: issueToken,
	}

	cmd.Flags().StringSlice("role", []string{auth.RoleViewer}, "Role to grant (repeatable)")
	cmd.Flags().String("subject", "dircrawl-cli", "Token subject")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (default api.token_ttl_hours)")

	return cmd
}

func issueToken(cmd *cobra.Command, _ []string) error {
	cfg, err := optionalConfig(cmd)
	if err != nil {
		return err
	}

	roles, _ := cmd.Flags().GetStringSlice("role")
	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = cfg.TokenTTL()
	}

	secret, err := auth.LoadSecret(cfg.API.JWTSecretFile, jwtSecretEnv)
	if err != nil {
		return &ConfigError{Err: err}
	}

	token, err := auth.NewJWTManager(secret, ttl).GenerateToken(subject, roles)
	if err != nil {
		return &ConfigError{Err: err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "Expires %s\n", time.Now().Add(ttl).UTC().Format(time.RFC3339))
	return nil
}
