package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"devsync/internal/auth"
)

type TokenOptions struct {
	*RootOptions
	UserID string
	Name   string
	TTL    time.Duration
}

// NewTokenCommand mints development tokens signed with the configured secret.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long: `Mint a signed access token for local testing.

Production tokens come from the login service; this only exists so a
developer can exercise a coordinator that has auth.jwt_secret set.

Example:
  DEVSYNC_JWT_SECRET=dev devsync token --user u1 --name Alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := opts.Config.Auth.JWTSecret
			if secret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			ttl := opts.TTL
			if ttl == 0 {
				ttl = opts.Config.Auth.TokenTTL
			}
			token, err := auth.Sign(secret, opts.UserID, opts.Name, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
