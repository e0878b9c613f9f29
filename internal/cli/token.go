package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/env"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/jwt"
)

// TokenOptions holds flags for the token command
type TokenOptions struct {
	*RootOptions
	User     string
	Username string
	Secret   string
	TTL      time.Duration
}

// NewTokenCommand creates the token command
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long: `Mint an access token signed with the service's JWT secret. Meant for
local development; production tokens come from the identity service.

Examples:
  export CALL_TOKEN=$(callctl token --user $(uuidgen) --username alice)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id the token is issued for")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username claim")
	cmd.Flags().StringVar(&opts.Secret, "secret", env.GetStringFromFile("JWT_SECRET", ""), "signing secret (defaults to $JWT_SECRET)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runToken(cmd *cobra.Command, opts *TokenOptions) error {
	userID, err := uuid.Parse(opts.User)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid user id %q", opts.User))
	}
	if opts.Secret == "" {
		return NewExitError(ExitCommandError, "a signing secret is required (--secret or $JWT_SECRET)")
	}

	token, err := jwt.NewJWTManager(opts.Secret, opts.TTL).GenerateAccessToken(userID, opts.Username)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot sign token", err)
	}

	out := newPrinter(opts.Format, cmd.OutOrStdout())
	return out.result(map[string]any{"token": token, "user_id": userID, "expires_in": opts.TTL.String()}, func(w io.Writer) {
		fmt.Fprintln(w, token)
	})
}
