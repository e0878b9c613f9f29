// Package cli implements callctl, a terminal client for the call service.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/env"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Server  string
	Token   string
	Format  string // "text" | "json" | "yaml"
	Verbose bool
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the callctl root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "callctl",
		Short: "Place, answer and inspect calls from the terminal",
		Long: `callctl drives the call service as a signaling-only client.

It follows the same state machine as a graphical client (calling, ringing,
connected, ended) but carries no audio or video.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", env.GetString("CALL_SERVER", "http://localhost:8084"), "call service base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", env.GetString("CALL_TOKEN", ""), "bearer token (defaults to $CALL_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log transport activity to stderr")

	cmd.AddCommand(NewDialCommand(opts))
	cmd.AddCommand(NewAnswerCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) requireToken() error {
	if o.Token == "" {
		return NewExitError(ExitCommandError, "a token is required (--token or $CALL_TOKEN)")
	}
	return nil
}

func (o *RootOptions) logger() *zap.Logger {
	if !o.Verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
