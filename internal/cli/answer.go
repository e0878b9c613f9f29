package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient"
)

// AnswerOptions holds flags for the answer command
type AnswerOptions struct {
	*RootOptions
	Decline  bool
	Wait     time.Duration
	Duration time.Duration
}

// NewAnswerCommand creates the answer command
func NewAnswerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnswerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Wait for the next incoming call and answer or decline it",
		Long: `Wait for the next incoming call. By default it is answered and kept
up until it ends, --duration elapses or the command is interrupted.

Examples:
  callctl answer
  callctl answer --wait 1m --duration 30s
  callctl answer --decline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnswer(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Decline, "decline", false, "decline instead of answering")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 0, "give up if no call rings in time (0 = wait forever)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "hang up after this long connected (0 = stay on)")

	return cmd
}

func runAnswer(cmd *cobra.Command, opts *AnswerOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := newPrinter(opts.Format, cmd.OutOrStdout())
	s, err := openSession(ctx, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer s.Close()

	waitCtx := ctx
	if opts.Wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Wait)
		defer cancel()
	}
	if _, err := s.waitFor(waitCtx, callclient.StateRinging); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewExitError(ExitFailure, "no incoming call")
		}
		return nil
	}

	if opts.Decline {
		if err := s.o.Decline(ctx); err != nil {
			return WrapExitError(ExitFailure, "decline failed", err)
		}
		return nil
	}

	if err := s.o.AnswerCall(ctx); err != nil {
		return WrapExitError(ExitFailure, "answer failed", err)
	}
	return s.stayConnected(ctx, opts.Duration)
}
