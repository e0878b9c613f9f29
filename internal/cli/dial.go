package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// DialOptions holds flags for the dial command
type DialOptions struct {
	*RootOptions
	To           []string
	Video        bool
	Room         string
	Conversation string
	RingTimeout  time.Duration
	Duration     time.Duration
}

// NewDialCommand creates the dial command
func NewDialCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Place a call and stay on it",
		Long: `Place a call to one or more users and stay connected until the call
ends, --duration elapses or the command is interrupted.

Every call belongs to exactly one room or conversation.

Examples:
  callctl dial --to 7f1c... --room 3d4e...
  callctl dial --to 7f1c... --to 9a02... --video --room 3d4e...
  callctl dial --to 7f1c... --conversation 5b60... --duration 30s --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.To, "to", nil, "user id to invite (repeatable)")
	cmd.Flags().BoolVar(&opts.Video, "video", false, "start a video call")
	cmd.Flags().StringVar(&opts.Room, "room", "", "room id the call belongs to")
	cmd.Flags().StringVar(&opts.Conversation, "conversation", "", "conversation id the call belongs to")
	cmd.Flags().DurationVar(&opts.RingTimeout, "ring-timeout", 45*time.Second, "hang up if nobody answers in time")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "hang up after this long connected (0 = stay on)")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runDial(cmd *cobra.Command, opts *DialOptions) error {
	req, err := opts.request()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := newPrinter(opts.Format, cmd.OutOrStdout())
	s, err := openSession(ctx, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.o.StartCall(ctx, req); err != nil {
		return WrapExitError(ExitFailure, "call not started", err)
	}

	ringCtx, cancel := context.WithTimeout(ctx, opts.RingTimeout)
	defer cancel()
	state, err := s.waitFor(ringCtx, callclient.StateConnected, callclient.StateEnded, callclient.StateIdle)
	if err != nil {
		_ = s.hangup()
		if errors.Is(err, context.DeadlineExceeded) {
			return NewExitError(ExitFailure, "no answer")
		}
		return nil
	}
	if state != callclient.StateConnected {
		return NewExitError(ExitFailure, "call ended before it connected")
	}

	return s.stayConnected(ctx, opts.Duration)
}

func (o *DialOptions) request() (*callclient.CallRequest, error) {
	req := &callclient.CallRequest{Type: domain.CallTypeAudio}
	if o.Video {
		req.Type = domain.CallTypeVideo
	}

	for _, raw := range o.To {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid user id %q", raw))
		}
		req.ParticipantIDs = append(req.ParticipantIDs, id)
	}
	if len(req.ParticipantIDs) == 0 {
		return nil, NewExitError(ExitCommandError, "at least one --to is required")
	}

	var err error
	if req.RoomID, err = optionalUUID("room", o.Room); err != nil {
		return nil, err
	}
	if req.ConversationID, err = optionalUUID("conversation", o.Conversation); err != nil {
		return nil, err
	}
	if (req.RoomID == nil) == (req.ConversationID == nil) {
		return nil, NewExitError(ExitCommandError, "exactly one of --room or --conversation is required")
	}
	return req, nil
}

func optionalUUID(name, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", name, raw))
	}
	return &id, nil
}
