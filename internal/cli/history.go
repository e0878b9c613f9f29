package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient/transport"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// HistoryOptions holds flags for the history command
type HistoryOptions struct {
	*RootOptions
	Limit        int
	Room         string
	Conversation string
}

// NewHistoryCommand creates the history command
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List ended calls, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of calls (0 = service default)")
	cmd.Flags().StringVar(&opts.Room, "room", "", "only calls in this room")
	cmd.Flags().StringVar(&opts.Conversation, "conversation", "", "only calls in this conversation")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	if err := opts.requireToken(); err != nil {
		return err
	}
	roomID, err := optionalUUID("room", opts.Room)
	if err != nil {
		return err
	}
	conversationID, err := optionalUUID("conversation", opts.Conversation)
	if err != nil {
		return err
	}

	backend := transport.NewHTTPBackend(opts.Server, opts.Token, transport.WithLogger(opts.logger()))
	calls, err := backend.GetCallHistory(cmd.Context(), roomID, conversationID, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot load history", err)
	}

	out := newPrinter(opts.Format, cmd.OutOrStdout())
	return out.result(map[string]any{"calls": calls}, func(w io.Writer) {
		writeHistory(w, calls)
	})
}

func writeHistory(w io.Writer, calls []*domain.CallRecord) {
	if len(calls) == 0 {
		fmt.Fprintln(w, "no calls")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALL ID\tTYPE\tSTARTED\tDURATION\tPARTICIPANTS")
	for _, rec := range calls {
		call := rec.Call
		duration := "-"
		if call.EndedAt != nil {
			duration = call.EndedAt.Sub(call.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			call.CallID,
			call.Type,
			call.StartedAt.Local().Format(time.DateTime),
			duration,
			participantList(rec.Participants))
	}
	_ = tw.Flush()
}

func participantList(participants []*domain.ParticipantView) string {
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		name := p.UserID.String()[:8]
		if p.User != nil && p.User.Username != "" {
			name = p.User.Username
		}
		names = append(names, fmt.Sprintf("%s(%s)", name, p.Status))
	}
	return strings.Join(names, ", ")
}
