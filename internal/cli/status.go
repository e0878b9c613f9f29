package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient/transport"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// NewStatusCommand creates the status command
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the live call and any unanswered ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	if err := opts.requireToken(); err != nil {
		return err
	}

	backend := transport.NewHTTPBackend(opts.Server, opts.Token, transport.WithLogger(opts.logger()))
	active, err := backend.GetActiveCall(cmd.Context(), nil, nil)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot load active call", err)
	}
	incoming, err := backend.GetIncomingCall(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "cannot load incoming call", err)
	}

	out := newPrinter(opts.Format, cmd.OutOrStdout())
	snapshot := &domain.CallSnapshot{Active: active, Incoming: incoming}
	return out.result(snapshot, func(w io.Writer) {
		writeStatus(w, snapshot)
	})
}

func writeStatus(w io.Writer, snapshot *domain.CallSnapshot) {
	if a := snapshot.Active; a != nil {
		fmt.Fprintf(w, "active:   %s %s call %s\n", a.Call.Status, a.Call.Type, a.Call.CallID)
		fmt.Fprintf(w, "          %s\n", participantList(a.Participants))
	} else {
		fmt.Fprintln(w, "active:   none")
	}
	if in := snapshot.Incoming; in != nil {
		fields := incomingFields(in)
		fmt.Fprintf(w, "incoming: %s call %s from %s\n", in.Call.Type, in.Call.CallID, fields["from"])
	} else {
		fmt.Fprintln(w, "incoming: none")
	}
}
