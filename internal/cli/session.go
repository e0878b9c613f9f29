package cli

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient/transport"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/jwt"
)

// hangupTimeout bounds the leave request sent when a command stops
const hangupTimeout = 5 * time.Second

// session is one signed-in orchestrator fed by the events stream
type session struct {
	userID  uuid.UUID
	o       *callclient.Orchestrator
	backend *transport.HTTPBackend
	out     *printer

	states chan callclient.State
	cancel context.CancelFunc
	done   chan struct{}
}

func openSession(ctx context.Context, opts *RootOptions, out *printer) (*session, error) {
	if err := opts.requireToken(); err != nil {
		return nil, err
	}
	claims, err := jwt.UnverifiedClaims(opts.Token)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "unreadable token", err)
	}

	log := opts.logger()
	s := &session{
		userID:  claims.UserID,
		backend: transport.NewHTTPBackend(opts.Server, opts.Token, transport.WithLogger(log)),
		out:     out,
		states:  make(chan callclient.State, 32),
		done:    make(chan struct{}),
	}

	o, err := callclient.New(callclient.Config{
		UserID:  claims.UserID,
		Backend: s.backend,
		Media:   callclient.NullMediaProvider{},
		Logger:  log,
		Callbacks: callclient.Callbacks{
			OnCallStateChange: s.onState,
			OnError: func(err error) {
				out.event("error", map[string]any{"message": err.Error()})
			},
			OnIncomingCall: func(in *domain.IncomingCall) {
				out.event("incoming", incomingFields(in))
			},
		},
	})
	if err != nil {
		return nil, err
	}
	s.o = o

	feedCtx, cancel := context.WithCancel(ctx)
	feed, err := transport.NewFeed(opts.Server, opts.Token, transport.WithFeedLogger(log)).Subscribe(feedCtx)
	if err != nil {
		cancel()
		o.Close()
		return nil, WrapExitError(ExitFailure, "cannot subscribe to call events", err)
	}
	s.cancel = cancel

	go func() {
		defer close(s.done)
		if err := o.Run(feedCtx, feed); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Event loop stopped", zap.Error(err))
		}
	}()
	return s, nil
}

func (s *session) onState(state callclient.State) {
	fields := map[string]any{"state": string(state)}
	if id := s.o.CallID(); id != uuid.Nil {
		fields["call_id"] = id.String()
	}
	s.out.event("state", fields)

	select {
	case s.states <- state:
	default:
	}
}

// waitFor blocks until the orchestrator enters one of states. It returns
// the state reached, or ctx's error.
func (s *session) waitFor(ctx context.Context, states ...callclient.State) (callclient.State, error) {
	if current := s.o.State(); slices.Contains(states, current) {
		return current, nil
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.done:
			return "", errors.New("call events stream closed")
		case state := <-s.states:
			if slices.Contains(states, state) {
				return state, nil
			}
		}
	}
}

// stayConnected keeps the call up until it ends, duration elapses (if set)
// or ctx is done, then hangs up if still connected
func (s *session) stayConnected(ctx context.Context, duration time.Duration) error {
	waitCtx := ctx
	if duration > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if _, err := s.waitFor(waitCtx, callclient.StateEnded, callclient.StateIdle); err == nil {
		return nil
	}
	return s.hangup()
}

// hangup leaves the tracked call with a fresh deadline so it still runs
// after the command's context was cancelled
func (s *session) hangup() error {
	if s.o.CallID() == uuid.Nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), hangupTimeout)
	defer cancel()
	return s.o.EndCall(ctx)
}

func (s *session) Close() {
	s.cancel()
	<-s.done
	s.o.Close()
}

func incomingFields(in *domain.IncomingCall) map[string]any {
	fields := map[string]any{
		"call_id": in.Call.CallID.String(),
		"type":    string(in.Call.Type),
		"from":    in.Call.InitiatorID.String(),
	}
	if in.Initiator != nil && in.Initiator.Username != "" {
		fields["from"] = in.Initiator.Username
	}
	return fields
}
