// Package callclient drives one user's side of a call: local media, the
// client state machine and its reactions to server snapshots.
package callclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/constants"
)

// State is the client-side call state
type State string

const (
	StateIdle      State = "idle"
	StateCalling   State = "calling"
	StateRinging   State = "ringing"
	StateConnected State = "connected"
	StateEnded     State = "ended"
	StateDeclined  State = "declined"
)

// inCall reports whether the state holds a tracked call
func (s State) inCall() bool {
	return s == StateCalling || s == StateRinging || s == StateConnected
}

// canDial reports whether a new call may start: idle, or waiting out a
// terminal state
func (s State) canDial() bool {
	return s == StateIdle || s == StateEnded || s == StateDeclined
}

// Callbacks receive orchestrator output. They run outside the orchestrator's
// lock and may call its getters.
type Callbacks struct {
	OnCallStateChange func(state State)
	OnError           func(err error)
	OnIncomingCall    func(incoming *domain.IncomingCall)
}

// Config configures an Orchestrator
type Config struct {
	// UserID is the signed-in user; their own departures are not reported
	UserID    uuid.UUID
	Backend   Backend
	Media     MediaProvider
	Callbacks Callbacks
	Clock     Clock

	ActionTimeout     time.Duration
	DeclineResetDelay time.Duration
	EndResetDelay     time.Duration

	Logger *zap.Logger
}

// Orchestrator is the client call state machine for one session.
//
// Mutating actions are serialized by the processing flag: while one runs,
// others fail with ErrActionInProgress. Snapshot events that arrive during
// an action are queued and applied when it completes.
type Orchestrator struct {
	cfg Config
	log *zap.Logger

	mu           sync.Mutex
	state        State
	callID       uuid.UUID
	callType     domain.CallType
	incoming     *domain.IncomingCall
	media        domain.MediaState
	processing   bool
	actionCancel context.CancelFunc
	closed       bool

	res     *callResources
	tracker *eventTracker
	queue   []Event
	pending []func()
}

// New creates an orchestrator in the idle state
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil {
		return nil, errors.New("callclient: backend is required")
	}
	if cfg.Media == nil {
		cfg.Media = NullMediaProvider{}
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = constants.ActionTimeout
	}
	if cfg.DeclineResetDelay <= 0 {
		cfg.DeclineResetDelay = constants.DeclineResetDelay
	}
	if cfg.EndResetDelay <= 0 {
		cfg.EndResetDelay = constants.EndResetDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Orchestrator{
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("component", "call_orchestrator")),
		state:   StateIdle,
		res:     newCallResources(),
		tracker: newEventTracker(cfg.UserID),
	}, nil
}

// State returns the current call state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CallID returns the tracked call, or uuid.Nil
func (o *Orchestrator) CallID() uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.callID
}

// MediaState returns the local audio/video intent
func (o *Orchestrator) MediaState() domain.MediaState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.media
}

// IsProcessing reports whether a mutating action is in flight
func (o *Orchestrator) IsProcessing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processing
}

// IncomingCall returns the ring being shown, or nil
func (o *Orchestrator) IncomingCall() *domain.IncomingCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRinging {
		return nil
	}
	return o.incoming
}

// LocalStream returns the local media stream, or nil
func (o *Orchestrator) LocalStream() Stream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.res.local
}

// RemoteStreams returns a copy of the remote streams keyed by user
func (o *Orchestrator) RemoteStreams() map[uuid.UUID]Stream {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[uuid.UUID]Stream, len(o.res.remote))
	for userID, s := range o.res.remote {
		out[userID] = s
	}
	return out
}

// StartCall acquires local media and initiates a call: idle -> calling.
// It may also redial straight out of ended or declined.
func (o *Orchestrator) StartCall(ctx context.Context, req *CallRequest) error {
	if req == nil {
		return errors.New("callclient: call request is required")
	}

	o.mu.Lock()
	var err error
	switch {
	case o.closed:
		err = ErrClosed
	case o.processing:
		err = ErrActionInProgress
	case o.callID != uuid.Nil || !o.state.canDial():
		err = ErrCallInFlight
	}
	if err != nil {
		o.reportLocked(err)
		o.unlock()
		return err
	}
	// redialling from ended or declined drops the pending reset to idle
	o.res.release()
	actx := o.beginLocked(ctx)
	o.mu.Unlock()

	// one live call per room or conversation is a client-side convention
	active, err := o.cfg.Backend.GetActiveCall(actx, req.RoomID, req.ConversationID)
	if err != nil {
		return o.abortStart(transportError("get_active_call", err))
	}
	if active != nil {
		return o.abortStart(ErrCallInFlight)
	}

	constraints := Constraints{Audio: true, Video: req.Type == domain.CallTypeVideo}
	stream, err := o.cfg.Media.Acquire(actx, constraints)
	if err != nil {
		return o.abortStart(mediaError(constraints, err))
	}

	o.mu.Lock()
	if o.closed {
		stopStream(stream)
		o.endLocked()
		o.unlock()
		return ErrClosed
	}
	o.res.setLocal(stream)
	o.mu.Unlock()

	callID, err := o.cfg.Backend.InitiateCall(actx, req)
	if err != nil {
		return o.abortStart(transportError("initiate", err))
	}

	o.mu.Lock()
	if o.closed {
		o.endLocked()
		o.unlock()
		o.leaveDetached(callID)
		return ErrClosed
	}
	o.callID = callID
	o.callType = req.Type
	o.media = domain.MediaState{Audio: true, Video: constraints.Video}
	o.setStateLocked(StateCalling)
	o.endLocked()
	o.unlock()

	o.log.Info("Call started", zap.String("call_id", callID.String()))
	return nil
}

// abortStart releases whatever StartCall acquired and returns to idle
func (o *Orchestrator) abortStart(err error) error {
	o.mu.Lock()
	o.res.release()
	o.setStateLocked(StateIdle)
	o.reportLocked(err)
	o.endLocked()
	o.unlock()
	return err
}

// AnswerCall acquires local media and joins the ringing call: ringing -> connected.
// A media failure keeps the ring; a service failure ends the call locally.
func (o *Orchestrator) AnswerCall(ctx context.Context) error {
	o.mu.Lock()
	if err := o.guardLocked(o.state == StateRinging); err != nil {
		o.unlock()
		return err
	}
	callID, callType := o.callID, o.callType
	actx := o.beginLocked(ctx)
	o.mu.Unlock()

	constraints := Constraints{Audio: true, Video: callType == domain.CallTypeVideo}
	stream, err := o.cfg.Media.Acquire(actx, constraints)
	if err != nil {
		mae := mediaError(constraints, err)
		o.mu.Lock()
		o.reportLocked(mae)
		o.endLocked()
		o.unlock()
		return mae
	}

	o.mu.Lock()
	if o.closed {
		stopStream(stream)
		o.endLocked()
		o.unlock()
		return ErrClosed
	}
	o.res.setLocal(stream)
	o.mu.Unlock()

	media := domain.MediaState{Audio: true, Video: constraints.Video}
	if err := o.cfg.Backend.JoinCall(actx, callID, media); err != nil {
		te := transportError("join", err)
		o.mu.Lock()
		o.reportLocked(te)
		o.finishLocked(StateEnded, o.cfg.EndResetDelay)
		o.endLocked()
		o.unlock()
		return te
	}

	o.mu.Lock()
	if o.closed {
		o.endLocked()
		o.unlock()
		o.leaveDetached(callID)
		return ErrClosed
	}
	o.media = media
	o.incoming = nil
	o.setStateLocked(StateConnected)
	o.endLocked()
	o.unlock()

	o.log.Info("Call answered", zap.String("call_id", callID.String()))
	return nil
}

// Decline declines the ringing call: ringing -> declined -> idle
func (o *Orchestrator) Decline(ctx context.Context) error {
	o.mu.Lock()
	if err := o.guardLocked(o.state == StateRinging); err != nil {
		o.unlock()
		return err
	}
	callID := o.callID
	actx := o.beginLocked(ctx)
	o.mu.Unlock()

	err := o.cfg.Backend.DeclineCall(actx, callID)

	o.mu.Lock()
	defer o.unlock()
	if err != nil {
		te := transportError("decline", err)
		o.reportLocked(te)
		o.finishLocked(StateEnded, o.cfg.EndResetDelay)
		o.endLocked()
		return te
	}
	o.finishLocked(StateDeclined, o.cfg.DeclineResetDelay)
	o.endLocked()
	return nil
}

// EndCall leaves the tracked call: calling|ringing|connected -> ended -> idle.
// Local resources are released whether or not the service call succeeds.
func (o *Orchestrator) EndCall(ctx context.Context) error {
	o.mu.Lock()
	if err := o.guardLocked(o.state.inCall()); err != nil {
		o.unlock()
		return err
	}
	callID := o.callID
	actx := o.beginLocked(ctx)
	o.mu.Unlock()

	err := o.cfg.Backend.LeaveCall(actx, callID)

	o.mu.Lock()
	defer o.unlock()
	var te *TransportError
	if err != nil {
		te = transportError("leave", err)
		o.reportLocked(te)
	}
	o.finishLocked(StateEnded, o.cfg.EndResetDelay)
	o.endLocked()
	if te != nil {
		return te
	}
	return nil
}

// ToggleMute flips the local audio tracks, then syncs best effort. A failed
// sync is logged and never rolled back.
func (o *Orchestrator) ToggleMute(ctx context.Context) error {
	o.mu.Lock()
	if err := o.guardLocked(o.hasLocalMediaLocked()); err != nil {
		o.unlock()
		return err
	}
	o.media.Audio = !o.media.Audio
	setKindEnabled(o.res.local, TrackAudio, o.media.Audio)
	callID, media, sync := o.callID, o.media, o.state == StateConnected
	actx := o.beginLocked(ctx)
	o.mu.Unlock()

	if sync {
		o.syncMedia(actx, callID, media)
	}

	o.mu.Lock()
	o.endLocked()
	o.unlock()
	return nil
}

// ToggleVideo flips the local video. Turning video on without a video track
// replaces the local stream with a freshly acquired audio+video one.
func (o *Orchestrator) ToggleVideo(ctx context.Context) error {
	o.mu.Lock()
	if err := o.guardLocked(o.hasLocalMediaLocked()); err != nil {
		o.unlock()
		return err
	}
	enable := !o.media.Video
	callID := o.callID

	if !enable || len(tracksOf(o.res.local, TrackVideo)) > 0 {
		o.media.Video = enable
		setKindEnabled(o.res.local, TrackVideo, enable)
		media, sync := o.media, o.state == StateConnected
		actx := o.beginLocked(ctx)
		o.mu.Unlock()

		if sync {
			o.syncMedia(actx, callID, media)
		}

		o.mu.Lock()
		o.endLocked()
		o.unlock()
		return nil
	}

	audio := o.media.Audio
	actx := o.beginLocked(ctx)
	o.mu.Unlock()

	constraints := Constraints{Audio: true, Video: true}
	stream, err := o.cfg.Media.Acquire(actx, constraints)
	if err != nil {
		mae := mediaError(constraints, err)
		o.mu.Lock()
		o.reportLocked(mae)
		o.endLocked()
		o.unlock()
		return mae
	}
	setKindEnabled(stream, TrackAudio, audio)

	o.mu.Lock()
	if o.closed || o.callID != callID {
		stopStream(stream)
		o.endLocked()
		o.unlock()
		return ErrNoCall
	}
	o.res.setLocal(stream)
	o.media.Video = true
	media, sync := o.media, o.state == StateConnected
	o.mu.Unlock()

	if sync {
		o.syncMedia(actx, callID, media)
	}

	o.mu.Lock()
	o.endLocked()
	o.unlock()
	return nil
}

func (o *Orchestrator) syncMedia(ctx context.Context, callID uuid.UUID, media domain.MediaState) {
	if err := o.cfg.Backend.UpdateMediaState(ctx, callID, media); err != nil {
		o.log.Warn("Failed to sync media state",
			zap.String("call_id", callID.String()),
			zap.Bool("audio", media.Audio),
			zap.Bool("video", media.Video),
			zap.Error(err))
	}
}

// BindLocalVideo attaches the local preview sink
func (o *Orchestrator) BindLocalVideo(sink VideoSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.res.bindLocalSink(sink)
}

// BindRemoteVideo attaches a sink for one remote user's stream
func (o *Orchestrator) BindRemoteVideo(userID uuid.UUID, sink VideoSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.res.bindRemoteSink(userID, sink)
}

// AddRemoteStream records a remote user's stream for the tracked call
func (o *Orchestrator) AddRemoteStream(userID uuid.UUID, stream Stream) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.callID == uuid.Nil {
		return ErrNoCall
	}
	o.res.addRemote(userID, stream)
	return nil
}

// RemoveRemoteStream forgets a remote user's stream
func (o *Orchestrator) RemoveRemoteStream(userID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.res.removeRemote(userID)
}

// Observe applies a subscription snapshot
func (o *Orchestrator) Observe(snapshot *domain.CallSnapshot) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, o.tracker.Diff(snapshot)...)
	if !o.processing {
		o.drainLocked()
	}
	o.unlock()
}

// Run observes snapshots from feed until ctx is done or feed closes
func (o *Orchestrator) Run(ctx context.Context, feed <-chan *domain.CallSnapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snapshot, ok := <-feed:
			if !ok {
				return nil
			}
			o.Observe(snapshot)
		}
	}
}

// Close releases every resource and stops reacting. A call that was placed
// or answered is left on the service. Callbacks are not invoked afterwards.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	callID := o.callID
	leave := callID != uuid.Nil && (o.state == StateCalling || o.state == StateConnected)

	o.closed = true
	if o.actionCancel != nil {
		o.actionCancel()
		o.actionCancel = nil
	}
	o.res.release()
	o.queue = nil
	o.pending = nil
	o.callID = uuid.Nil
	o.incoming = nil
	o.media = domain.MediaState{}
	o.state = StateIdle
	o.processing = false
	o.mu.Unlock()

	if leave {
		o.leaveDetached(callID)
	}
	return nil
}

// leaveDetached leaves a call on behalf of a closed orchestrator
func (o *Orchestrator) leaveDetached(callID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ActionTimeout)
	defer cancel()
	if err := o.cfg.Backend.LeaveCall(ctx, callID); err != nil {
		o.log.Warn("Failed to leave call on close",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}
}

// guardLocked rejects an action while closed, busy or in the wrong state
func (o *Orchestrator) guardLocked(allowed bool) error {
	switch {
	case o.closed:
		return ErrClosed
	case o.processing:
		return ErrActionInProgress
	case !allowed || o.callID == uuid.Nil:
		return ErrNoCall
	}
	return nil
}

func (o *Orchestrator) hasLocalMediaLocked() bool {
	return o.res.local != nil && (o.state == StateCalling || o.state == StateConnected)
}

// beginLocked claims the processing flag and bounds the action by ActionTimeout
func (o *Orchestrator) beginLocked(ctx context.Context) context.Context {
	o.processing = true
	actx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
	o.actionCancel = cancel
	return actx
}

// endLocked releases the processing flag and applies events queued meanwhile
func (o *Orchestrator) endLocked() {
	if o.actionCancel != nil {
		o.actionCancel()
		o.actionCancel = nil
	}
	o.processing = false
	if !o.closed {
		o.drainLocked()
	}
}

func (o *Orchestrator) drainLocked() {
	for len(o.queue) > 0 {
		ev := o.queue[0]
		o.queue = o.queue[1:]
		o.handleLocked(ev)
	}
}

func (o *Orchestrator) handleLocked(ev Event) {
	switch ev := ev.(type) {
	case IncomingCallEvent:
		if o.callID != uuid.Nil {
			o.log.Debug("Ignoring incoming call while busy",
				zap.String("call_id", ev.EventCallID().String()))
			return
		}
		switch o.state {
		case StateIdle, StateEnded, StateDeclined:
		default:
			return
		}
		// drops a pending reset to idle
		o.res.release()
		o.callID = ev.Incoming.Call.CallID
		o.callType = ev.Incoming.Call.Type
		o.incoming = ev.Incoming
		o.setStateLocked(StateRinging)
		if cb := o.cfg.Callbacks.OnIncomingCall; cb != nil {
			incoming := ev.Incoming
			o.pending = append(o.pending, func() { cb(incoming) })
		}

	case CallBecameActiveEvent:
		if ev.CallID == o.callID && o.state == StateCalling {
			o.setStateLocked(StateConnected)
		}

	case ParticipantLeftEvent:
		if ev.CallID == o.callID {
			o.res.removeRemote(ev.UserID)
		}

	case CallEndedEvent:
		if ev.CallID == o.callID && o.state.inCall() {
			o.finishLocked(StateEnded, o.cfg.EndResetDelay)
		}
	}
}

// finishLocked is the single exit path out of a call: it releases every
// resource, enters a terminal state and schedules the reset to idle
func (o *Orchestrator) finishLocked(state State, resetAfter time.Duration) {
	o.res.release()
	o.callID = uuid.Nil
	o.callType = ""
	o.incoming = nil
	o.media = domain.MediaState{}
	if o.closed {
		return
	}
	o.setStateLocked(state)
	o.res.addTimer(o.cfg.Clock.AfterFunc(resetAfter, func() { o.resetToIdle(state) }))
}

func (o *Orchestrator) resetToIdle(from State) {
	o.mu.Lock()
	defer o.unlock()
	if o.closed || o.state != from || o.callID != uuid.Nil {
		return
	}
	o.res.release()
	o.setStateLocked(StateIdle)
}

func (o *Orchestrator) setStateLocked(state State) {
	if o.state == state {
		return
	}
	o.state = state
	if cb := o.cfg.Callbacks.OnCallStateChange; cb != nil && !o.closed {
		o.pending = append(o.pending, func() { cb(state) })
	}
}

func (o *Orchestrator) reportLocked(err error) {
	o.log.Warn("Call action failed", zap.Error(err))
	if cb := o.cfg.Callbacks.OnError; cb != nil && !o.closed {
		o.pending = append(o.pending, func() { cb(err) })
	}
}

// unlock releases the lock, then runs callbacks collected while it was held
func (o *Orchestrator) unlock() {
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()
	for _, f := range pending {
		f()
	}
}
