package callclient

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// fakeBackend records calls; hook, when set, runs first and may block or fail
type fakeBackend struct {
	mu     sync.Mutex
	calls  []string
	media  []domain.MediaState
	active *domain.ActiveCall
	callID uuid.UUID
	errs   map[string]error
	hook   func(ctx context.Context, op string) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{callID: uuid.New(), errs: make(map[string]error)}
}

func (b *fakeBackend) do(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls = append(b.calls, op)
	hook := b.hook
	err := b.errs[op]
	b.mu.Unlock()
	if hook != nil {
		if herr := hook(ctx, op); herr != nil {
			return herr
		}
	}
	return err
}

func (b *fakeBackend) setErr(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[op] = err
}

func (b *fakeBackend) setHook(hook func(ctx context.Context, op string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = hook
}

func (b *fakeBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (b *fakeBackend) lastMedia() domain.MediaState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.media[len(b.media)-1]
}

func (b *fakeBackend) InitiateCall(ctx context.Context, req *CallRequest) (uuid.UUID, error) {
	if err := b.do(ctx, "initiate"); err != nil {
		return uuid.Nil, err
	}
	return b.callID, nil
}

func (b *fakeBackend) JoinCall(ctx context.Context, callID uuid.UUID, media domain.MediaState) error {
	if err := b.do(ctx, "join"); err != nil {
		return err
	}
	b.mu.Lock()
	b.media = append(b.media, media)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) LeaveCall(ctx context.Context, callID uuid.UUID) error {
	return b.do(ctx, "leave")
}

func (b *fakeBackend) DeclineCall(ctx context.Context, callID uuid.UUID) error {
	return b.do(ctx, "decline")
}

func (b *fakeBackend) UpdateMediaState(ctx context.Context, callID uuid.UUID, media domain.MediaState) error {
	b.mu.Lock()
	b.media = append(b.media, media)
	b.mu.Unlock()
	return b.do(ctx, "media")
}

func (b *fakeBackend) GetActiveCall(ctx context.Context, roomID, conversationID *uuid.UUID) (*domain.ActiveCall, error) {
	if err := b.do(ctx, "active"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, nil
}

type fakeTrack struct {
	mu      sync.Mutex
	kind    TrackKind
	enabled bool
	stopped bool
}

func (t *fakeTrack) Kind() TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	id     string
	tracks []Track
}

func (s *fakeStream) ID() string      { return s.id }
func (s *fakeStream) Tracks() []Track { return s.tracks }

// fakeMedia hands out fake streams and remembers every one
type fakeMedia struct {
	mu       sync.Mutex
	err      error
	acquired []*fakeStream
	requests []Constraints
}

func (m *fakeMedia) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{id: uuid.NewString()}
	if c.Audio {
		s.tracks = append(s.tracks, &fakeTrack{kind: TrackAudio, enabled: true})
	}
	if c.Video {
		s.tracks = append(s.tracks, &fakeTrack{kind: TrackVideo, enabled: true})
	}
	m.acquired = append(m.acquired, s)
	return s, nil
}

func (m *fakeMedia) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *fakeMedia) allStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.acquired {
		for _, t := range s.tracks {
			if !t.Stopped() {
				return false
			}
		}
	}
	return true
}

func (m *fakeMedia) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// fakeSink mirrors a video element's srcObject
type fakeSink struct {
	mu      sync.Mutex
	current Stream
}

func (s *fakeSink) Attach(stream Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = stream
}

func (s *fakeSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

func (s *fakeSink) source() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// manualClock fires timers only when advanced
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due timers outside the clock's lock
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// recorder collects callback output
type recorder struct {
	mu       sync.Mutex
	states   []State
	errs     []error
	incoming []*domain.IncomingCall
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnCallStateChange: func(s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnIncomingCall: func(in *domain.IncomingCall) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.incoming = append(r.incoming, in)
		},
	}
}

func (r *recorder) stateLog() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) incomingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.incoming)
}

var errBoom = errors.New("boom")
