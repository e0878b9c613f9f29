package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/repository/memory"
	apperrors "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []*domain.CallChange
	targets [][]uuid.UUID
}

func (p *recordingPublisher) PublishCallChange(ctx context.Context, userIDs []uuid.UUID, change *domain.CallChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	p.targets = append(p.targets, append([]uuid.UUID(nil), userIDs...))
	return nil
}

func (p *recordingPublisher) count(kind domain.CallChangeKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.changes {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

type testEnv struct {
	svc       *Service
	store     *memory.CallStore
	users     *memory.UserStore
	clock     *testClock
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     memory.NewCallStore(),
		users:     memory.NewUserStore(),
		clock:     &testClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		publisher: &recordingPublisher{},
	}
	env.svc = NewService(env.store, env.users, env.publisher,
		WithClock(env.clock.Now),
		WithHistoryLimits(20, 100))
	return env
}

func (e *testEnv) call(t *testing.T, callID uuid.UUID) *domain.Call {
	t.Helper()
	call, err := e.store.GetCall(context.Background(), callID)
	require.NoError(t, err)
	return call
}

func (e *testEnv) participant(t *testing.T, callID, userID uuid.UUID) *domain.CallParticipant {
	t.Helper()
	p, err := e.store.GetParticipant(context.Background(), callID, userID)
	require.NoError(t, err)
	return p
}

func (e *testEnv) startCall(t *testing.T, caller uuid.UUID, callType domain.CallType, invitees ...uuid.UUID) uuid.UUID {
	t.Helper()
	conversationID := uuid.New()
	out, err := e.svc.InitiateCall(context.Background(), &InitiateCallInput{
		CallerID:       caller,
		Type:           callType,
		ParticipantIDs: invitees,
		ConversationID: &conversationID,
	})
	require.NoError(t, err)
	return out.CallID
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func TestVideoCallBetweenTwoUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	callID := env.startCall(t, alice, domain.CallTypeVideo, bob)
	started := env.clock.Now()

	call := env.call(t, callID)
	assert.Equal(t, domain.CallStatusRinging, call.Status)
	pa := env.participant(t, callID, alice)
	assert.Equal(t, domain.ParticipantInvited, pa.Status)
	require.NotNil(t, pa.MediaState)
	assert.Equal(t, domain.MediaState{Audio: true, Video: true}, *pa.MediaState)
	pb := env.participant(t, callID, bob)
	assert.Equal(t, domain.ParticipantInvited, pb.Status)
	assert.Nil(t, pb.MediaState)

	env.clock.Advance(5 * time.Second)
	participantID, err := env.svc.JoinCall(ctx, callID, bob, domain.MediaState{Audio: true, Video: true})
	require.NoError(t, err)
	assert.Equal(t, pb.ParticipantID, participantID)

	pb = env.participant(t, callID, bob)
	assert.Equal(t, domain.ParticipantJoined, pb.Status)
	require.NotNil(t, pb.JoinedAt)
	assert.Equal(t, domain.CallStatusActive, env.call(t, callID).Status)
	pa = env.participant(t, callID, alice)
	assert.Equal(t, domain.ParticipantJoined, pa.Status, "initiator flips to joined on first answer")
	assert.NotNil(t, pa.JoinedAt)

	env.clock.Advance(30 * time.Second)
	require.NoError(t, env.svc.LeaveCall(ctx, callID, alice))
	assert.Equal(t, domain.ParticipantLeft, env.participant(t, callID, alice).Status)
	assert.Equal(t, domain.CallStatusActive, env.call(t, callID).Status)

	env.clock.Advance(10 * time.Second)
	require.NoError(t, env.svc.LeaveCall(ctx, callID, bob))

	call = env.call(t, callID)
	assert.Equal(t, domain.CallStatusEnded, call.Status)
	require.NotNil(t, call.EndedAt)
	require.NotNil(t, call.DurationMs)
	assert.Equal(t, started.Add(45*time.Second), *call.EndedAt)
	assert.Equal(t, int64(45000), *call.DurationMs)
	assert.Equal(t, 1, env.publisher.count(domain.CallChangeEnded))
}

func TestLeaveCall_EndsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeAudio, bob)

	_, err := env.svc.JoinCall(ctx, callID, bob, domain.MediaState{Audio: true})
	require.NoError(t, err)
	require.NoError(t, env.svc.LeaveCall(ctx, callID, alice))
	env.clock.Advance(time.Minute)
	require.NoError(t, env.svc.LeaveCall(ctx, callID, bob))

	ended := env.call(t, callID)
	require.Equal(t, domain.CallStatusEnded, ended.Status)

	env.clock.Advance(time.Minute)
	require.NoError(t, env.svc.LeaveCall(ctx, callID, bob), "second leave succeeds")
	require.NoError(t, env.svc.LeaveCall(ctx, callID, alice))

	again := env.call(t, callID)
	assert.Equal(t, *ended.EndedAt, *again.EndedAt)
	assert.Equal(t, *ended.DurationMs, *again.DurationMs)
	assert.Equal(t, env.clock.Now(), *env.participant(t, callID, bob).LeftAt, "double leave re-patches left_at")
	assert.Equal(t, 1, env.publisher.count(domain.CallChangeEnded))
}

func TestLeaveCall_InitiatorBeforeAnswerKeepsRinging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeAudio, bob)

	require.NoError(t, env.svc.LeaveCall(ctx, callID, alice))
	assert.Equal(t, domain.CallStatusRinging, env.call(t, callID).Status, "bob is still invited")

	require.NoError(t, env.svc.LeaveCall(ctx, callID, bob))
	assert.Equal(t, domain.CallStatusEnded, env.call(t, callID).Status)
}

func TestDeclineCall_NeverEndsCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeVideo, bob, carol)

	require.NoError(t, env.svc.DeclineCall(ctx, callID, bob))
	require.NoError(t, env.svc.DeclineCall(ctx, callID, carol))

	assert.Equal(t, domain.ParticipantDeclined, env.participant(t, callID, bob).Status)
	assert.Equal(t, domain.CallStatusRinging, env.call(t, callID).Status)

	require.NoError(t, env.svc.LeaveCall(ctx, callID, alice))
	assert.Equal(t, domain.CallStatusEnded, env.call(t, callID).Status)
}

func TestDeclineCall_RequiresPendingInvite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeAudio, bob)

	_, err := env.svc.JoinCall(ctx, callID, bob, domain.MediaState{Audio: true})
	require.NoError(t, err)

	assertCode(t, env.svc.DeclineCall(ctx, callID, bob), apperrors.ErrCodeNotInvited)
	assertCode(t, env.svc.DeclineCall(ctx, callID, uuid.New()), apperrors.ErrCodeNotInvited)
	assertCode(t, env.svc.DeclineCall(ctx, callID, uuid.Nil), apperrors.ErrCodeUnauthorized)
}

func TestInitiateCall_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room, conversation := uuid.New(), uuid.New()

	tests := []struct {
		name  string
		input *InitiateCallInput
		code  apperrors.ErrorCode
	}{
		{
			name:  "unauthenticated",
			input: &InitiateCallInput{Type: domain.CallTypeAudio, RoomID: &room},
			code:  apperrors.ErrCodeUnauthorized,
		},
		{
			name:  "unknown type",
			input: &InitiateCallInput{CallerID: uuid.New(), Type: "screen", RoomID: &room},
			code:  apperrors.ErrCodeValidation,
		},
		{
			name:  "no context",
			input: &InitiateCallInput{CallerID: uuid.New(), Type: domain.CallTypeAudio},
			code:  apperrors.ErrCodeValidation,
		},
		{
			name:  "both contexts",
			input: &InitiateCallInput{CallerID: uuid.New(), Type: domain.CallTypeAudio, RoomID: &room, ConversationID: &conversation},
			code:  apperrors.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := env.svc.InitiateCall(ctx, tt.input)
			assert.Nil(t, out)
			assertCode(t, err, tt.code)
		})
	}
}

func TestInitiateCall_SkipsDuplicatesAndCaller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	room := uuid.New()

	out, err := env.svc.InitiateCall(ctx, &InitiateCallInput{
		CallerID:       alice,
		Type:           domain.CallTypeAudio,
		ParticipantIDs: []uuid.UUID{bob, alice, bob, carol, uuid.Nil},
		RoomID:         &room,
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob, carol}, out.InvitedIDs)

	participants, err := env.store.ListParticipants(ctx, out.CallID)
	require.NoError(t, err)
	require.Len(t, participants, 3)
	assert.Equal(t, alice, participants[0].UserID)
	assert.Equal(t, domain.MediaState{Audio: true, Video: false}, *participants[0].MediaState)

	require.Equal(t, 1, env.publisher.count(domain.CallChangeInitiated))
	assert.ElementsMatch(t, []uuid.UUID{alice, bob, carol}, env.publisher.targets[0])
}

func TestJoinCall_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeAudio, bob)

	_, err := env.svc.JoinCall(ctx, uuid.New(), bob, domain.MediaState{})
	assertCode(t, err, apperrors.ErrCodeCallNotFound)

	_, err = env.svc.JoinCall(ctx, callID, uuid.New(), domain.MediaState{})
	assertCode(t, err, apperrors.ErrCodeNotInvited)

	_, err = env.svc.JoinCall(ctx, callID, uuid.Nil, domain.MediaState{})
	assertCode(t, err, apperrors.ErrCodeUnauthorized)

	require.NoError(t, env.svc.LeaveCall(ctx, callID, alice))
	require.NoError(t, env.svc.LeaveCall(ctx, callID, bob))

	_, err = env.svc.JoinCall(ctx, callID, bob, domain.MediaState{})
	assertCode(t, err, apperrors.ErrCodeInvalidState)
}

func TestJoinCall_RejoinRepatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeVideo, bob)

	_, err := env.svc.JoinCall(ctx, callID, bob, domain.MediaState{Audio: true, Video: true})
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	_, err = env.svc.JoinCall(ctx, callID, bob, domain.MediaState{Audio: false, Video: true})
	require.NoError(t, err)

	pb := env.participant(t, callID, bob)
	assert.Equal(t, domain.MediaState{Audio: false, Video: true}, *pb.MediaState)
	assert.Equal(t, env.clock.Now(), *pb.JoinedAt)
	assert.Equal(t, domain.CallStatusActive, env.call(t, callID).Status)
}

func TestJoinCall_InitiatorWhoLeftIsNotRevived(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeAudio, bob)

	require.NoError(t, env.svc.LeaveCall(ctx, callID, alice))
	_, err := env.svc.JoinCall(ctx, callID, bob, domain.MediaState{Audio: true})
	require.NoError(t, err)

	assert.Equal(t, domain.ParticipantLeft, env.participant(t, callID, alice).Status)
	assert.Equal(t, domain.CallStatusActive, env.call(t, callID).Status)
}

func TestUpdateMediaState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeVideo, bob)

	assertCode(t, env.svc.UpdateMediaState(ctx, callID, bob, domain.MediaState{}), apperrors.ErrCodeInvalidState)
	assertCode(t, env.svc.UpdateMediaState(ctx, callID, uuid.New(), domain.MediaState{}), apperrors.ErrCodeNotInvited)

	_, err := env.svc.JoinCall(ctx, callID, bob, domain.MediaState{Audio: true, Video: true})
	require.NoError(t, err)
	require.NoError(t, env.svc.UpdateMediaState(ctx, callID, bob, domain.MediaState{Audio: false, Video: true}))

	pb := env.participant(t, callID, bob)
	assert.Equal(t, domain.MediaState{Audio: false, Video: true}, *pb.MediaState)
	assert.Equal(t, domain.ParticipantJoined, pb.Status)
}

func TestGetActiveCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	env.users.Put(&domain.User{UserID: alice, Username: "alice", DisplayName: "Alice"})
	env.users.Put(&domain.User{UserID: bob, Username: "bob"})

	room := uuid.New()
	out, err := env.svc.InitiateCall(ctx, &InitiateCallInput{
		CallerID: alice, Type: domain.CallTypeVideo, ParticipantIDs: []uuid.UUID{bob}, RoomID: &room,
	})
	require.NoError(t, err)

	active, err := env.svc.GetActiveCall(ctx, bob, &room, nil)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, out.CallID, active.Call.CallID)
	require.Len(t, active.Participants, 2)
	assert.Equal(t, "Alice", active.Initiator.DisplayName)
	require.NotNil(t, active.Participant(bob))
	assert.Equal(t, "bob", active.Participant(bob).User.Username)

	otherRoom := uuid.New()
	active, err = env.svc.GetActiveCall(ctx, bob, &otherRoom, nil)
	require.NoError(t, err)
	assert.Nil(t, active)

	active, err = env.svc.GetActiveCall(ctx, uuid.Nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, env.svc.DeclineCall(ctx, out.CallID, bob))
	active, err = env.svc.GetActiveCall(ctx, bob, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, active, "declined rows are not in the active set")
}

func TestGetIncomingCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	env.users.Put(&domain.User{UserID: carol, Username: "carol"})

	first := env.startCall(t, alice, domain.CallTypeAudio, bob)
	env.clock.Advance(time.Second)
	second := env.startCall(t, carol, domain.CallTypeVideo, bob)

	incoming, err := env.svc.GetIncomingCall(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, incoming)
	assert.Equal(t, second, incoming.Call.CallID, "newest invitation wins")
	assert.Equal(t, "carol", incoming.Initiator.Username)

	incoming, err = env.svc.GetIncomingCall(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, incoming, "initiators never see their own ring")

	require.NoError(t, env.svc.DeclineCall(ctx, second, bob))
	incoming, err = env.svc.GetIncomingCall(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, incoming)
	assert.Equal(t, first, incoming.Call.CallID)
	assert.Equal(t, alice, incoming.Initiator.UserID)

	_, err = env.svc.JoinCall(ctx, first, bob, domain.MediaState{Audio: true})
	require.NoError(t, err)
	incoming, err = env.svc.GetIncomingCall(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, incoming)
}

func TestGetCallHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	room := uuid.New()

	var ended []uuid.UUID
	for i := 0; i < 3; i++ {
		out, err := env.svc.InitiateCall(ctx, &InitiateCallInput{
			CallerID: alice, Type: domain.CallTypeAudio, ParticipantIDs: []uuid.UUID{bob}, RoomID: &room,
		})
		require.NoError(t, err)
		require.NoError(t, env.svc.LeaveCall(ctx, out.CallID, alice))
		require.NoError(t, env.svc.LeaveCall(ctx, out.CallID, bob))
		ended = append(ended, out.CallID)
		env.clock.Advance(time.Minute)
	}
	live := env.startCall(t, alice, domain.CallTypeAudio, bob)

	history, err := env.svc.GetCallHistory(ctx, alice, &HistoryInput{RoomID: &room})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ended[2], history[0].Call.CallID)
	assert.Equal(t, ended[0], history[2].Call.CallID)
	assert.Len(t, history[0].Participants, 2)

	history, err = env.svc.GetCallHistory(ctx, bob, &HistoryInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, record := range history {
		assert.NotEqual(t, live, record.Call.CallID)
		assert.Equal(t, domain.CallStatusEnded, record.Call.Status)
	}

	history, err = env.svc.GetCallHistory(ctx, uuid.Nil, nil)
	require.NoError(t, err)
	assert.Empty(t, history)

	conversation := uuid.New()
	_, err = env.svc.GetCallHistory(ctx, alice, &HistoryInput{RoomID: &room, ConversationID: &conversation})
	assertCode(t, err, apperrors.ErrCodeValidation)
}

func TestGetCallHistory_LimitIsClamped(t *testing.T) {
	env := newTestEnv(t)
	env.svc = NewService(env.store, env.users, nil, WithClock(env.clock.Now), WithHistoryLimits(1, 2))
	ctx := context.Background()
	alice := uuid.New()
	room := uuid.New()

	for i := 0; i < 3; i++ {
		out, err := env.svc.InitiateCall(ctx, &InitiateCallInput{CallerID: alice, Type: domain.CallTypeAudio, RoomID: &room})
		require.NoError(t, err)
		require.NoError(t, env.svc.LeaveCall(ctx, out.CallID, alice))
		env.clock.Advance(time.Second)
	}

	history, err := env.svc.GetCallHistory(ctx, alice, &HistoryInput{RoomID: &room})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	history, err = env.svc.GetCallHistory(ctx, alice, &HistoryInput{RoomID: &room, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestGetCallStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeAudio, bob)

	record, err := env.svc.GetCallStatus(ctx, bob, callID)
	require.NoError(t, err)
	assert.Equal(t, callID, record.Call.CallID)
	assert.Len(t, record.Participants, 2)

	_, err = env.svc.GetCallStatus(ctx, uuid.New(), callID)
	assertCode(t, err, apperrors.ErrCodeForbidden)

	_, err = env.svc.GetCallStatus(ctx, bob, uuid.New())
	assertCode(t, err, apperrors.ErrCodeCallNotFound)
}

func TestPeerConnectionRelay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, mallory := uuid.New(), uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeVideo, bob)

	offer := "v=0 offer"
	pc, err := env.svc.CreatePeerConnection(ctx, callID, alice, bob, &offer)
	require.NoError(t, err)
	assert.Equal(t, domain.PeerConnectionPending, pc.Status)
	assert.Empty(t, pc.ICECandidates)

	_, err = env.svc.CreatePeerConnection(ctx, uuid.New(), alice, bob, nil)
	assertCode(t, err, apperrors.ErrCodeCallNotFound)

	answer := "v=0 answer"
	first, second := "candidate:1", "candidate:2"
	connected := domain.PeerConnectionConnected

	_, err = env.svc.UpdatePeerConnection(ctx, bob, &UpdatePeerConnectionInput{ConnectionID: pc.ConnectionID, Answer: &answer, ICECandidate: &first})
	require.NoError(t, err)
	updated, err := env.svc.UpdatePeerConnection(ctx, alice, &UpdatePeerConnectionInput{ConnectionID: pc.ConnectionID, ICECandidate: &second, Status: &connected})
	require.NoError(t, err)

	assert.Equal(t, []string{first, second}, updated.ICECandidates)
	assert.Equal(t, answer, *updated.Answer)
	assert.Equal(t, offer, *updated.Offer)
	assert.Equal(t, domain.PeerConnectionConnected, updated.Status)

	_, err = env.svc.UpdatePeerConnection(ctx, mallory, &UpdatePeerConnectionInput{ConnectionID: pc.ConnectionID, ICECandidate: &first})
	assertCode(t, err, apperrors.ErrCodeForbidden)

	_, err = env.svc.UpdatePeerConnection(ctx, alice, &UpdatePeerConnectionInput{ConnectionID: uuid.New()})
	assertCode(t, err, apperrors.ErrCodePeerConnectionNotFound)

	bogus := domain.PeerConnectionStatus("negotiating")
	_, err = env.svc.UpdatePeerConnection(ctx, alice, &UpdatePeerConnectionInput{ConnectionID: pc.ConnectionID, Status: &bogus})
	assertCode(t, err, apperrors.ErrCodeValidation)

	list, err := env.svc.GetPeerConnections(ctx, bob, callID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = env.svc.GetPeerConnections(ctx, mallory, callID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConcurrentCandidateAppendsAreNotLost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	callID := env.startCall(t, alice, domain.CallTypeVideo, bob)
	pc, err := env.svc.CreatePeerConnection(ctx, callID, alice, bob, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := alice
			if i%2 == 1 {
				user = bob
			}
			candidate := uuid.NewString()
			_, err := env.svc.UpdatePeerConnection(ctx, user, &UpdatePeerConnectionInput{ConnectionID: pc.ConnectionID, ICECandidate: &candidate})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := env.store.GetPeerConnection(ctx, pc.ConnectionID)
	require.NoError(t, err)
	assert.Len(t, stored.ICECandidates, 20)
}
