package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/repository/memory"
	callService "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/service/call"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newCall(startedAt time.Time) *domain.Call {
	room := uuid.New()
	return &domain.Call{
		CallID:      uuid.New(),
		RoomID:      &room,
		InitiatorID: uuid.New(),
		Type:        domain.CallTypeAudio,
		Status:      domain.CallStatusRinging,
		StartedAt:   startedAt,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "calls.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	call := newCall(time.Now())
	require.NoError(t, store.CreateCall(ctx, call))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, call.CallID, got.CallID)
	require.NoError(t, store.Ping(ctx))
}

func TestStore_NotFound(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.GetCall(ctx, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.GetParticipant(ctx, uuid.New(), uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = store.EndCall(ctx, uuid.New(), time.Now())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = store.UpdateCallStatus(ctx, uuid.New(), domain.CallStatusActive)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.GetPeerConnection(ctx, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_CallRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 12, 0, 0, 123456789, time.UTC)
	call := newCall(start)
	call.Type = domain.CallTypeVideo
	require.NoError(t, store.CreateCall(ctx, call))

	got, err := store.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, *call.RoomID, *got.RoomID)
	assert.Nil(t, got.ConversationID)
	assert.Equal(t, call.InitiatorID, got.InitiatorID)
	assert.Equal(t, domain.CallTypeVideo, got.Type)
	assert.True(t, start.Equal(got.StartedAt))
	assert.Nil(t, got.EndedAt)
	assert.Nil(t, got.DurationMs)

	require.NoError(t, store.EndCall(ctx, call.CallID, start.Add(90*time.Second)))

	got, err = store.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, got.Status)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, int64(90000), *got.DurationMs)
	require.NotNil(t, got.EndedAt)
	assert.True(t, start.Add(90*time.Second).Equal(*got.EndedAt))
}

func TestStore_InTxRollsBackOnError(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	call := newCall(time.Now())
	require.NoError(t, store.CreateCall(ctx, call))

	boom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.UpdateCallStatus(ctx, call.CallID, domain.CallStatusActive))
		require.NoError(t, store.CreateCall(ctx, newCall(time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusRinging, got.Status)

	calls, err := store.ListCalls(ctx, domain.CallFilter{})
	require.NoError(t, err)
	assert.Len(t, calls, 1)
}

func TestStore_NestedInTxJoinsOuter(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	err := store.InTx(ctx, func(ctx context.Context) error {
		return store.InTx(ctx, func(ctx context.Context) error {
			return store.CreateCall(ctx, newCall(time.Now()))
		})
	})

	require.NoError(t, err)
	calls, err := store.ListCalls(ctx, domain.CallFilter{})
	require.NoError(t, err)
	assert.Len(t, calls, 1)
}

func TestStore_ListCallsFilterAndOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	room := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		call := newCall(base.Add(time.Duration(i) * time.Minute))
		call.RoomID = &room
		require.NoError(t, store.CreateCall(ctx, call))
		require.NoError(t, store.EndCall(ctx, call.CallID, call.StartedAt.Add(time.Second)))
		ids = append(ids, call.CallID)
	}
	require.NoError(t, store.CreateCall(ctx, newCall(base)))

	calls, err := store.ListCalls(ctx, domain.CallFilter{RoomID: &room, Status: domain.CallStatusEnded, Limit: 2})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, ids[2], calls[0].CallID)
	assert.Equal(t, ids[1], calls[1].CallID)
}

func TestStore_ParticipantQueries(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	call := newCall(now)
	require.NoError(t, store.CreateCall(ctx, call))

	userA, userB := uuid.New(), uuid.New()
	for i, p := range []*domain.CallParticipant{
		{ParticipantID: uuid.New(), CallID: call.CallID, UserID: userA, Status: domain.ParticipantInvited, MediaState: &domain.MediaState{Audio: true}},
		{ParticipantID: uuid.New(), CallID: call.CallID, UserID: userB, Status: domain.ParticipantDeclined},
	} {
		p.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		require.NoError(t, store.CreateParticipant(ctx, p))
	}

	count, err := store.CountParticipants(ctx, call.CallID, domain.ActiveSet...)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.CountParticipants(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rows, err := store.ListUserParticipations(ctx, userB, domain.ParticipantInvited)
	require.NoError(t, err)
	assert.Empty(t, rows)

	all, err := store.ListParticipants(ctx, call.CallID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, userA, all[0].UserID)
	assert.Nil(t, all[1].MediaState)

	p, err := store.GetParticipant(ctx, call.CallID, userA)
	require.NoError(t, err)
	require.NotNil(t, p.MediaState)
	assert.True(t, p.MediaState.Audio)
	assert.False(t, p.MediaState.Video)

	joined := now.Add(time.Second)
	p.Status = domain.ParticipantJoined
	p.JoinedAt = &joined
	p.MediaState = &domain.MediaState{Audio: false, Video: true}
	require.NoError(t, store.UpdateParticipant(ctx, p))

	again, err := store.GetParticipant(ctx, call.CallID, userA)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantJoined, again.Status)
	require.NotNil(t, again.JoinedAt)
	assert.True(t, joined.Equal(*again.JoinedAt))
	assert.Nil(t, again.LeftAt)
	assert.Equal(t, domain.MediaState{Audio: false, Video: true}, *again.MediaState)
}

func TestStore_PeerConnections(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	call := newCall(time.Now())
	require.NoError(t, store.CreateCall(ctx, call))

	from, to := uuid.New(), uuid.New()
	offer := "v=0"
	pc := &domain.PeerConnection{
		ConnectionID: uuid.New(),
		CallID:       call.CallID,
		FromUserID:   from,
		ToUserID:     to,
		Offer:        &offer,
		Status:       domain.PeerConnectionPending,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.CreatePeerConnection(ctx, pc))

	got, err := store.GetPeerConnection(ctx, pc.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, offer, *got.Offer)
	assert.Nil(t, got.Answer)
	assert.Equal(t, []string{}, got.ICECandidates)

	answer := "v=0 answer"
	got.Answer = &answer
	got.ICECandidates = append(got.ICECandidates, "candidate:1", "candidate:2")
	got.Status = domain.PeerConnectionConnected
	require.NoError(t, store.UpdatePeerConnection(ctx, got))

	got, err = store.GetPeerConnection(ctx, pc.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, answer, *got.Answer)
	assert.Equal(t, []string{"candidate:1", "candidate:2"}, got.ICECandidates)
	assert.Equal(t, domain.PeerConnectionConnected, got.Status)

	list, err := store.ListPeerConnections(ctx, call.CallID, to)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = store.ListPeerConnections(ctx, call.CallID, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_PeerConnectionRequiresCall(t *testing.T) {
	store := openStore(t)

	err := store.CreatePeerConnection(context.Background(), &domain.PeerConnection{
		ConnectionID: uuid.New(),
		CallID:       uuid.New(),
		FromUserID:   uuid.New(),
		ToUserID:     uuid.New(),
		Status:       domain.PeerConnectionPending,
	})
	assert.Error(t, err)
}

func TestStore_Users(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	avatar := "https://example.com/a.png"
	alice := &domain.User{UserID: uuid.New(), Username: "alice", DisplayName: "Alice", AvatarURL: &avatar}
	bob := &domain.User{UserID: uuid.New(), Username: "bob"}
	require.NoError(t, store.UpsertUser(ctx, alice))
	require.NoError(t, store.UpsertUser(ctx, bob))

	bob.DisplayName = "Bob"
	require.NoError(t, store.UpsertUser(ctx, bob))

	users, err := store.GetByIDs(ctx, []uuid.UUID{alice.UserID, bob.UserID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, avatar, *users[alice.UserID].AvatarURL)
	assert.Equal(t, "Bob", users[bob.UserID].DisplayName)
	assert.Nil(t, users[bob.UserID].AvatarURL)

	empty, err := store.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_BacksCallService(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	svc := callService.NewService(store, store, memory.NewBroker(8))

	caller, callee := uuid.New(), uuid.New()
	require.NoError(t, store.UpsertUser(ctx, &domain.User{UserID: caller, Username: "caller"}))
	room := uuid.New()

	out, err := svc.InitiateCall(ctx, &callService.InitiateCallInput{
		CallerID:       caller,
		Type:           domain.CallTypeVideo,
		ParticipantIDs: []uuid.UUID{callee},
		RoomID:         &room,
	})
	require.NoError(t, err)

	incoming, err := svc.GetIncomingCall(ctx, callee)
	require.NoError(t, err)
	require.NotNil(t, incoming)
	assert.Equal(t, out.CallID, incoming.Call.CallID)
	require.NotNil(t, incoming.Initiator)
	assert.Equal(t, "caller", incoming.Initiator.Username)

	_, err = svc.JoinCall(ctx, out.CallID, callee, domain.MediaState{Audio: true, Video: true})
	require.NoError(t, err)

	active, err := svc.GetActiveCall(ctx, caller, &room, nil)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, domain.CallStatusActive, active.Call.Status)
	assert.Equal(t, domain.ParticipantJoined, active.Participant(caller).Status)

	require.NoError(t, svc.LeaveCall(ctx, out.CallID, caller))
	require.NoError(t, svc.LeaveCall(ctx, out.CallID, callee))

	history, err := svc.GetCallHistory(ctx, caller, &callService.HistoryInput{RoomID: &room})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.CallStatusEnded, history[0].Call.Status)
	assert.NotNil(t, history[0].Call.DurationMs)
}
