package callclient

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

func TestEventTracker_IncomingOncePerCall(t *testing.T) {
	tr := newEventTracker(uuid.New())
	snapshot := ringSnapshot(uuid.New(), uuid.New(), domain.CallTypeVideo)

	events := tr.Diff(snapshot)
	require.Len(t, events, 1)
	assert.IsType(t, IncomingCallEvent{}, events[0])

	assert.Empty(t, tr.Diff(snapshot))
	assert.Empty(t, tr.Diff(snapshot))
}

func TestEventTracker_ActiveTransitionOnce(t *testing.T) {
	tr := newEventTracker(uuid.New())
	callID := uuid.New()

	assert.Empty(t, tr.Diff(activeSnapshot(callID, domain.CallStatusRinging)))

	events := tr.Diff(activeSnapshot(callID, domain.CallStatusActive))
	require.Len(t, events, 1)
	assert.Equal(t, CallBecameActiveEvent{CallID: callID}, events[0])

	assert.Empty(t, tr.Diff(activeSnapshot(callID, domain.CallStatusActive)))
}

func TestEventTracker_EndedWhenCallDisappears(t *testing.T) {
	tr := newEventTracker(uuid.New())
	callID := uuid.New()
	tr.Diff(activeSnapshot(callID, domain.CallStatusActive))

	events := tr.Diff(&domain.CallSnapshot{})
	require.Len(t, events, 1)
	assert.Equal(t, CallEndedEvent{CallID: callID}, events[0])

	assert.Empty(t, tr.Diff(&domain.CallSnapshot{}))
}

func TestEventTracker_EndedCallStaysQuiet(t *testing.T) {
	tr := newEventTracker(uuid.New())
	callID := uuid.New()
	tr.Diff(activeSnapshot(callID, domain.CallStatusActive))
	tr.Diff(&domain.CallSnapshot{})

	// a stale snapshot replaying the ended call must not resurrect it
	assert.Empty(t, tr.Diff(activeSnapshot(callID, domain.CallStatusActive)))
	assert.Empty(t, tr.Diff(&domain.CallSnapshot{}))
}

func TestEventTracker_EndedIDsAreBounded(t *testing.T) {
	tr := newEventTracker(uuid.New())
	first := uuid.New()
	tr.Diff(activeSnapshot(first, domain.CallStatusActive))
	tr.Diff(&domain.CallSnapshot{})

	for i := 0; i < maxEndedCalls+10; i++ {
		tr.Diff(activeSnapshot(uuid.New(), domain.CallStatusActive))
		tr.Diff(&domain.CallSnapshot{})
	}

	assert.Len(t, tr.ended, maxEndedCalls)
	assert.Len(t, tr.endOrder, maxEndedCalls)
	assert.NotContains(t, tr.ended, first)
	assert.Empty(t, tr.active)
}

func TestEventTracker_EndingsPrecedeNewRing(t *testing.T) {
	tr := newEventTracker(uuid.New())
	oldID, newID := uuid.New(), uuid.New()
	tr.Diff(activeSnapshot(oldID, domain.CallStatusActive))

	events := tr.Diff(ringSnapshot(newID, uuid.New(), domain.CallTypeAudio))
	require.Len(t, events, 2)
	assert.Equal(t, CallEndedEvent{CallID: oldID}, events[0])
	assert.Equal(t, newID, events[1].EventCallID())
}

func TestEventTracker_ParticipantDepartures(t *testing.T) {
	self, peer, other := uuid.New(), uuid.New(), uuid.New()
	tr := newEventTracker(self)
	callID := uuid.New()

	events := tr.Diff(activeSnapshot(callID, domain.CallStatusActive,
		participant(callID, self, domain.ParticipantLeft),
		participant(callID, peer, domain.ParticipantDeclined),
		participant(callID, other, domain.ParticipantJoined)))

	require.Len(t, events, 2)
	assert.Equal(t, CallBecameActiveEvent{CallID: callID}, events[0])
	assert.Equal(t, ParticipantLeftEvent{CallID: callID, UserID: peer}, events[1])

	events = tr.Diff(activeSnapshot(callID, domain.CallStatusActive,
		participant(callID, peer, domain.ParticipantDeclined),
		participant(callID, other, domain.ParticipantLeft)))
	require.Len(t, events, 1)
	assert.Equal(t, ParticipantLeftEvent{CallID: callID, UserID: other}, events[0])
}

func TestEventTracker_NilSnapshot(t *testing.T) {
	tr := newEventTracker(uuid.New())
	assert.Nil(t, tr.Diff(nil))
}
