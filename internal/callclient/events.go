package callclient

import (
	"github.com/google/uuid"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// Event is a call change derived from subscription snapshots
type Event interface {
	EventCallID() uuid.UUID
}

// IncomingCallEvent: another user is ringing us
type IncomingCallEvent struct {
	Incoming *domain.IncomingCall
}

// CallBecameActiveEvent: someone joined and the call is connected
type CallBecameActiveEvent struct {
	CallID uuid.UUID
}

// ParticipantLeftEvent: another participant left or declined
type ParticipantLeftEvent struct {
	CallID uuid.UUID
	UserID uuid.UUID
}

// CallEndedEvent: a call we could see is no longer live for us
type CallEndedEvent struct {
	CallID uuid.UUID
}

func (e IncomingCallEvent) EventCallID() uuid.UUID     { return e.Incoming.Call.CallID }
func (e CallBecameActiveEvent) EventCallID() uuid.UUID { return e.CallID }
func (e ParticipantLeftEvent) EventCallID() uuid.UUID  { return e.CallID }
func (e CallEndedEvent) EventCallID() uuid.UUID        { return e.CallID }

// maxEndedCalls bounds how many ended call ids stay suppressed; the oldest
// is forgotten first
const maxEndedCalls = 256

type participantKey struct {
	callID uuid.UUID
	userID uuid.UUID
}

// eventTracker diffs consecutive snapshots into events. Each event is
// emitted at most once per call id (per participant for departures), so
// repeated snapshots of the same state are silent.
type eventTracker struct {
	self uuid.UUID

	live     map[uuid.UUID]bool
	incoming map[uuid.UUID]bool
	active   map[uuid.UUID]bool
	left     map[participantKey]bool
	ended    map[uuid.UUID]bool
	endOrder []uuid.UUID
}

func newEventTracker(self uuid.UUID) *eventTracker {
	return &eventTracker{
		self:     self,
		live:     make(map[uuid.UUID]bool),
		incoming: make(map[uuid.UUID]bool),
		active:   make(map[uuid.UUID]bool),
		left:     make(map[participantKey]bool),
		ended:    make(map[uuid.UUID]bool),
	}
}

// Diff returns the events implied by snapshot, in order: endings first so a
// new ring is never shadowed by the call it replaces
func (t *eventTracker) Diff(snapshot *domain.CallSnapshot) []Event {
	if snapshot == nil {
		return nil
	}

	live := make(map[uuid.UUID]bool)
	if snapshot.Active != nil && snapshot.Active.Call != nil {
		live[snapshot.Active.Call.CallID] = true
	}
	if snapshot.Incoming != nil && snapshot.Incoming.Call != nil {
		live[snapshot.Incoming.Call.CallID] = true
	}

	var events []Event
	for callID := range t.live {
		if live[callID] || t.ended[callID] {
			continue
		}
		t.markEnded(callID)
		t.forget(callID)
		events = append(events, CallEndedEvent{CallID: callID})
	}
	for callID := range live {
		if t.ended[callID] {
			delete(live, callID)
		}
	}
	t.live = live

	if in := snapshot.Incoming; in != nil && in.Call != nil && live[in.Call.CallID] && !t.incoming[in.Call.CallID] {
		t.incoming[in.Call.CallID] = true
		events = append(events, IncomingCallEvent{Incoming: in})
	}

	if a := snapshot.Active; a != nil && a.Call != nil && live[a.Call.CallID] {
		callID := a.Call.CallID
		if a.Call.Status == domain.CallStatusActive && !t.active[callID] {
			t.active[callID] = true
			events = append(events, CallBecameActiveEvent{CallID: callID})
		}
		for _, p := range a.Participants {
			if p.UserID == t.self || !(p.Status == domain.ParticipantLeft || p.Status == domain.ParticipantDeclined) {
				continue
			}
			key := participantKey{callID: callID, userID: p.UserID}
			if t.left[key] {
				continue
			}
			t.left[key] = true
			events = append(events, ParticipantLeftEvent{CallID: callID, UserID: p.UserID})
		}
	}

	return events
}

func (t *eventTracker) markEnded(callID uuid.UUID) {
	t.ended[callID] = true
	t.endOrder = append(t.endOrder, callID)
	if len(t.endOrder) > maxEndedCalls {
		delete(t.ended, t.endOrder[0])
		t.endOrder = t.endOrder[1:]
	}
}

// forget drops per-call markers once a call has ended; ended keeps it quiet
func (t *eventTracker) forget(callID uuid.UUID) {
	delete(t.incoming, callID)
	delete(t.active, callID)
	for key := range t.left {
		if key.callID == callID {
			delete(t.left, key)
		}
	}
}
