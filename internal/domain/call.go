package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a referenced row does not exist
var ErrNotFound = errors.New("not found")

// CallType is the media kind a call was started with
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// CallStatus is the lifecycle state of a call
type CallStatus string

const (
	CallStatusRinging CallStatus = "ringing"
	CallStatusActive  CallStatus = "active"
	CallStatusEnded   CallStatus = "ended"
)

// ParticipantStatus is the membership state of a user within a call
type ParticipantStatus string

const (
	ParticipantInvited  ParticipantStatus = "invited"
	ParticipantJoined   ParticipantStatus = "joined"
	ParticipantLeft     ParticipantStatus = "left"
	ParticipantDeclined ParticipantStatus = "declined"
)

// ActiveSet lists the participant statuses that keep a call alive.
// A call ends when no participant is left in one of these states.
var ActiveSet = []ParticipantStatus{ParticipantJoined, ParticipantInvited}

// PeerConnectionStatus is the status of a signaling relay record
type PeerConnectionStatus string

const (
	PeerConnectionPending   PeerConnectionStatus = "pending"
	PeerConnectionConnected PeerConnectionStatus = "connected"
	PeerConnectionFailed    PeerConnectionStatus = "failed"
	PeerConnectionClosed    PeerConnectionStatus = "closed"
)

// Valid reports whether s is a known peer connection status
func (s PeerConnectionStatus) Valid() bool {
	switch s {
	case PeerConnectionPending, PeerConnectionConnected, PeerConnectionFailed, PeerConnectionClosed:
		return true
	}
	return false
}

// MediaState holds a participant's audio/video toggles
type MediaState struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// Call represents a video/audio call scoped to a room or a conversation
type Call struct {
	CallID         uuid.UUID  `json:"call_id"`
	RoomID         *uuid.UUID `json:"room_id,omitempty"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	InitiatorID    uuid.UUID  `json:"initiator_id"`
	Type           CallType   `json:"type"`
	Status         CallStatus `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DurationMs     *int64     `json:"duration_ms,omitempty"`
}

// IsLive reports whether the call is still ringing or active
func (c *Call) IsLive() bool {
	return c.Status == CallStatusRinging || c.Status == CallStatusActive
}

// MatchesContext reports whether the call belongs to the given room/conversation.
// A nil filter value matches anything.
func (c *Call) MatchesContext(roomID, conversationID *uuid.UUID) bool {
	if roomID != nil && (c.RoomID == nil || *c.RoomID != *roomID) {
		return false
	}
	if conversationID != nil && (c.ConversationID == nil || *c.ConversationID != *conversationID) {
		return false
	}
	return true
}

// CallParticipant represents a user's membership in a call
type CallParticipant struct {
	ParticipantID uuid.UUID         `json:"participant_id"`
	CallID        uuid.UUID         `json:"call_id"`
	UserID        uuid.UUID         `json:"user_id"`
	Status        ParticipantStatus `json:"status"`
	JoinedAt      *time.Time        `json:"joined_at,omitempty"`
	LeftAt        *time.Time        `json:"left_at,omitempty"`
	MediaState    *MediaState       `json:"media_state,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// InActiveSet reports whether the participant still keeps the call alive
func (p *CallParticipant) InActiveSet() bool {
	for _, s := range ActiveSet {
		if p.Status == s {
			return true
		}
	}
	return false
}

// PeerConnection is a mailbox record relaying opaque signaling payloads
// from one user to another within a call
type PeerConnection struct {
	ConnectionID  uuid.UUID            `json:"connection_id"`
	CallID        uuid.UUID            `json:"call_id"`
	FromUserID    uuid.UUID            `json:"from_user_id"`
	ToUserID      uuid.UUID            `json:"to_user_id"`
	Offer         *string              `json:"offer,omitempty"`
	Answer        *string              `json:"answer,omitempty"`
	ICECandidates []string             `json:"ice_candidates"`
	Status        PeerConnectionStatus `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Involves reports whether the user is either party of the connection
func (pc *PeerConnection) Involves(userID uuid.UUID) bool {
	return pc.FromUserID == userID || pc.ToUserID == userID
}

// ParticipantView is a participant row joined with the user's identity
type ParticipantView struct {
	CallParticipant
	User *UserSummary `json:"user,omitempty"`
}

// ActiveCall is the enriched snapshot returned for a live call
type ActiveCall struct {
	Call            *Call              `json:"call"`
	Participants    []*ParticipantView `json:"participants"`
	Initiator       *UserSummary       `json:"initiator,omitempty"`
	PeerConnections []*PeerConnection  `json:"peer_connections,omitempty"`
}

// Participant returns the participant view for a user, or nil
func (a *ActiveCall) Participant(userID uuid.UUID) *ParticipantView {
	for _, p := range a.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// IncomingCall is a ringing call the user has not answered or declined yet
type IncomingCall struct {
	Call      *Call        `json:"call"`
	Initiator *UserSummary `json:"initiator,omitempty"`
}

// CallRecord is an ended call as shown in call history
type CallRecord struct {
	Call         *Call              `json:"call"`
	Participants []*ParticipantView `json:"participants"`
	Initiator    *UserSummary       `json:"initiator,omitempty"`
}

// CallChangeKind names the mutation that touched a call
type CallChangeKind string

const (
	CallChangeInitiated      CallChangeKind = "initiated"
	CallChangeJoined         CallChangeKind = "joined"
	CallChangeLeft           CallChangeKind = "left"
	CallChangeEnded          CallChangeKind = "ended"
	CallChangeDeclined       CallChangeKind = "declined"
	CallChangeMedia          CallChangeKind = "media"
	CallChangePeerConnection CallChangeKind = "peer_connection"
)

// CallChange is published to every participant after a call mutation commits
type CallChange struct {
	CallID    uuid.UUID      `json:"call_id"`
	Kind      CallChangeKind `json:"kind"`
	ActorID   uuid.UUID      `json:"actor_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// CallFilter narrows call listings
type CallFilter struct {
	RoomID         *uuid.UUID
	ConversationID *uuid.UUID
	Status         CallStatus
	Limit          int
}

// CallSnapshot is the per-user view pushed to subscribed clients: the live
// call the user is part of and the newest unanswered ring
type CallSnapshot struct {
	Active    *ActiveCall   `json:"active"`
	Incoming  *IncomingCall `json:"incoming"`
	Timestamp time.Time     `json:"timestamp"`
}
