package callclient

import (
	"context"

	"github.com/google/uuid"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// CallRequest describes a call to start
type CallRequest struct {
	Type           domain.CallType
	ParticipantIDs []uuid.UUID
	RoomID         *uuid.UUID
	ConversationID *uuid.UUID
}

// Backend is the call lifecycle service as seen by one authenticated user
type Backend interface {
	InitiateCall(ctx context.Context, req *CallRequest) (uuid.UUID, error)
	JoinCall(ctx context.Context, callID uuid.UUID, media domain.MediaState) error
	LeaveCall(ctx context.Context, callID uuid.UUID) error
	DeclineCall(ctx context.Context, callID uuid.UUID) error
	UpdateMediaState(ctx context.Context, callID uuid.UUID, media domain.MediaState) error
	GetActiveCall(ctx context.Context, roomID, conversationID *uuid.UUID) (*domain.ActiveCall, error)
}
