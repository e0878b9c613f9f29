package call

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	apperrors "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/errors"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/pagination"
)

// GetActiveCall returns the caller's live call, optionally restricted to a
// room or conversation. Rows are scanned newest first and the first live
// match wins. Returns nil when there is none.
func (s *Service) GetActiveCall(ctx context.Context, userID uuid.UUID, roomID, conversationID *uuid.UUID) (*domain.ActiveCall, error) {
	if userID == uuid.Nil {
		return nil, nil
	}

	rows, err := s.repo.ListUserParticipations(ctx, userID, domain.ParticipantInvited, domain.ParticipantJoined)
	if err != nil {
		return nil, storeError(err, nil)
	}

	for _, row := range rows {
		call, err := s.repo.GetCall(ctx, row.CallID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeError(err, nil)
		}
		if !call.IsLive() || !call.MatchesContext(roomID, conversationID) {
			continue
		}
		return s.activeSnapshot(ctx, call, userID)
	}
	return nil, nil
}

// GetIncomingCall returns the newest ringing call the caller was invited to
// by someone else, or nil
func (s *Service) GetIncomingCall(ctx context.Context, userID uuid.UUID) (*domain.IncomingCall, error) {
	if userID == uuid.Nil {
		return nil, nil
	}

	rows, err := s.repo.ListUserParticipations(ctx, userID, domain.ParticipantInvited)
	if err != nil {
		return nil, storeError(err, nil)
	}

	for _, row := range rows {
		call, err := s.repo.GetCall(ctx, row.CallID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeError(err, nil)
		}
		if call.Status != domain.CallStatusRinging || call.InitiatorID == userID {
			continue
		}

		users, err := s.lookupUsers(ctx, []uuid.UUID{call.InitiatorID})
		if err != nil {
			return nil, err
		}
		return &domain.IncomingCall{
			Call:      call,
			Initiator: summaryOf(users, call.InitiatorID),
		}, nil
	}
	return nil, nil
}

// HistoryInput scopes a call history query
type HistoryInput struct {
	RoomID         *uuid.UUID
	ConversationID *uuid.UUID
	Limit          int
}

// GetCallHistory lists ended calls newest first. With a room or conversation
// it lists that context's calls; without one it lists the caller's own calls.
func (s *Service) GetCallHistory(ctx context.Context, userID uuid.UUID, input *HistoryInput) ([]*domain.CallRecord, error) {
	if userID == uuid.Nil {
		return []*domain.CallRecord{}, nil
	}
	if input == nil {
		input = &HistoryInput{}
	}
	if input.RoomID != nil && input.ConversationID != nil {
		return nil, apperrors.ValidationError("at most one of room_id or conversation_id may be given")
	}

	limit := pagination.Clamp(input.Limit, s.historyDefaultLimit, s.historyMaxLimit)

	var (
		calls []*domain.Call
		err   error
	)
	if input.RoomID != nil || input.ConversationID != nil {
		calls, err = s.repo.ListCalls(ctx, domain.CallFilter{
			RoomID:         input.RoomID,
			ConversationID: input.ConversationID,
			Status:         domain.CallStatusEnded,
			Limit:          limit,
		})
	} else {
		calls, err = s.userEndedCalls(ctx, userID, limit)
	}
	if err != nil {
		return nil, storeError(err, nil)
	}

	records := make([]*domain.CallRecord, 0, len(calls))
	for _, call := range calls {
		record, err := s.callRecord(ctx, call)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// GetCallStatus returns a call with its participants. Only users with a row
// in the call may read it.
func (s *Service) GetCallStatus(ctx context.Context, userID, callID uuid.UUID) (*domain.CallRecord, error) {
	if userID == uuid.Nil {
		return nil, nil
	}

	call, err := s.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, storeError(err, apperrors.CallNotFoundError())
	}
	if _, err := s.repo.GetParticipant(ctx, callID, userID); err != nil {
		return nil, storeError(err, apperrors.ForbiddenError("You are not a participant of this call"))
	}

	return s.callRecord(ctx, call)
}

func (s *Service) userEndedCalls(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error) {
	rows, err := s.repo.ListUserParticipations(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(rows))
	calls := make([]*domain.Call, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.CallID]; ok {
			continue
		}
		seen[row.CallID] = struct{}{}

		call, err := s.repo.GetCall(ctx, row.CallID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if call.Status == domain.CallStatusEnded {
			calls = append(calls, call)
		}
	}

	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].StartedAt.After(calls[j].StartedAt)
	})
	if len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

func (s *Service) activeSnapshot(ctx context.Context, call *domain.Call, userID uuid.UUID) (*domain.ActiveCall, error) {
	record, err := s.callRecord(ctx, call)
	if err != nil {
		return nil, err
	}

	connections, err := s.repo.ListPeerConnections(ctx, call.CallID, userID)
	if err != nil {
		return nil, storeError(err, nil)
	}

	return &domain.ActiveCall{
		Call:            call,
		Participants:    record.Participants,
		Initiator:       record.Initiator,
		PeerConnections: connections,
	}, nil
}

func (s *Service) callRecord(ctx context.Context, call *domain.Call) (*domain.CallRecord, error) {
	participants, err := s.repo.ListParticipants(ctx, call.CallID)
	if err != nil {
		return nil, storeError(err, nil)
	}

	ids := append(participantUserIDs(participants), call.InitiatorID)
	users, err := s.lookupUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]*domain.ParticipantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, &domain.ParticipantView{
			CallParticipant: *p,
			User:            summaryOf(users, p.UserID),
		})
	}

	return &domain.CallRecord{
		Call:         call,
		Participants: views,
		Initiator:    summaryOf(users, call.InitiatorID),
	}, nil
}

func (s *Service) lookupUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	if s.users == nil {
		return nil, nil
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, storeError(err, nil)
	}
	return users, nil
}

// summaryOf falls back to a bare id when the directory does not know the user
func summaryOf(users map[uuid.UUID]*domain.User, userID uuid.UUID) *domain.UserSummary {
	if u, ok := users[userID]; ok && u != nil {
		return u.ToSummary()
	}
	return &domain.UserSummary{UserID: userID}
}
