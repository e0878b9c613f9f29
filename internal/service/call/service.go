// Package call implements the authoritative call lifecycle: the call and
// participant state machine, snapshot queries and the peer connection relay.
package call

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	apperrors "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/errors"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/logger"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/metrics"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/pagination"
)

// CallRepository is the call record store
type CallRepository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateCall(ctx context.Context, call *domain.Call) error
	GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	UpdateCallStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error
	EndCall(ctx context.Context, callID uuid.UUID, endedAt time.Time) error
	ListCalls(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, error)

	CreateParticipant(ctx context.Context, p *domain.CallParticipant) error
	GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error)
	UpdateParticipant(ctx context.Context, p *domain.CallParticipant) error
	ListParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error)
	CountParticipants(ctx context.Context, callID uuid.UUID, statuses ...domain.ParticipantStatus) (int, error)
	ListUserParticipations(ctx context.Context, userID uuid.UUID, statuses ...domain.ParticipantStatus) ([]*domain.CallParticipant, error)

	CreatePeerConnection(ctx context.Context, pc *domain.PeerConnection) error
	GetPeerConnection(ctx context.Context, connectionID uuid.UUID) (*domain.PeerConnection, error)
	UpdatePeerConnection(ctx context.Context, pc *domain.PeerConnection) error
	ListPeerConnections(ctx context.Context, callID, userID uuid.UUID) ([]*domain.PeerConnection, error)
}

// UserDirectory resolves user identities for snapshot enrichment
type UserDirectory interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error)
}

// ChangePublisher notifies subscribers that a call changed
type ChangePublisher interface {
	PublishCallChange(ctx context.Context, userIDs []uuid.UUID, change *domain.CallChange) error
}

// Service handles call lifecycle business logic
type Service struct {
	repo      CallRepository
	users     UserDirectory
	publisher ChangePublisher
	metrics   *metrics.Metrics
	now       func() time.Time

	historyDefaultLimit int
	historyMaxLimit     int
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records call metrics on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHistoryLimits sets the default and maximum call history page size
func WithHistoryLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if defaultLimit > 0 {
			s.historyDefaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.historyMaxLimit = maxLimit
		}
	}
}

// NewService creates a new call service. publisher may be nil.
func NewService(repo CallRepository, users UserDirectory, publisher ChangePublisher, opts ...Option) *Service {
	s := &Service{
		repo:                repo,
		users:               users,
		publisher:           publisher,
		now:                 time.Now,
		historyDefaultLimit: pagination.DefaultLimit,
		historyMaxLimit:     pagination.MaxLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitiateCallInput contains call initiation data
type InitiateCallInput struct {
	CallerID       uuid.UUID
	Type           domain.CallType
	ParticipantIDs []uuid.UUID
	RoomID         *uuid.UUID
	ConversationID *uuid.UUID
}

// InitiateCallOutput contains the created call and the invited users
type InitiateCallOutput struct {
	CallID     uuid.UUID
	Call       *domain.Call
	InvitedIDs []uuid.UUID
}

// InitiateCall starts a ringing call. The caller gets an invited row with
// audio on; every distinct other participant gets an invited row.
func (s *Service) InitiateCall(ctx context.Context, input *InitiateCallInput) (*InitiateCallOutput, error) {
	const op = "initiate"

	if input.CallerID == uuid.Nil {
		return nil, s.fail(op, apperrors.UnauthorizedError("Authentication required"))
	}
	if !input.Type.Valid() {
		return nil, s.fail(op, apperrors.ValidationError("call type must be audio or video"))
	}
	if (input.RoomID == nil) == (input.ConversationID == nil) {
		return nil, s.fail(op, apperrors.ValidationError("exactly one of room_id or conversation_id is required"))
	}

	now := s.now().UTC()
	call := &domain.Call{
		CallID:         uuid.New(),
		RoomID:         input.RoomID,
		ConversationID: input.ConversationID,
		InitiatorID:    input.CallerID,
		Type:           input.Type,
		Status:         domain.CallStatusRinging,
		StartedAt:      now,
	}

	var invited []uuid.UUID
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		invited = invited[:0]

		if err := s.repo.CreateCall(ctx, call); err != nil {
			return err
		}

		caller := &domain.CallParticipant{
			ParticipantID: uuid.New(),
			CallID:        call.CallID,
			UserID:        input.CallerID,
			Status:        domain.ParticipantInvited,
			MediaState:    &domain.MediaState{Audio: true, Video: input.Type == domain.CallTypeVideo},
			CreatedAt:     now,
		}
		if err := s.repo.CreateParticipant(ctx, caller); err != nil {
			return err
		}

		for _, userID := range input.ParticipantIDs {
			if userID == uuid.Nil || userID == input.CallerID {
				continue
			}
			_, err := s.repo.GetParticipant(ctx, call.CallID, userID)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}

			// Offsets keep creation order stable under ORDER BY created_at.
			createdAt := now.Add(time.Duration(len(invited)+1) * time.Microsecond)
			if err := s.repo.CreateParticipant(ctx, &domain.CallParticipant{
				ParticipantID: uuid.New(),
				CallID:        call.CallID,
				UserID:        userID,
				Status:        domain.ParticipantInvited,
				CreatedAt:     createdAt,
			}); err != nil {
				return err
			}
			invited = append(invited, userID)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(op, storeError(err, nil))
	}

	s.metrics.RecordCallInitiated(string(call.Type))
	logger.FromContext(ctx).Info("Call initiated",
		zap.String("call_id", call.CallID.String()),
		zap.String("type", string(call.Type)),
		zap.Int("invited", len(invited)))

	s.notify(ctx, call.CallID, domain.CallChangeInitiated, input.CallerID,
		append([]uuid.UUID{input.CallerID}, invited...))

	return &InitiateCallOutput{
		CallID:     call.CallID,
		Call:       call,
		InvitedIDs: invited,
	}, nil
}

// JoinCall marks the caller joined with the given media state. The first
// join of a ringing call makes it active and flips the initiator's invited
// row to joined.
func (s *Service) JoinCall(ctx context.Context, callID, userID uuid.UUID, media domain.MediaState) (uuid.UUID, error) {
	const op = "join"

	if userID == uuid.Nil {
		return uuid.Nil, s.fail(op, apperrors.UnauthorizedError("Authentication required"))
	}

	var participantID uuid.UUID
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		call, err := s.repo.GetCall(ctx, callID)
		if err != nil {
			return storeError(err, apperrors.CallNotFoundError())
		}
		if call.Status == domain.CallStatusEnded {
			return apperrors.InvalidStateError("Call has ended")
		}

		p, err := s.repo.GetParticipant(ctx, callID, userID)
		if err != nil {
			return storeError(err, apperrors.NotInvitedError("You are not invited to this call"))
		}

		now := s.now().UTC()
		m := media
		p.Status = domain.ParticipantJoined
		p.JoinedAt = &now
		p.MediaState = &m
		if err := s.repo.UpdateParticipant(ctx, p); err != nil {
			return err
		}
		participantID = p.ParticipantID

		if call.Status != domain.CallStatusRinging {
			return nil
		}
		if err := s.repo.UpdateCallStatus(ctx, callID, domain.CallStatusActive); err != nil {
			return err
		}
		if call.InitiatorID == userID {
			return nil
		}

		initiator, err := s.repo.GetParticipant(ctx, callID, call.InitiatorID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if initiator.Status != domain.ParticipantInvited {
			return nil
		}
		initiator.Status = domain.ParticipantJoined
		initiator.JoinedAt = &now
		return s.repo.UpdateParticipant(ctx, initiator)
	})
	if err != nil {
		return uuid.Nil, s.fail(op, storeError(err, nil))
	}

	s.notifyParticipants(ctx, callID, domain.CallChangeJoined, userID)
	return participantID, nil
}

// LeaveCall marks the caller left and ends the call once nobody is joined
// or invited anymore. Leaving twice re-patches the row.
func (s *Service) LeaveCall(ctx context.Context, callID, userID uuid.UUID) error {
	const op = "leave"

	if userID == uuid.Nil {
		return s.fail(op, apperrors.UnauthorizedError("Authentication required"))
	}

	var ended *domain.Call
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		ended = nil

		p, err := s.repo.GetParticipant(ctx, callID, userID)
		if err != nil {
			return storeError(err, apperrors.NotInvitedError("You are not a participant of this call"))
		}

		now := s.now().UTC()
		p.Status = domain.ParticipantLeft
		p.LeftAt = &now
		if err := s.repo.UpdateParticipant(ctx, p); err != nil {
			return err
		}

		remaining, err := s.repo.CountParticipants(ctx, callID, domain.ActiveSet...)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		call, err := s.repo.GetCall(ctx, callID)
		if err != nil {
			return storeError(err, apperrors.CallNotFoundError())
		}
		if call.Status == domain.CallStatusEnded {
			return nil
		}
		if err := s.repo.EndCall(ctx, callID, now); err != nil {
			return err
		}
		ended = call
		ended.Status = domain.CallStatusEnded
		ended.EndedAt = &now
		return nil
	})
	if err != nil {
		return s.fail(op, storeError(err, nil))
	}

	kind := domain.CallChangeLeft
	if ended != nil {
		kind = domain.CallChangeEnded
		duration := ended.EndedAt.Sub(ended.StartedAt)
		s.metrics.RecordCallEnded(string(ended.Type), duration)
		logger.FromContext(ctx).Info("Call ended",
			zap.String("call_id", callID.String()),
			zap.Duration("duration", duration))
	}
	s.notifyParticipants(ctx, callID, kind, userID)
	return nil
}

// DeclineCall marks an invited caller declined. The call status is never
// recomputed here, so a call whose invitees all decline keeps ringing until
// the initiator leaves.
func (s *Service) DeclineCall(ctx context.Context, callID, userID uuid.UUID) error {
	const op = "decline"

	if userID == uuid.Nil {
		return s.fail(op, apperrors.UnauthorizedError("Authentication required"))
	}

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetParticipant(ctx, callID, userID)
		if err != nil {
			return storeError(err, apperrors.NotInvitedError("You are not invited to this call"))
		}
		if p.Status != domain.ParticipantInvited {
			return apperrors.NotInvitedError("Only a pending invitation can be declined")
		}

		p.Status = domain.ParticipantDeclined
		return s.repo.UpdateParticipant(ctx, p)
	})
	if err != nil {
		return s.fail(op, storeError(err, nil))
	}

	s.notifyParticipants(ctx, callID, domain.CallChangeDeclined, userID)
	return nil
}

// UpdateMediaState replaces the media toggles of a joined participant
func (s *Service) UpdateMediaState(ctx context.Context, callID, userID uuid.UUID, media domain.MediaState) error {
	const op = "media"

	if userID == uuid.Nil {
		return s.fail(op, apperrors.UnauthorizedError("Authentication required"))
	}

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetParticipant(ctx, callID, userID)
		if err != nil {
			return storeError(err, apperrors.NotInvitedError("You are not a participant of this call"))
		}
		if p.Status != domain.ParticipantJoined {
			return apperrors.InvalidStateError("Only joined participants can update media state")
		}

		m := media
		p.MediaState = &m
		return s.repo.UpdateParticipant(ctx, p)
	})
	if err != nil {
		return s.fail(op, storeError(err, nil))
	}

	s.notifyParticipants(ctx, callID, domain.CallChangeMedia, userID)
	return nil
}

// fail records a rejected operation and returns err unchanged
func (s *Service) fail(op string, err error) error {
	reason := string(apperrors.ErrCodeInternal)
	if appErr := apperrors.GetAppError(err); appErr != nil {
		reason = string(appErr.Code)
	}
	s.metrics.RecordCallFailure(op, reason)
	return err
}

// storeError maps repository errors onto AppErrors. AppErrors pass through;
// ErrNotFound becomes notFound when given.
func storeError(err error, notFound *apperrors.AppError) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if notFound != nil && errors.Is(err, domain.ErrNotFound) {
		return notFound
	}
	return apperrors.DatabaseError(err)
}

// notifyParticipants publishes a change to every user with a row in the call
func (s *Service) notifyParticipants(ctx context.Context, callID uuid.UUID, kind domain.CallChangeKind, actorID uuid.UUID) {
	if s.publisher == nil {
		s.notify(ctx, callID, kind, actorID, nil)
		return
	}
	participants, err := s.repo.ListParticipants(ctx, callID)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to resolve call change recipients",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		return
	}
	s.notify(ctx, callID, kind, actorID, participantUserIDs(participants))
}

// notify publishes after commit. Failures are logged, never returned.
func (s *Service) notify(ctx context.Context, callID uuid.UUID, kind domain.CallChangeKind, actorID uuid.UUID, userIDs []uuid.UUID) {
	s.metrics.RecordCallTransition(string(kind))
	if s.publisher == nil || len(userIDs) == 0 {
		return
	}

	err := s.publisher.PublishCallChange(ctx, userIDs, &domain.CallChange{
		CallID:    callID,
		Kind:      kind,
		ActorID:   actorID,
		Timestamp: s.now().UTC(),
	})
	s.metrics.RecordChangePublish(err)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to publish call change",
			zap.String("call_id", callID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func participantUserIDs(participants []*domain.CallParticipant) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(participants))
	ids := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		ids = append(ids, p.UserID)
	}
	return ids
}
