package call

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	apperrors "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/errors"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/logger"
)

// CreatePeerConnection opens a pending relay record from the caller to toUserID
func (s *Service) CreatePeerConnection(ctx context.Context, callID, fromUserID, toUserID uuid.UUID, offer *string) (*domain.PeerConnection, error) {
	const op = "peer_connection_create"

	if fromUserID == uuid.Nil {
		return nil, s.fail(op, apperrors.UnauthorizedError("Authentication required"))
	}
	if toUserID == uuid.Nil {
		return nil, s.fail(op, apperrors.ValidationError("to_user_id is required"))
	}

	pc := &domain.PeerConnection{
		ConnectionID:  uuid.New(),
		CallID:        callID,
		FromUserID:    fromUserID,
		ToUserID:      toUserID,
		Offer:         offer,
		ICECandidates: []string{},
		Status:        domain.PeerConnectionPending,
		CreatedAt:     s.now().UTC(),
	}

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetCall(ctx, callID); err != nil {
			return storeError(err, apperrors.CallNotFoundError())
		}
		return s.repo.CreatePeerConnection(ctx, pc)
	})
	if err != nil {
		return nil, s.fail(op, storeError(err, nil))
	}

	s.metrics.RecordSignalingUpdate("create")
	s.notify(ctx, callID, domain.CallChangePeerConnection, fromUserID, []uuid.UUID{fromUserID, toUserID})
	return pc, nil
}

// UpdatePeerConnectionInput carries the optional fields of a relay update
type UpdatePeerConnectionInput struct {
	ConnectionID uuid.UUID
	Answer       *string
	ICECandidate *string
	Status       *domain.PeerConnectionStatus
}

// UpdatePeerConnection patches a relay record. A candidate is appended by
// reading the record and writing the whole list back.
func (s *Service) UpdatePeerConnection(ctx context.Context, userID uuid.UUID, input *UpdatePeerConnectionInput) (*domain.PeerConnection, error) {
	const op = "peer_connection_update"

	if userID == uuid.Nil {
		return nil, s.fail(op, apperrors.UnauthorizedError("Authentication required"))
	}
	if input.Status != nil && !input.Status.Valid() {
		return nil, s.fail(op, apperrors.ValidationError("unknown peer connection status"))
	}

	var updated *domain.PeerConnection
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		pc, err := s.repo.GetPeerConnection(ctx, input.ConnectionID)
		if err != nil {
			return storeError(err, apperrors.PeerConnectionNotFoundError())
		}
		if !pc.Involves(userID) {
			return apperrors.ForbiddenError("You are not a party of this peer connection")
		}

		if input.Answer != nil {
			pc.Answer = input.Answer
		}
		if input.ICECandidate != nil {
			pc.ICECandidates = append(pc.ICECandidates, *input.ICECandidate)
		}
		if input.Status != nil {
			pc.Status = *input.Status
		}

		if err := s.repo.UpdatePeerConnection(ctx, pc); err != nil {
			return err
		}
		updated = pc
		return nil
	})
	if err != nil {
		return nil, s.fail(op, storeError(err, nil))
	}

	s.metrics.RecordSignalingUpdate("update")
	logger.FromContext(ctx).Debug("Peer connection updated",
		zap.String("connection_id", updated.ConnectionID.String()),
		zap.String("status", string(updated.Status)),
		zap.Int("ice_candidates", len(updated.ICECandidates)))

	s.notify(ctx, updated.CallID, domain.CallChangePeerConnection, userID,
		[]uuid.UUID{updated.FromUserID, updated.ToUserID})
	return updated, nil
}

// GetPeerConnections returns the call's relay records where the caller is a party
func (s *Service) GetPeerConnections(ctx context.Context, userID, callID uuid.UUID) ([]*domain.PeerConnection, error) {
	if userID == uuid.Nil {
		return []*domain.PeerConnection{}, nil
	}

	connections, err := s.repo.ListPeerConnections(ctx, callID, userID)
	if err != nil {
		return nil, storeError(err, nil)
	}
	if connections == nil {
		connections = []*domain.PeerConnection{}
	}
	return connections, nil
}
