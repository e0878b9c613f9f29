package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/database"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/constants"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/logger"
)

// CallEventsRepository fans call changes out over Redis pub/sub, one channel per user
type CallEventsRepository struct {
	client *database.RedisClient
	buffer int
}

// NewCallEventsRepository creates a new CallEventsRepository. buffer sizes
// each subscriber's delivery channel.
func NewCallEventsRepository(client *database.RedisClient, buffer int) *CallEventsRepository {
	if buffer <= 0 {
		buffer = 16
	}
	return &CallEventsRepository{client: client, buffer: buffer}
}

func callEventsChannel(userID uuid.UUID) string {
	return constants.CallEventsChannelPrefix + userID.String()
}

// PublishCallChange publishes change on every user's channel. All users are
// attempted; the first failure is returned.
func (r *CallEventsRepository) PublishCallChange(ctx context.Context, userIDs []uuid.UUID, change *domain.CallChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal call change: %w", err)
	}

	var firstErr error
	for _, userID := range userIDs {
		if err := r.client.SafePublish(ctx, callEventsChannel(userID), payload).Err(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to publish call change to %s: %w", userID, err)
		}
	}
	return firstErr
}

// SubscribeUser subscribes to a user's call changes. The returned cancel func
// closes the subscription and the channel.
func (r *CallEventsRepository) SubscribeUser(ctx context.Context, userID uuid.UUID) (<-chan *domain.CallChange, func(), error) {
	pubsub, err := r.client.SafeSubscribe(ctx, callEventsChannel(userID))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan *domain.CallChange, r.buffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				change, err := decodeCallChange(msg.Payload)
				if err != nil {
					logger.Warn("Discarding malformed call change",
						zap.String("user_id", userID.String()),
						zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-done:
					return
				default:
					logger.Warn("Dropping call change for slow subscriber",
						zap.String("user_id", userID.String()),
						zap.String("call_id", change.CallID.String()))
				}
			}
		}
	}()

	return out, cancel, nil
}

func decodeCallChange(payload string) (*domain.CallChange, error) {
	var change domain.CallChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call change: %w", err)
	}
	if change.CallID == uuid.Nil {
		return nil, fmt.Errorf("call change without call id")
	}
	return &change, nil
}
