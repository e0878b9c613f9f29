package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/logger"
)

// Broker fans call changes out to in-process subscribers keyed by user
type Broker struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscription]struct{}
	buffer int
}

type subscription struct {
	ch   chan *domain.CallChange
	once sync.Once
}

// NewBroker creates a broker whose subscriber channels hold up to buffer changes
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{
		subs:   make(map[uuid.UUID]map[*subscription]struct{}),
		buffer: buffer,
	}
}

// PublishCallChange delivers change to every subscriber of each user.
// A subscriber whose buffer is full misses the change; the next change
// triggers a fresh re-query anyway.
func (b *Broker) PublishCallChange(ctx context.Context, userIDs []uuid.UUID, change *domain.CallChange) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, userID := range userIDs {
		for sub := range b.subs[userID] {
			select {
			case sub.ch <- change:
			default:
				logger.Warn("Dropping call change for slow subscriber",
					zap.String("user_id", userID.String()),
					zap.String("call_id", change.CallID.String()))
			}
		}
	}
	return nil
}

// SubscribeUser registers a subscriber for a user's call changes. The returned
// cancel func unregisters it and closes the channel.
func (b *Broker) SubscribeUser(ctx context.Context, userID uuid.UUID) (<-chan *domain.CallChange, func(), error) {
	sub := &subscription{ch: make(chan *domain.CallChange, b.buffer)}

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*subscription]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], sub)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}
