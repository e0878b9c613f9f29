package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// UserStore is an in-memory user directory
type UserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domain.User
}

// NewUserStore creates an empty user directory
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]domain.User)}
}

// Put adds or replaces a user
func (s *UserStore) Put(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = *user
}

// GetByIDs resolves the known users among ids. Unknown ids are omitted.
func (s *UserStore) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			user := u
			out[id] = &user
		}
	}
	return out, nil
}
