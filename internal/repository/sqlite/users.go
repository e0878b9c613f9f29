package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// UpsertUser inserts or replaces a user profile
func (s *Store) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (user_id, username, display_name, avatar_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url
	`

	_, err := s.conn(ctx).ExecContext(ctx, query,
		user.UserID.String(),
		user.Username,
		user.DisplayName,
		nullString(user.AvatarURL),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// GetByIDs resolves the known users among ids. Unknown ids are omitted.
func (s *Store) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	out := make(map[uuid.UUID]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id.String()
	}
	query := `SELECT user_id, username, display_name, avatar_url
		FROM users
		WHERE user_id IN (` + strings.Join(marks, ", ") + `)`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			user   domain.User
			avatar sql.NullString
		)
		if err := rows.Scan(&user.UserID, &user.Username, &user.DisplayName, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.AvatarURL = stringPtr(avatar)
		out[user.UserID] = &user
	}

	return out, rows.Err()
}
