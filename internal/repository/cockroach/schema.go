package cockroach

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// callSchema creates the user directory and call record tables and their secondary indexes.
// Participant uniqueness per (call_id, user_id) is enforced by the service,
// not by a constraint.
var callSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id      UUID PRIMARY KEY,
		username     TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url   TEXT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS calls (
		call_id         UUID PRIMARY KEY,
		room_id         UUID NULL,
		conversation_id UUID NULL,
		initiator_id    UUID NOT NULL,
		call_type       TEXT NOT NULL,
		status          TEXT NOT NULL,
		started_at      TIMESTAMPTZ NOT NULL,
		ended_at        TIMESTAMPTZ NULL,
		duration_ms     BIGINT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS calls_by_room ON calls (room_id, started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS calls_by_conversation ON calls (conversation_id, started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS call_participants (
		participant_id UUID PRIMARY KEY,
		call_id        UUID NOT NULL REFERENCES calls (call_id),
		user_id        UUID NOT NULL,
		status         TEXT NOT NULL,
		joined_at      TIMESTAMPTZ NULL,
		left_at        TIMESTAMPTZ NULL,
		media_audio    BOOLEAN NULL,
		media_video    BOOLEAN NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS call_participants_by_call ON call_participants (call_id, status)`,
	`CREATE INDEX IF NOT EXISTS call_participants_by_user ON call_participants (user_id, status, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS peer_connections (
		connection_id  UUID PRIMARY KEY,
		call_id        UUID NOT NULL REFERENCES calls (call_id),
		from_user_id   UUID NOT NULL,
		to_user_id     UUID NOT NULL,
		offer          TEXT NULL,
		answer         TEXT NULL,
		ice_candidates TEXT[] NOT NULL DEFAULT ARRAY[]::TEXT[],
		status         TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS peer_connections_by_call ON peer_connections (call_id, created_at)`,
}

// EnsureSchema creates the call tables if they do not exist yet
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range callSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply call schema: %w", err)
		}
	}
	return nil
}
