// Package sqlite keeps call records in an embedded SQLite database for
// single-node deployments that want state to survive a restart without
// running CockroachDB.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id      TEXT PRIMARY KEY,
		username     TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url   TEXT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS calls (
		call_id         TEXT PRIMARY KEY,
		room_id         TEXT NULL,
		conversation_id TEXT NULL,
		initiator_id    TEXT NOT NULL,
		call_type       TEXT NOT NULL,
		status          TEXT NOT NULL,
		started_at_ns   INTEGER NOT NULL,
		ended_at_ns     INTEGER NULL,
		duration_ms     INTEGER NULL
	)`,
	`CREATE INDEX IF NOT EXISTS calls_by_room ON calls (room_id, started_at_ns DESC)`,
	`CREATE INDEX IF NOT EXISTS calls_by_conversation ON calls (conversation_id, started_at_ns DESC)`,

	`CREATE TABLE IF NOT EXISTS call_participants (
		participant_id TEXT PRIMARY KEY,
		call_id        TEXT NOT NULL REFERENCES calls (call_id),
		user_id        TEXT NOT NULL,
		status         TEXT NOT NULL,
		joined_at_ns   INTEGER NULL,
		left_at_ns     INTEGER NULL,
		media_audio    INTEGER NULL,
		media_video    INTEGER NULL,
		created_at_ns  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS call_participants_by_call ON call_participants (call_id, status)`,
	`CREATE INDEX IF NOT EXISTS call_participants_by_user ON call_participants (user_id, status, created_at_ns DESC)`,

	`CREATE TABLE IF NOT EXISTS peer_connections (
		connection_id  TEXT PRIMARY KEY,
		call_id        TEXT NOT NULL REFERENCES calls (call_id),
		from_user_id   TEXT NOT NULL,
		to_user_id     TEXT NOT NULL,
		offer          TEXT NULL,
		answer         TEXT NULL,
		ice_candidates TEXT NOT NULL DEFAULT '[]',
		status         TEXT NOT NULL,
		created_at_ns  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS peer_connections_by_call ON peer_connections (call_id, created_at_ns)`,
}

// Store is the SQLite call record store and user directory. It holds a
// single connection, so transactions are serialized.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Foreign keys are per connection and an in-memory database lives only
	// as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(initCtx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(initCtx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply call schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers queries
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

type txKey struct{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction carried by ctx, or the database
func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// InTx runs fn inside a single transaction. Nested calls join the outer one.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
