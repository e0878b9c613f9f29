package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

const callColumns = `call_id, room_id, conversation_id, initiator_id, call_type, status,
		started_at_ns, ended_at_ns, duration_ms`

// CreateCall creates a new call record
func (s *Store) CreateCall(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, room_id, conversation_id, initiator_id, call_type, status, started_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn(ctx).ExecContext(ctx, query,
		call.CallID.String(),
		nullUUID(call.RoomID),
		nullUUID(call.ConversationID),
		call.InitiatorID.String(),
		string(call.Type),
		string(call.Status),
		call.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetCall retrieves a call by ID
func (s *Store) GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE call_id = ?`

	call, err := scanCall(s.conn(ctx).QueryRowContext(ctx, query, callID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// UpdateCallStatus updates call status
func (s *Store) UpdateCallStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE calls SET status = ? WHERE call_id = ?`,
		string(status), callID.String())
	if err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}
	return expectRow(res, "call "+callID.String())
}

// EndCall marks a call as ended and records its duration in milliseconds
func (s *Store) EndCall(ctx context.Context, callID uuid.UUID, endedAt time.Time) error {
	query := `
		UPDATE calls
		SET status = ?,
		    ended_at_ns = ?,
		    duration_ms = (? - started_at_ns) / 1000000
		WHERE call_id = ?
	`

	ended := endedAt.UnixNano()
	res, err := s.conn(ctx).ExecContext(ctx, query,
		string(domain.CallStatusEnded), ended, ended, callID.String())
	if err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}
	return expectRow(res, "call "+callID.String())
}

// ListCalls retrieves calls matching the filter, newest first
func (s *Store) ListCalls(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, error) {
	var (
		where []string
		args  []any
	)
	if filter.RoomID != nil {
		where = append(where, "room_id = ?")
		args = append(args, filter.RoomID.String())
	}
	if filter.ConversationID != nil {
		where = append(where, "conversation_id = ?")
		args = append(args, filter.ConversationID.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at_ns DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, rows.Err()
}

const participantColumns = `participant_id, call_id, user_id, status, joined_at_ns, left_at_ns,
		media_audio, media_video, created_at_ns`

// CreateParticipant adds a participant row to a call
func (s *Store) CreateParticipant(ctx context.Context, p *domain.CallParticipant) error {
	query := `
		INSERT INTO call_participants (` + participantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	audio, video := mediaColumns(p.MediaState)
	_, err := s.conn(ctx).ExecContext(ctx, query,
		p.ParticipantID.String(),
		p.CallID.String(),
		p.UserID.String(),
		string(p.Status),
		nullTime(p.JoinedAt),
		nullTime(p.LeftAt),
		audio,
		video,
		p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return nil
}

// GetParticipant finds the participant row of a user in a call
func (s *Store) GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error) {
	query := `SELECT ` + participantColumns + `
		FROM call_participants
		WHERE call_id = ? AND user_id = ?
		ORDER BY created_at_ns ASC
		LIMIT 1`

	p, err := scanParticipant(s.conn(ctx).QueryRowContext(ctx, query, callID.String(), userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("participant %s in call %s: %w", userID, callID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return p, nil
}

// UpdateParticipant patches status, timestamps and media state of a row
func (s *Store) UpdateParticipant(ctx context.Context, p *domain.CallParticipant) error {
	query := `
		UPDATE call_participants
		SET status = ?, joined_at_ns = ?, left_at_ns = ?, media_audio = ?, media_video = ?
		WHERE participant_id = ?
	`

	audio, video := mediaColumns(p.MediaState)
	res, err := s.conn(ctx).ExecContext(ctx, query,
		string(p.Status),
		nullTime(p.JoinedAt),
		nullTime(p.LeftAt),
		audio,
		video,
		p.ParticipantID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	return expectRow(res, "participant "+p.ParticipantID.String())
}

// ListParticipants retrieves all participants in a call
func (s *Store) ListParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	query := `SELECT ` + participantColumns + `
		FROM call_participants
		WHERE call_id = ?
		ORDER BY created_at_ns ASC`

	return s.queryParticipants(ctx, query, callID.String())
}

// CountParticipants counts the rows of a call in any of the given statuses
func (s *Store) CountParticipants(ctx context.Context, callID uuid.UUID, statuses ...domain.ParticipantStatus) (int, error) {
	query := `SELECT count(*) FROM call_participants WHERE call_id = ?`
	args := []any{callID.String()}
	query, args = withStatuses(query, args, statuses)

	var count int
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}

	return count, nil
}

// ListUserParticipations retrieves a user's participant rows, newest first
func (s *Store) ListUserParticipations(ctx context.Context, userID uuid.UUID, statuses ...domain.ParticipantStatus) ([]*domain.CallParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM call_participants WHERE user_id = ?`
	args := []any{userID.String()}
	query, args = withStatuses(query, args, statuses)
	query += " ORDER BY created_at_ns DESC"

	return s.queryParticipants(ctx, query, args...)
}

func (s *Store) queryParticipants(ctx context.Context, query string, args ...any) ([]*domain.CallParticipant, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.CallParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

const peerConnectionColumns = `connection_id, call_id, from_user_id, to_user_id, offer, answer,
		ice_candidates, status, created_at_ns`

// CreatePeerConnection inserts a signaling relay record
func (s *Store) CreatePeerConnection(ctx context.Context, pc *domain.PeerConnection) error {
	query := `
		INSERT INTO peer_connections (` + peerConnectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	candidates, err := encodeCandidates(pc.ICECandidates)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).ExecContext(ctx, query,
		pc.ConnectionID.String(),
		pc.CallID.String(),
		pc.FromUserID.String(),
		pc.ToUserID.String(),
		nullString(pc.Offer),
		nullString(pc.Answer),
		candidates,
		string(pc.Status),
		pc.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	return nil
}

// GetPeerConnection retrieves a relay record by ID
func (s *Store) GetPeerConnection(ctx context.Context, connectionID uuid.UUID) (*domain.PeerConnection, error) {
	query := `SELECT ` + peerConnectionColumns + ` FROM peer_connections WHERE connection_id = ?`

	pc, err := scanPeerConnection(s.conn(ctx).QueryRowContext(ctx, query, connectionID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("peer connection %s: %w", connectionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get peer connection: %w", err)
	}

	return pc, nil
}

// UpdatePeerConnection overwrites answer, candidate list and status of a record
func (s *Store) UpdatePeerConnection(ctx context.Context, pc *domain.PeerConnection) error {
	query := `
		UPDATE peer_connections
		SET offer = ?, answer = ?, ice_candidates = ?, status = ?
		WHERE connection_id = ?
	`

	candidates, err := encodeCandidates(pc.ICECandidates)
	if err != nil {
		return err
	}
	res, err := s.conn(ctx).ExecContext(ctx, query,
		nullString(pc.Offer),
		nullString(pc.Answer),
		candidates,
		string(pc.Status),
		pc.ConnectionID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update peer connection: %w", err)
	}
	return expectRow(res, "peer connection "+pc.ConnectionID.String())
}

// ListPeerConnections retrieves a call's records where the user is either party
func (s *Store) ListPeerConnections(ctx context.Context, callID, userID uuid.UUID) ([]*domain.PeerConnection, error) {
	query := `SELECT ` + peerConnectionColumns + `
		FROM peer_connections
		WHERE call_id = ? AND (from_user_id = ? OR to_user_id = ?)
		ORDER BY created_at_ns ASC`

	user := userID.String()
	rows, err := s.conn(ctx).QueryContext(ctx, query, callID.String(), user, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list peer connections: %w", err)
	}
	defer rows.Close()

	var out []*domain.PeerConnection
	for rows.Next() {
		pc, err := scanPeerConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan peer connection: %w", err)
		}
		out = append(out, pc)
	}

	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (*domain.Call, error) {
	var (
		call           domain.Call
		roomID         uuid.NullUUID
		conversationID uuid.NullUUID
		callType       string
		status         string
		startedAt      int64
		endedAt        sql.NullInt64
		durationMs     sql.NullInt64
	)
	err := row.Scan(
		&call.CallID,
		&roomID,
		&conversationID,
		&call.InitiatorID,
		&callType,
		&status,
		&startedAt,
		&endedAt,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}
	call.RoomID = uuidPtr(roomID)
	call.ConversationID = uuidPtr(conversationID)
	call.Type = domain.CallType(callType)
	call.Status = domain.CallStatus(status)
	call.StartedAt = fromNanos(startedAt)
	call.EndedAt = timePtr(endedAt)
	if durationMs.Valid {
		d := durationMs.Int64
		call.DurationMs = &d
	}
	return &call, nil
}

func scanParticipant(row scanner) (*domain.CallParticipant, error) {
	var (
		p         domain.CallParticipant
		status    string
		joinedAt  sql.NullInt64
		leftAt    sql.NullInt64
		audio     sql.NullBool
		video     sql.NullBool
		createdAt int64
	)
	err := row.Scan(
		&p.ParticipantID,
		&p.CallID,
		&p.UserID,
		&status,
		&joinedAt,
		&leftAt,
		&audio,
		&video,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ParticipantStatus(status)
	p.JoinedAt = timePtr(joinedAt)
	p.LeftAt = timePtr(leftAt)
	p.CreatedAt = fromNanos(createdAt)
	if audio.Valid || video.Valid {
		p.MediaState = &domain.MediaState{Audio: audio.Valid && audio.Bool, Video: video.Valid && video.Bool}
	}
	return &p, nil
}

func scanPeerConnection(row scanner) (*domain.PeerConnection, error) {
	var (
		pc         domain.PeerConnection
		offer      sql.NullString
		answer     sql.NullString
		candidates string
		status     string
		createdAt  int64
	)
	err := row.Scan(
		&pc.ConnectionID,
		&pc.CallID,
		&pc.FromUserID,
		&pc.ToUserID,
		&offer,
		&answer,
		&candidates,
		&status,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	pc.Offer = stringPtr(offer)
	pc.Answer = stringPtr(answer)
	pc.Status = domain.PeerConnectionStatus(status)
	pc.CreatedAt = fromNanos(createdAt)
	if err := json.Unmarshal([]byte(candidates), &pc.ICECandidates); err != nil {
		return nil, fmt.Errorf("decode ice candidates: %w", err)
	}
	if pc.ICECandidates == nil {
		pc.ICECandidates = []string{}
	}
	return &pc, nil
}

// withStatuses appends an IN filter for statuses; an empty list matches all
func withStatuses(query string, args []any, statuses []domain.ParticipantStatus) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	marks := make([]string, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args = append(args, string(st))
	}
	return query + " AND status IN (" + strings.Join(marks, ", ") + ")", args
}

func encodeCandidates(candidates []string) (string, error) {
	if candidates == nil {
		candidates = []string{}
	}
	raw, err := json.Marshal(candidates)
	if err != nil {
		return "", fmt.Errorf("encode ice candidates: %w", err)
	}
	return string(raw), nil
}

func mediaColumns(m *domain.MediaState) (any, any) {
	if m == nil {
		return nil, nil
	}
	return m.Audio, m.Video
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timePtr(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := fromNanos(ns.Int64)
	return &t
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
