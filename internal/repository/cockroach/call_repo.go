package cockroach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

// CallRepository handles call, participant and peer connection records
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// InTx runs fn inside a single database transaction
func (r *CallRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return inTx(ctx, r.pool, fn)
}

const callColumns = `call_id, room_id, conversation_id, initiator_id, call_type, status,
		       started_at, ended_at, duration_ms`

// CreateCall creates a new call record
func (r *CallRepository) CreateCall(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, room_id, conversation_id, initiator_id, call_type, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		call.CallID,
		call.RoomID,
		call.ConversationID,
		call.InitiatorID,
		string(call.Type),
		string(call.Status),
		call.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetCall retrieves a call by ID
func (r *CallRepository) GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`

	call, err := scanCall(conn(ctx, r.pool).QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// UpdateCallStatus updates call status
func (r *CallRepository) UpdateCallStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error {
	query := `
		UPDATE calls
		SET status = $2
		WHERE call_id = $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, callID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}

	return nil
}

// EndCall marks a call as ended and records its duration in milliseconds
func (r *CallRepository) EndCall(ctx context.Context, callID uuid.UUID, endedAt time.Time) error {
	query := `
		UPDATE calls
		SET status = 'ended',
		    ended_at = $2,
		    duration_ms = (EXTRACT(EPOCH FROM ($2::TIMESTAMPTZ - started_at)) * 1000)::BIGINT
		WHERE call_id = $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, callID, endedAt)
	if err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}

	return nil
}

// ListCalls retrieves calls matching the filter, newest first
func (r *CallRepository) ListCalls(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, error) {
	var (
		where []string
		args  []any
	)
	if filter.RoomID != nil {
		args = append(args, *filter.RoomID)
		where = append(where, fmt.Sprintf("room_id = $%d", len(args)))
	}
	if filter.ConversationID != nil {
		args = append(args, *filter.ConversationID)
		where = append(where, fmt.Sprintf("conversation_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
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

const participantColumns = `participant_id, call_id, user_id, status, joined_at, left_at,
		       media_audio, media_video, created_at`

// CreateParticipant adds a participant row to a call
func (r *CallRepository) CreateParticipant(ctx context.Context, p *domain.CallParticipant) error {
	query := `
		INSERT INTO call_participants (
			participant_id, call_id, user_id, status, joined_at, left_at,
			media_audio, media_video, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	audio, video := mediaColumns(p.MediaState)
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		p.ParticipantID,
		p.CallID,
		p.UserID,
		string(p.Status),
		p.JoinedAt,
		p.LeftAt,
		audio,
		video,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return nil
}

// GetParticipant finds the participant row of a user in a call
func (r *CallRepository) GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error) {
	query := `SELECT ` + participantColumns + `
		FROM call_participants
		WHERE call_id = $1 AND user_id = $2
		ORDER BY created_at ASC
		LIMIT 1`

	p, err := scanParticipant(conn(ctx, r.pool).QueryRow(ctx, query, callID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("participant %s in call %s: %w", userID, callID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return p, nil
}

// UpdateParticipant patches status, timestamps and media state of a row
func (r *CallRepository) UpdateParticipant(ctx context.Context, p *domain.CallParticipant) error {
	query := `
		UPDATE call_participants
		SET status = $2, joined_at = $3, left_at = $4, media_audio = $5, media_video = $6
		WHERE participant_id = $1
	`

	audio, video := mediaColumns(p.MediaState)
	tag, err := conn(ctx, r.pool).Exec(ctx, query,
		p.ParticipantID,
		string(p.Status),
		p.JoinedAt,
		p.LeftAt,
		audio,
		video,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %s: %w", p.ParticipantID, domain.ErrNotFound)
	}

	return nil
}

// ListParticipants retrieves all participants in a call
func (r *CallRepository) ListParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	query := `SELECT ` + participantColumns + `
		FROM call_participants
		WHERE call_id = $1
		ORDER BY created_at ASC`

	return r.queryParticipants(ctx, query, callID)
}

// CountParticipants counts the rows of a call in any of the given statuses
func (r *CallRepository) CountParticipants(ctx context.Context, callID uuid.UUID, statuses ...domain.ParticipantStatus) (int, error) {
	query := `
		SELECT count(*)
		FROM call_participants
		WHERE call_id = $1 AND (cardinality($2::TEXT[]) = 0 OR status = ANY($2::TEXT[]))
	`

	var count int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, callID, statusStrings(statuses)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}

	return count, nil
}

// ListUserParticipations retrieves a user's participant rows, newest first
func (r *CallRepository) ListUserParticipations(ctx context.Context, userID uuid.UUID, statuses ...domain.ParticipantStatus) ([]*domain.CallParticipant, error) {
	query := `SELECT ` + participantColumns + `
		FROM call_participants
		WHERE user_id = $1 AND (cardinality($2::TEXT[]) = 0 OR status = ANY($2::TEXT[]))
		ORDER BY created_at DESC`

	return r.queryParticipants(ctx, query, userID, statusStrings(statuses))
}

func (r *CallRepository) queryParticipants(ctx context.Context, query string, args ...any) ([]*domain.CallParticipant, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
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
		       ice_candidates, status, created_at`

// CreatePeerConnection inserts a signaling relay record
func (r *CallRepository) CreatePeerConnection(ctx context.Context, pc *domain.PeerConnection) error {
	query := `
		INSERT INTO peer_connections (
			connection_id, call_id, from_user_id, to_user_id, offer, answer,
			ice_candidates, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	candidates := pc.ICECandidates
	if candidates == nil {
		candidates = []string{}
	}
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		pc.ConnectionID,
		pc.CallID,
		pc.FromUserID,
		pc.ToUserID,
		pc.Offer,
		pc.Answer,
		candidates,
		string(pc.Status),
		pc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	return nil
}

// GetPeerConnection retrieves a relay record by ID
func (r *CallRepository) GetPeerConnection(ctx context.Context, connectionID uuid.UUID) (*domain.PeerConnection, error) {
	query := `SELECT ` + peerConnectionColumns + ` FROM peer_connections WHERE connection_id = $1`

	pc, err := scanPeerConnection(conn(ctx, r.pool).QueryRow(ctx, query, connectionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("peer connection %s: %w", connectionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get peer connection: %w", err)
	}

	return pc, nil
}

// UpdatePeerConnection overwrites answer, candidate list and status of a record
func (r *CallRepository) UpdatePeerConnection(ctx context.Context, pc *domain.PeerConnection) error {
	query := `
		UPDATE peer_connections
		SET offer = $2, answer = $3, ice_candidates = $4, status = $5
		WHERE connection_id = $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query,
		pc.ConnectionID,
		pc.Offer,
		pc.Answer,
		pc.ICECandidates,
		string(pc.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update peer connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("peer connection %s: %w", pc.ConnectionID, domain.ErrNotFound)
	}

	return nil
}

// ListPeerConnections retrieves a call's records where the user is either party
func (r *CallRepository) ListPeerConnections(ctx context.Context, callID, userID uuid.UUID) ([]*domain.PeerConnection, error) {
	query := `SELECT ` + peerConnectionColumns + `
		FROM peer_connections
		WHERE call_id = $1 AND (from_user_id = $2 OR to_user_id = $2)
		ORDER BY created_at ASC`

	rows, err := conn(ctx, r.pool).Query(ctx, query, callID, userID)
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

func scanCall(row pgx.Row) (*domain.Call, error) {
	var (
		call     domain.Call
		callType string
		status   string
	)
	err := row.Scan(
		&call.CallID,
		&call.RoomID,
		&call.ConversationID,
		&call.InitiatorID,
		&callType,
		&status,
		&call.StartedAt,
		&call.EndedAt,
		&call.DurationMs,
	)
	if err != nil {
		return nil, err
	}
	call.Type = domain.CallType(callType)
	call.Status = domain.CallStatus(status)
	return &call, nil
}

func scanParticipant(row pgx.Row) (*domain.CallParticipant, error) {
	var (
		p      domain.CallParticipant
		status string
		audio  *bool
		video  *bool
	)
	err := row.Scan(
		&p.ParticipantID,
		&p.CallID,
		&p.UserID,
		&status,
		&p.JoinedAt,
		&p.LeftAt,
		&audio,
		&video,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ParticipantStatus(status)
	if audio != nil || video != nil {
		p.MediaState = &domain.MediaState{Audio: audio != nil && *audio, Video: video != nil && *video}
	}
	return &p, nil
}

func scanPeerConnection(row pgx.Row) (*domain.PeerConnection, error) {
	var (
		pc     domain.PeerConnection
		status string
	)
	err := row.Scan(
		&pc.ConnectionID,
		&pc.CallID,
		&pc.FromUserID,
		&pc.ToUserID,
		&pc.Offer,
		&pc.Answer,
		&pc.ICECandidates,
		&status,
		&pc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	pc.Status = domain.PeerConnectionStatus(status)
	if pc.ICECandidates == nil {
		pc.ICECandidates = []string{}
	}
	return &pc, nil
}

func mediaColumns(m *domain.MediaState) (*bool, *bool) {
	if m == nil {
		return nil, nil
	}
	audio, video := m.Audio, m.Video
	return &audio, &video
}

func statusStrings(statuses []domain.ParticipantStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
