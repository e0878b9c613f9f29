// Package memory provides in-process implementations of the call record store,
// the user directory and the change broker. They back the single-node dev mode
// (CALL_STORE=memory) and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

type txKey struct{}

type participantRow struct {
	p   domain.CallParticipant
	seq int64
}

type callRow struct {
	c   domain.Call
	seq int64
}

type connRow struct {
	pc  domain.PeerConnection
	seq int64
}

// CallStore keeps calls, participants and peer connections in memory
type CallStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	seq  int64

	calls        map[uuid.UUID]*callRow
	participants map[uuid.UUID]*participantRow
	connections  map[uuid.UUID]*connRow
}

// NewCallStore creates an empty store
func NewCallStore() *CallStore {
	return &CallStore{
		calls:        make(map[uuid.UUID]*callRow),
		participants: make(map[uuid.UUID]*participantRow),
		connections:  make(map[uuid.UUID]*connRow),
	}
}

// InTx runs fn with exclusive write access. Changes made by fn are discarded
// when it returns an error. Nested calls join the outer transaction.
func (s *CallStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	backup := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(backup)
		return err
	}
	return nil
}

type storeSnapshot struct {
	calls        map[uuid.UUID]*callRow
	participants map[uuid.UUID]*participantRow
	connections  map[uuid.UUID]*connRow
}

func (s *CallStore) snapshot() storeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := storeSnapshot{
		calls:        make(map[uuid.UUID]*callRow, len(s.calls)),
		participants: make(map[uuid.UUID]*participantRow, len(s.participants)),
		connections:  make(map[uuid.UUID]*connRow, len(s.connections)),
	}
	for k, v := range s.calls {
		row := *v
		snap.calls[k] = &row
	}
	for k, v := range s.participants {
		row := *v
		snap.participants[k] = &row
	}
	for k, v := range s.connections {
		row := *v
		row.pc.ICECandidates = append([]string(nil), v.pc.ICECandidates...)
		snap.connections[k] = &row
	}
	return snap
}

func (s *CallStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = snap.calls
	s.participants = snap.participants
	s.connections = snap.connections
}

func (s *CallStore) nextSeq() int64 {
	s.seq++
	return s.seq
}

// CreateCall inserts a new call
func (s *CallStore) CreateCall(ctx context.Context, call *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calls[call.CallID]; exists {
		return fmt.Errorf("failed to create call: duplicate id %s", call.CallID)
	}
	s.calls[call.CallID] = &callRow{c: *call, seq: s.nextSeq()}
	return nil
}

// GetCall retrieves a call by ID
func (s *CallStore) GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.calls[callID]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}
	c := row.c
	return &c, nil
}

// UpdateCallStatus updates call status
func (s *CallStore) UpdateCallStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.calls[callID]
	if !ok {
		return fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}
	row.c.Status = status
	return nil
}

// EndCall marks a call as ended and records its duration
func (s *CallStore) EndCall(ctx context.Context, callID uuid.UUID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.calls[callID]
	if !ok {
		return fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}
	duration := endedAt.Sub(row.c.StartedAt).Milliseconds()
	row.c.Status = domain.CallStatusEnded
	row.c.EndedAt = &endedAt
	row.c.DurationMs = &duration
	return nil
}

// ListCalls returns calls matching the filter, newest first
func (s *CallStore) ListCalls(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*callRow, 0)
	for _, row := range s.calls {
		if filter.Status != "" && row.c.Status != filter.Status {
			continue
		}
		if !row.c.MatchesContext(filter.RoomID, filter.ConversationID) {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].c.StartedAt.Equal(rows[j].c.StartedAt) {
			return rows[i].c.StartedAt.After(rows[j].c.StartedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}

	calls := make([]*domain.Call, 0, len(rows))
	for _, row := range rows {
		c := row.c
		calls = append(calls, &c)
	}
	return calls, nil
}

// CreateParticipant inserts a participant row
func (s *CallStore) CreateParticipant(ctx context.Context, p *domain.CallParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.participants[p.ParticipantID]; exists {
		return fmt.Errorf("failed to add participant: duplicate id %s", p.ParticipantID)
	}
	s.participants[p.ParticipantID] = &participantRow{p: copyParticipant(p), seq: s.nextSeq()}
	return nil
}

// GetParticipant finds the row for a user in a call
func (s *CallStore) GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *participantRow
	for _, row := range s.participants {
		if row.p.CallID == callID && row.p.UserID == userID {
			if found == nil || row.seq < found.seq {
				found = row
			}
		}
	}
	if found == nil {
		return nil, fmt.Errorf("participant %s in call %s: %w", userID, callID, domain.ErrNotFound)
	}
	p := copyParticipant(&found.p)
	return &p, nil
}

// UpdateParticipant replaces the stored row with p
func (s *CallStore) UpdateParticipant(ctx context.Context, p *domain.CallParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.participants[p.ParticipantID]
	if !ok {
		return fmt.Errorf("participant %s: %w", p.ParticipantID, domain.ErrNotFound)
	}
	row.p = copyParticipant(p)
	return nil
}

// ListParticipants returns every row of a call in creation order
func (s *CallStore) ListParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.participantRows(func(p *domain.CallParticipant) bool { return p.CallID == callID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	return participantsOf(rows), nil
}

// CountParticipants counts the rows of a call in any of the given statuses
func (s *CallStore) CountParticipants(ctx context.Context, callID uuid.UUID, statuses ...domain.ParticipantStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.participantRows(func(p *domain.CallParticipant) bool {
		return p.CallID == callID && hasStatus(p.Status, statuses)
	})
	return len(rows), nil
}

// ListUserParticipations returns a user's rows in any of the given statuses, newest first
func (s *CallStore) ListUserParticipations(ctx context.Context, userID uuid.UUID, statuses ...domain.ParticipantStatus) ([]*domain.CallParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.participantRows(func(p *domain.CallParticipant) bool {
		return p.UserID == userID && hasStatus(p.Status, statuses)
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })
	return participantsOf(rows), nil
}

// CreatePeerConnection inserts a signaling relay record
func (s *CallStore) CreatePeerConnection(ctx context.Context, pc *domain.PeerConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.connections[pc.ConnectionID]; exists {
		return fmt.Errorf("failed to create peer connection: duplicate id %s", pc.ConnectionID)
	}
	row := &connRow{pc: *pc, seq: s.nextSeq()}
	row.pc.ICECandidates = append([]string{}, pc.ICECandidates...)
	s.connections[pc.ConnectionID] = row
	return nil
}

// GetPeerConnection retrieves a relay record by ID
func (s *CallStore) GetPeerConnection(ctx context.Context, connectionID uuid.UUID) (*domain.PeerConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("peer connection %s: %w", connectionID, domain.ErrNotFound)
	}
	pc := row.pc
	pc.ICECandidates = append([]string{}, row.pc.ICECandidates...)
	return &pc, nil
}

// UpdatePeerConnection overwrites the stored record, including the whole candidate list
func (s *CallStore) UpdatePeerConnection(ctx context.Context, pc *domain.PeerConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.connections[pc.ConnectionID]
	if !ok {
		return fmt.Errorf("peer connection %s: %w", pc.ConnectionID, domain.ErrNotFound)
	}
	row.pc = *pc
	row.pc.ICECandidates = append([]string{}, pc.ICECandidates...)
	return nil
}

// ListPeerConnections returns the call's records where the user is either party
func (s *CallStore) ListPeerConnections(ctx context.Context, callID, userID uuid.UUID) ([]*domain.PeerConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*connRow, 0)
	for _, row := range s.connections {
		if row.pc.CallID == callID && row.pc.Involves(userID) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]*domain.PeerConnection, 0, len(rows))
	for _, row := range rows {
		pc := row.pc
		pc.ICECandidates = append([]string{}, row.pc.ICECandidates...)
		out = append(out, &pc)
	}
	return out, nil
}

func (s *CallStore) participantRows(match func(p *domain.CallParticipant) bool) []*participantRow {
	rows := make([]*participantRow, 0)
	for _, row := range s.participants {
		if match(&row.p) {
			rows = append(rows, row)
		}
	}
	return rows
}

func participantsOf(rows []*participantRow) []*domain.CallParticipant {
	out := make([]*domain.CallParticipant, 0, len(rows))
	for _, row := range rows {
		p := copyParticipant(&row.p)
		out = append(out, &p)
	}
	return out
}

func copyParticipant(p *domain.CallParticipant) domain.CallParticipant {
	c := *p
	if p.MediaState != nil {
		m := *p.MediaState
		c.MediaState = &m
	}
	return c
}

func hasStatus(status domain.ParticipantStatus, statuses []domain.ParticipantStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
