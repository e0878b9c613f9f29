// Package transport connects the call orchestrator to the call service over
// its REST API and the call events WebSocket.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
)

const requestIDHeader = "X-Request-ID"

// envelope mirrors the service's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Option configures an HTTPBackend
type Option func(*HTTPBackend)

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) Option {
	return func(b *HTTPBackend) {
		b.client = client
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(log *zap.Logger) Option {
	return func(b *HTTPBackend) {
		b.log = log
	}
}

// HTTPBackend implements callclient.Backend against the call service REST API
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

var _ callclient.Backend = (*HTTPBackend)(nil)

// NewHTTPBackend creates a backend for baseURL (scheme and host, no /v1)
// authenticated with a bearer token
func NewHTTPBackend(baseURL, token string, opts ...Option) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type initiateRequest struct {
	Type           domain.CallType `json:"type"`
	ParticipantIDs []uuid.UUID     `json:"participant_ids"`
	RoomID         *uuid.UUID      `json:"room_id,omitempty"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
}

// InitiateCall starts a call and returns its id
func (b *HTTPBackend) InitiateCall(ctx context.Context, req *callclient.CallRequest) (uuid.UUID, error) {
	body := initiateRequest{
		Type:           req.Type,
		ParticipantIDs: req.ParticipantIDs,
		RoomID:         req.RoomID,
		ConversationID: req.ConversationID,
	}
	var out struct {
		CallID uuid.UUID `json:"call_id"`
	}
	if err := b.do(ctx, "initiate", http.MethodPost, "/v1/calls", nil, body, &out); err != nil {
		return uuid.Nil, err
	}
	return out.CallID, nil
}

// JoinCall joins a call with the given media state
func (b *HTTPBackend) JoinCall(ctx context.Context, callID uuid.UUID, media domain.MediaState) error {
	return b.do(ctx, "join", http.MethodPost, callPath(callID, "join"), nil, media, nil)
}

// LeaveCall leaves a call
func (b *HTTPBackend) LeaveCall(ctx context.Context, callID uuid.UUID) error {
	return b.do(ctx, "leave", http.MethodPost, callPath(callID, "leave"), nil, nil, nil)
}

// DeclineCall declines an invitation
func (b *HTTPBackend) DeclineCall(ctx context.Context, callID uuid.UUID) error {
	return b.do(ctx, "decline", http.MethodPost, callPath(callID, "decline"), nil, nil, nil)
}

// UpdateMediaState pushes the local audio/video toggles
func (b *HTTPBackend) UpdateMediaState(ctx context.Context, callID uuid.UUID, media domain.MediaState) error {
	return b.do(ctx, "update_media", http.MethodPut, callPath(callID, "media"), nil, media, nil)
}

// GetActiveCall returns the user's live call, optionally scoped to a room
// or conversation. It returns nil when there is none.
func (b *HTTPBackend) GetActiveCall(ctx context.Context, roomID, conversationID *uuid.UUID) (*domain.ActiveCall, error) {
	var out struct {
		ActiveCall *domain.ActiveCall `json:"active_call"`
	}
	query := contextQuery(roomID, conversationID)
	if err := b.do(ctx, "get_active_call", http.MethodGet, "/v1/calls/active", query, nil, &out); err != nil {
		return nil, err
	}
	return out.ActiveCall, nil
}

// GetIncomingCall returns the newest unanswered ring, or nil
func (b *HTTPBackend) GetIncomingCall(ctx context.Context) (*domain.IncomingCall, error) {
	var out struct {
		IncomingCall *domain.IncomingCall `json:"incoming_call"`
	}
	if err := b.do(ctx, "get_incoming_call", http.MethodGet, "/v1/calls/incoming", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.IncomingCall, nil
}

// GetCallHistory lists the user's ended calls, newest first
func (b *HTTPBackend) GetCallHistory(ctx context.Context, roomID, conversationID *uuid.UUID, limit int) ([]*domain.CallRecord, error) {
	var out struct {
		Calls []*domain.CallRecord `json:"calls"`
	}
	query := contextQuery(roomID, conversationID)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if err := b.do(ctx, "get_call_history", http.MethodGet, "/v1/calls/history", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Calls, nil
}

func (b *HTTPBackend) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	target := b.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &callclient.TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &callclient.TransportError{Op: op, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return &callclient.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	b.log.Debug("Call service request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID))

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return &callclient.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		te := &callclient.TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		if env.Error != nil {
			te.Code = env.Error.Code
			te.Err = errors.New(env.Error.Message)
		}
		return te
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &callclient.TransportError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("decode data: %w", err),
			}
		}
	}
	return nil
}

func callPath(callID uuid.UUID, action string) string {
	return "/v1/calls/" + callID.String() + "/" + action
}

func contextQuery(roomID, conversationID *uuid.UUID) url.Values {
	query := url.Values{}
	if roomID != nil {
		query.Set("room_id", roomID.String())
	}
	if conversationID != nil {
		query.Set("conversation_id", conversationID.String())
	}
	return query
}
