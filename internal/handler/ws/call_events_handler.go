package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/constants"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/logger"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/metrics"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/response"
)

// Event message types
const (
	EventTypeSnapshot = "snapshot"
	EventTypeRefresh  = "refresh"
)

// EventMessage is pushed to subscribed clients. Snapshot fields are inlined.
type EventMessage struct {
	Type string `json:"type"`
	*domain.CallSnapshot
	Change *domain.CallChange `json:"change,omitempty"`
}

// clientMessage is what a client may send on the event stream
type clientMessage struct {
	Type string `json:"type"`
}

// SnapshotSource answers the two queries a subscribed client renders from
type SnapshotSource interface {
	GetActiveCall(ctx context.Context, userID uuid.UUID, roomID, conversationID *uuid.UUID) (*domain.ActiveCall, error)
	GetIncomingCall(ctx context.Context, userID uuid.UUID) (*domain.IncomingCall, error)
}

// ChangeSubscriber delivers call change notifications for one user
type ChangeSubscriber interface {
	SubscribeUser(ctx context.Context, userID uuid.UUID) (<-chan *domain.CallChange, func(), error)
}

// PresenceTracker marks users online while they hold an event stream
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

// CallEventsHub streams call snapshots to WebSocket clients. Every change
// notification for the connected user triggers a fresh query; the stream
// carries full snapshots, never deltas.
type CallEventsHub struct {
	source     SnapshotSource
	subscriber ChangeSubscriber
	presence   PresenceTracker
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader

	sendBuffer     int
	maxConnections int
	semaphore      chan struct{}

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	streams map[uuid.UUID]int // open streams per user
	closed  bool
}

// HubOption configures a CallEventsHub
type HubOption func(*CallEventsHub)

// WithPresence marks connected users online
func WithPresence(p PresenceTracker) HubOption {
	return func(h *CallEventsHub) { h.presence = p }
}

// WithHubMetrics records connection and message metrics
func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *CallEventsHub) { h.metrics = m }
}

// WithMaxConnections bounds concurrent event streams
func WithMaxConnections(n int) HubOption {
	return func(h *CallEventsHub) {
		if n > 0 {
			h.maxConnections = n
		}
	}
}

// WithSendBuffer sizes each client's outbound queue
func WithSendBuffer(n int) HubOption {
	return func(h *CallEventsHub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithAllowedOrigins restricts browser origins. Requests without an Origin
// header (non-browser clients) are always accepted.
func WithAllowedOrigins(origins map[string]bool) HubOption {
	return func(h *CallEventsHub) {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins[origin]
		}
	}
}

// NewCallEventsHub creates a new call events hub
func NewCallEventsHub(source SnapshotSource, subscriber ChangeSubscriber, opts ...HubOption) *CallEventsHub {
	h := &CallEventsHub{
		source:     source,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sendBuffer:     16,
		maxConnections: 1000,
		clients:        make(map[*eventClient]struct{}),
		streams:        make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.semaphore = make(chan struct{}, h.maxConnections)
	return h
}

// eventClient is one subscribed WebSocket connection
type eventClient struct {
	hub            *CallEventsHub
	conn           *websocket.Conn
	send           chan []byte
	refresh        chan struct{}
	userID         uuid.UUID
	roomID         *uuid.UUID
	conversationID *uuid.UUID
	ctx            context.Context
	cancel         context.CancelFunc
	unsubscribe    func()
	closeOnce      sync.Once
}

// ServeWS upgrades an authenticated request into a snapshot stream
// GET /v1/calls/ws/events?room_id=&conversation_id=
func (h *CallEventsHub) ServeWS(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	userID, ok := userIDVal.(uuid.UUID)
	if !exists || !ok || userID == uuid.Nil {
		response.Unauthorized(c, "Authentication required")
		return
	}

	roomID, err := optionalQueryUUID(c, "room_id")
	if err != nil {
		response.ValidationError(c, "Invalid room ID")
		return
	}
	conversationID, err := optionalQueryUUID(c, "conversation_id")
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		h.metrics.RecordWebSocketError("capacity")
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Server at capacity, please try again later")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	changes, unsubscribe, err := h.subscriber.SubscribeUser(ctx, userID)
	if err != nil {
		cancel()
		<-h.semaphore
		logger.Warn("Failed to subscribe to call changes",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		h.metrics.RecordWebSocketError("subscribe")
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Call events are temporarily unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		cancel()
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		h.metrics.RecordWebSocketError("upgrade")
		return
	}

	client := &eventClient{
		hub:            h,
		conn:           conn,
		send:           make(chan []byte, h.sendBuffer),
		refresh:        make(chan struct{}, 1),
		userID:         userID,
		roomID:         roomID,
		conversationID: conversationID,
		ctx:            ctx,
		cancel:         cancel,
		unsubscribe:    unsubscribe,
	}

	if !h.register(client) {
		client.close()
		return
	}

	go client.writePump()
	go client.readPump()
	go client.watch(changes)
}

// Close disconnects every client. New connections are refused afterwards.
func (h *CallEventsHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*eventClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// ConnectionCount returns the number of open event streams
func (h *CallEventsHub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *CallEventsHub) register(client *eventClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[client] = struct{}{}
	h.streams[client.userID]++
	h.mu.Unlock()

	h.metrics.IncWebSocketConnections()
	if h.presence != nil {
		if err := h.presence.SetUserOnline(client.ctx, client.userID); err != nil {
			logger.Warn("Failed to mark user online",
				zap.String("user_id", client.userID.String()),
				zap.Error(err))
		}
	}
	return true
}

func (h *CallEventsHub) unregister(client *eventClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	last := false
	if ok {
		h.streams[client.userID]--
		if h.streams[client.userID] <= 0 {
			delete(h.streams, client.userID)
			last = true
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	h.metrics.DecWebSocketConnections()
	// the user stays online while another stream is open
	if h.presence != nil && last {
		ctx, cancel := context.WithTimeout(context.Background(), constants.WebSocketWriteWait)
		defer cancel()
		if err := h.presence.SetUserOffline(ctx, client.userID); err != nil {
			logger.Warn("Failed to mark user offline",
				zap.String("user_id", client.userID.String()),
				zap.Error(err))
		}
	}
}

// close tears the client down exactly once, whichever pump exits first
func (c *eventClient) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.unsubscribe()
		c.conn.Close()
		c.hub.unregister(c)
		<-c.hub.semaphore
	})
}

// watch turns change notifications into snapshots
func (c *eventClient) watch(changes <-chan *domain.CallChange) {
	defer c.close()

	if !c.pushSnapshot(nil) {
		return
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			// a burst of changes collapses into one query
			change = drainLatest(changes, change)
			if !c.pushSnapshot(change) {
				return
			}
		case <-c.refresh:
			if !c.pushSnapshot(nil) {
				return
			}
		}
	}
}

func drainLatest(changes <-chan *domain.CallChange, latest *domain.CallChange) *domain.CallChange {
	for {
		select {
		case next, ok := <-changes:
			if !ok || next == nil {
				return latest
			}
			latest = next
		default:
			return latest
		}
	}
}

// pushSnapshot queries the current state and queues it. It returns false
// once the client is gone.
func (c *eventClient) pushSnapshot(change *domain.CallChange) bool {
	ctx, cancel := context.WithTimeout(c.ctx, constants.DefaultTimeout)
	defer cancel()

	snapshot, err := c.snapshot(ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			return false
		}
		logger.Warn("Failed to build call snapshot",
			zap.String("user_id", c.userID.String()),
			zap.Error(err))
		c.hub.metrics.RecordWebSocketError("snapshot")
		return true
	}

	payload, err := json.Marshal(&EventMessage{
		Type:         EventTypeSnapshot,
		CallSnapshot: snapshot,
		Change:       change,
	})
	if err != nil {
		logger.Error("Failed to marshal call snapshot", zap.Error(err))
		return true
	}

	select {
	case c.send <- payload:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *eventClient) snapshot(ctx context.Context) (*domain.CallSnapshot, error) {
	active, err := c.hub.source.GetActiveCall(ctx, c.userID, c.roomID, c.conversationID)
	if err != nil {
		return nil, err
	}
	incoming, err := c.hub.source.GetIncomingCall(ctx, c.userID)
	if err != nil {
		return nil, err
	}
	return &domain.CallSnapshot{
		Active:    active,
		Incoming:  incoming,
		Timestamp: time.Now().UTC(),
	}, nil
}

// readPump reads client messages. A "refresh" message forces a snapshot.
func (c *eventClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(constants.MaxWebSocketMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.metrics.RecordWebSocketError("invalid_message")
			continue
		}
		c.hub.metrics.RecordWebSocketMessage(msg.Type, "inbound")

		if msg.Type == EventTypeRefresh {
			select {
			case c.refresh <- struct{}{}:
			default:
			}
		}
	}
}

// writePump writes queued snapshots and keeps the connection alive
func (c *eventClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(constants.WebSocketWriteWait))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			c.hub.metrics.RecordWebSocketMessage(EventTypeSnapshot, "outbound")

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if c.hub.presence != nil {
				if err := c.hub.presence.RefreshPresence(c.ctx, c.userID); err != nil {
					logger.Debug("Failed to refresh presence",
						zap.String("user_id", c.userID.String()),
						zap.Error(err))
				}
			}
		}
	}
}

func optionalQueryUUID(c *gin.Context, key string) (*uuid.UUID, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
