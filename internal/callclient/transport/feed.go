package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/callclient"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/constants"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/resilience"
)

const (
	eventsPath = "/v1/calls/ws/events"
	// snapshots carry every participant, so allow far more than client frames
	maxSnapshotSize = 1 << 20
)

// eventMessage mirrors the snapshot frames pushed by the events endpoint
type eventMessage struct {
	Type string `json:"type"`
	domain.CallSnapshot
}

// FeedOption configures a Feed
type FeedOption func(*Feed)

// WithDialer replaces the default WebSocket dialer
func WithDialer(dialer *websocket.Dialer) FeedOption {
	return func(f *Feed) {
		f.dialer = dialer
	}
}

// WithReconnectPolicy sets the backoff used after the stream drops
func WithReconnectPolicy(policy resilience.Policy) FeedOption {
	return func(f *Feed) {
		f.policy = policy
	}
}

// WithScope limits the active call in every snapshot to a room or conversation
func WithScope(roomID, conversationID *uuid.UUID) FeedOption {
	return func(f *Feed) {
		f.roomID = roomID
		f.conversationID = conversationID
	}
}

// WithReadTimeout sets how long the stream may stay silent, pings included,
// before it is treated as dead and redialled
func WithReadTimeout(d time.Duration) FeedOption {
	return func(f *Feed) {
		if d > 0 {
			f.readTimeout = d
		}
	}
}

// WithFeedLogger sets the feed's logger
func WithFeedLogger(log *zap.Logger) FeedOption {
	return func(f *Feed) {
		f.log = log
	}
}

// Feed subscribes to the call events WebSocket and yields snapshots
type Feed struct {
	baseURL        string
	token          string
	dialer         *websocket.Dialer
	policy         resilience.Policy
	roomID         *uuid.UUID
	conversationID *uuid.UUID
	readTimeout    time.Duration
	log            *zap.Logger
}

// NewFeed creates a feed for baseURL (http or https, no /v1)
func NewFeed(baseURL, token string, opts ...FeedOption) *Feed {
	f := &Feed{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		dialer:      websocket.DefaultDialer,
		policy:      resilience.DefaultPolicy,
		readTimeout: constants.WebSocketPongWait,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe connects and streams snapshots until ctx is done. The first
// connection error is returned directly; later drops are retried with the
// reconnect policy. The channel closes when the feed stops.
func (f *Feed) Subscribe(ctx context.Context) (<-chan *domain.CallSnapshot, error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan *domain.CallSnapshot, 1)
	go func() {
		defer close(out)
		for {
			err := f.pump(ctx, conn, out)
			if ctx.Err() != nil {
				return
			}
			f.log.Warn("Call events stream dropped, reconnecting", zap.Error(err))

			err = resilience.Retry(ctx, f.log, "call_events_reconnect", f.policy, func(ctx context.Context) error {
				c, err := f.dial(ctx)
				if err != nil {
					return err
				}
				conn = c
				return nil
			})
			if err != nil {
				if ctx.Err() == nil {
					f.log.Error("Call events stream lost", zap.Error(err))
				}
				return
			}
		}
	}()
	return out, nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := f.eventsURL()
	if err != nil {
		return nil, resilience.Permanent(&callclient.TransportError{Op: "subscribe", Err: err})
	}

	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}

	conn, resp, err := f.dialer.DialContext(ctx, target, header)
	if err != nil {
		te := &callclient.TransportError{Op: "subscribe", Err: err}
		if resp != nil {
			defer resp.Body.Close()
			te.StatusCode = resp.StatusCode
			var env envelope
			if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error != nil {
				te.Code = env.Error.Code
				te.Err = fmt.Errorf("%s: %w", env.Error.Message, err)
			}
			// rejected requests will not succeed on retry; capacity limits might
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, resilience.Permanent(te)
			}
		}
		return nil, te
	}
	conn.SetReadLimit(maxSnapshotSize)
	return conn, nil
}

// pump reads frames until the connection fails or ctx is done
func (f *Feed) pump(ctx context.Context, conn *websocket.Conn, out chan<- *domain.CallSnapshot) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	// the server pings well inside the timeout, so a silent half-open
	// connection surfaces as a read error
	conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(constants.WebSocketWriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))

		var msg eventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.Warn("Ignoring malformed call event", zap.Error(err))
			continue
		}
		if msg.Type != "snapshot" {
			continue
		}

		snapshot := msg.CallSnapshot
		select {
		case out <- &snapshot:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) eventsURL() (string, error) {
	u, err := url.Parse(f.baseURL + eventsPath)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	query := contextQuery(f.roomID, f.conversationID)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
