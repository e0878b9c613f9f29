// Package constants defines service-wide timeouts, limits, and key prefixes.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout bounds a single REST request
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait is how long a connection may stay silent before it is dropped
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait bounds a single WebSocket write
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// RedisHealthCheckInterval is the interval between Redis degraded-mode probes
	RedisHealthCheckInterval = 10 * time.Second
)

// Database connection constants
const (
	MaxConnLifetime   = 1 * time.Hour
	MaxConnIdleTime   = 30 * time.Minute
	HealthCheckPeriod = 1 * time.Minute
)

// Client orchestrator defaults
const (
	// ActionTimeout bounds one orchestrator action end to end
	ActionTimeout = 15 * time.Second

	// DeclineResetDelay is how long the declined state is shown before idle
	DeclineResetDelay = 1500 * time.Millisecond

	// EndResetDelay is how long the ended state is shown before idle
	EndResetDelay = 2 * time.Second
)

// Redis key prefixes
const (
	CallEventsChannelPrefix = "call_events:"
	PresenceKeyPrefix       = "presence:"
	PresenceOnlineSet       = "presence:online"
	TokenBlacklistPrefix    = "blacklist:"

	// PresenceTTL auto-expires presence keys that are not refreshed
	PresenceTTL = 5 * time.Minute
)

// WebSocket message size limit in bytes
const MaxWebSocketMessageSize = 4096
