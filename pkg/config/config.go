package config

import (
	"fmt"
	"time"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/env"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/pagination"
)

// Call store backends
const (
	StoreCockroach = "cockroach"
	StoreSQLite    = "sqlite"
	StoreMemory    = "memory"
)

// Config holds all configuration for the call service
type Config struct {
	Server   ServerConfig
	Store    string
	Database DatabaseConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	Calls    CallConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int
	Environment string // development, staging, production
	ServiceName string
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// SQLiteConfig holds the embedded store location
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// CallConfig holds call lifecycle limits
type CallConfig struct {
	HistoryDefaultLimit   int
	HistoryMaxLimit       int
	MaxEventConnections   int
	EventConnectionBuffer int

	// InitiateRateLimit caps call initiations per user per window; 0 disables it
	InitiateRateLimit  int
	InitiateRateWindow time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        env.GetInt("PORT", 8084),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "call-service"),
		},
		Store: env.GetLower("CALL_STORE", StoreCockroach),
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "callhub"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		SQLite: SQLiteConfig{
			Path: env.GetString("SQLITE_PATH", "call-service.db"),
		},
		Redis: RedisConfig{
			Enabled:  env.GetBool("REDIS_ENABLED", true),
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret:            env.GetStringFromFile("JWT_SECRET", ""),
			AccessTokenExpiry: env.GetDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/call-service.log"),
		},
		Calls: CallConfig{
			HistoryDefaultLimit:   env.GetInt("CALL_HISTORY_DEFAULT_LIMIT", pagination.DefaultLimit),
			HistoryMaxLimit:       env.GetInt("CALL_HISTORY_MAX_LIMIT", pagination.MaxLimit),
			MaxEventConnections:   env.GetInt("WS_MAX_EVENT_CONNECTIONS", 1000),
			EventConnectionBuffer: env.GetInt("WS_EVENT_BUFFER", 16),
			InitiateRateLimit:     env.GetInt("CALL_INITIATE_RATE_LIMIT", 30),
			InitiateRateWindow:    env.GetDuration("CALL_INITIATE_RATE_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Server.Environment == "production" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	switch c.Store {
	case StoreCockroach, StoreMemory:
	case StoreSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("SQLITE_PATH must be set when CALL_STORE=sqlite")
		}
	default:
		return fmt.Errorf("CALL_STORE must be %q, %q or %q, got %q", StoreCockroach, StoreSQLite, StoreMemory, c.Store)
	}
	if c.Store == StoreMemory && c.Server.Environment == "production" {
		return fmt.Errorf("CALL_STORE=memory is not allowed in production")
	}

	if c.Calls.HistoryDefaultLimit <= 0 || c.Calls.HistoryMaxLimit <= 0 {
		return fmt.Errorf("call history limits must be positive")
	}
	if c.Calls.HistoryDefaultLimit > c.Calls.HistoryMaxLimit {
		return fmt.Errorf("CALL_HISTORY_DEFAULT_LIMIT (%d) exceeds CALL_HISTORY_MAX_LIMIT (%d)",
			c.Calls.HistoryDefaultLimit, c.Calls.HistoryMaxLimit)
	}

	if c.Calls.InitiateRateLimit < 0 {
		return fmt.Errorf("CALL_INITIATE_RATE_LIMIT must not be negative")
	}
	if c.Calls.InitiateRateLimit > 0 && c.Calls.InitiateRateWindow <= 0 {
		return fmt.Errorf("CALL_INITIATE_RATE_WINDOW must be positive")
	}

	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// DatabaseURL builds the pgx connection string
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Addr returns host:port of the Redis server
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
