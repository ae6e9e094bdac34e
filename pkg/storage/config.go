package storage

import (
	"fmt"
	"time"
)

// Storage backend types
const (
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeRedis    = "redis"
)

// Config holds storage backend configuration.
type Config struct {
	// Type selects the backend: memory, sqlite, postgres or redis.
	Type string

	// SQLite config
	SQLitePath string

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int

	// Redis config
	RedisURL string

	// Cleanup job config
	CleanupSchedule  string        // cron expression
	CleanupRetention time.Duration // how long expired records are kept for audit

	// User lookup cache
	CacheEnabled bool
	CacheSize    int
	CacheTTL     time.Duration
}

// DefaultConfig returns sensible defaults: in-memory storage, hourly
// cleanup keeping expired records for thirty days.
func DefaultConfig() Config {
	return Config{
		Type:             TypeMemory,
		SQLitePath:       "keepsake.db",
		PostgresMaxConns: 20,
		CleanupSchedule:  "@hourly",
		CleanupRetention: 30 * 24 * time.Hour,
		CacheSize:        1024,
		CacheTTL:         time.Minute,
	}
}

// Validate checks the configuration for a usable backend selection.
func (c Config) Validate() error {
	switch c.Type {
	case TypeMemory:
	case TypeSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite storage requires a database path")
		}
	case TypePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres storage requires a connection URL")
		}
	case TypeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis storage requires a connection URL")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", c.Type)
	}
	return nil
}
