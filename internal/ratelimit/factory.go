package ratelimit

import (
	"fmt"
	"reflect"
	"time"

	"github.com/markwell-app/markwell/internal/config"
	"github.com/markwell-app/markwell/internal/database"
	"github.com/rs/zerolog/log"
)

// NewStore creates a rate limit store based on the ratelimit configuration.
//
// Backend options:
//   - "postgres": PostgreSQL-backed store (default, multi-instance)
//   - "redis": Redis-compatible store (high scale)
//   - "memory" / "local": in-process store (development and tests only)
//
// db is required for the postgres backend.
func NewStore(cfg *config.RateLimitConfig, db database.Querier) (Store, error) {
	switch cfg.Backend {
	case "postgres", "":
		if isNil(db) {
			return nil, fmt.Errorf("database pool is required for postgres rate limit backend")
		}
		log.Info().Msg("Using PostgreSQL rate limit store")
		return NewPostgresStore(db), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis rate limit backend")
		}
		log.Info().Msg("Using Redis rate limit store")
		store, err := NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return store, nil

	case "memory", "local":
		log.Warn().Msg("Using in-memory rate limit store: counters are not shared between instances and are lost on restart")
		return NewMemoryStore(10 * time.Minute), nil

	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s (valid options: postgres, redis, memory)", cfg.Backend)
	}
}

// isNil also catches a nil pointer stored in the interface, e.g. a nil
// *database.Connection
func isNil(db database.Querier) bool {
	if db == nil {
		return true
	}
	v := reflect.ValueOf(db)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
