package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/markwell-app/markwell/internal/database"
	"github.com/rs/zerolog/log"
)

// incrementSQL is the whole limiter: one statement, evaluated atomically per key.
// Both the expiry test and the new reset time come from the database clock so
// instances with skewed clocks agree on window boundaries.
const incrementSQL = `
	INSERT INTO rate_limits (key, count, reset_at)
	VALUES ($1, 1, now() + $2::bigint * INTERVAL '1 millisecond')
	ON CONFLICT (key) DO UPDATE SET
		count = CASE
			WHEN rate_limits.reset_at <= now() THEN 1
			ELSE rate_limits.count + 1
		END,
		reset_at = CASE
			WHEN rate_limits.reset_at <= now() THEN EXCLUDED.reset_at
			ELSE rate_limits.reset_at
		END
	RETURNING count, reset_at`

// PostgresStore implements Store using PostgreSQL.
// This is the default backend and shares counters across every instance
// connected to the same database.
type PostgresStore struct {
	db database.Querier
}

// NewPostgresStore creates a new PostgreSQL-backed rate limit store.
// The rate_limits table is created by the embedded migrations.
func NewPostgresStore(db database.Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Increment atomically increments the counter for a key.
func (s *PostgresStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	var count int64
	var resetAt time.Time

	err := s.db.QueryRow(ctx, incrementSQL, key, window.Milliseconds()).Scan(&count, &resetAt)
	if err != nil {
		if database.IsUnreachable(err) {
			log.Warn().Err(err).Str("key", key).Msg("Rate limit store unreachable")
		} else {
			log.Error().Err(err).Str("key", key).Msg("Failed to increment rate limit counter")
		}
		return 0, time.Time{}, err
	}

	return count, resetAt, nil
}

// Get retrieves the current count for a key.
func (s *PostgresStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	var count int64
	var resetAt time.Time

	err := s.db.QueryRow(ctx, `
		SELECT count, reset_at
		FROM rate_limits
		WHERE key = $1 AND reset_at > now()
	`, key).Scan(&count, &resetAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	return count, resetAt, nil
}

// Reset resets the counter for a key.
func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM rate_limits WHERE key = $1`, key)
	return err
}

// Cleanup removes expired entries from the rate_limits table.
// The request path never deletes; expired rows are recycled on the next hit.
func (s *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.db.Exec(ctx, `DELETE FROM rate_limits WHERE reset_at <= now()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Close is a no-op for PostgresStore as we don't own the connection pool.
func (s *PostgresStore) Close() error {
	return nil
}
