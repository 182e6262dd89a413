package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// TokenStorage is a fiber.Storage on the csrf_tokens table, so every
// instance sharing the database sees the same issued tokens. Expiry is
// judged by the database clock.
type TokenStorage struct {
	db      Querier
	timeout time.Duration
}

// NewTokenStorage creates a storage on db. The table is created by the
// embedded migrations.
func NewTokenStorage(db Querier) *TokenStorage {
	return &TokenStorage{db: db, timeout: 5 * time.Second}
}

func (s *TokenStorage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Get returns nil, nil for missing and expired keys
func (s *TokenStorage) Get(key string) ([]byte, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var value []byte
	err := s.db.QueryRow(ctx, `
		SELECT value FROM csrf_tokens
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())
	`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key. exp <= 0 means no expiry.
func (s *TokenStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.Exec(ctx, `
		INSERT INTO csrf_tokens (key, value, expires_at)
		VALUES ($1, $2, CASE WHEN $3::bigint > 0 THEN now() + $3::bigint * INTERVAL '1 millisecond' END)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, val, exp.Milliseconds())
	return err
}

// Delete removes key
func (s *TokenStorage) Delete(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.db.Exec(ctx, `DELETE FROM csrf_tokens WHERE key = $1`, key)
	return err
}

// Reset removes every key
func (s *TokenStorage) Reset() error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.db.Exec(ctx, `DELETE FROM csrf_tokens`)
	return err
}

// Close is a no-op; the pool belongs to the caller
func (s *TokenStorage) Close() error {
	return nil
}

// Cleanup deletes expired tokens
func (s *TokenStorage) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM csrf_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
