// Package ratelimit implements fixed-window request counting on top of a shared store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultLimit is used when Check is called with a non-positive limit
	DefaultLimit int64 = 10

	// DefaultWindow is used when Check is called with a non-positive window
	DefaultWindow = 60 * time.Second

	// MinWindow is the store resolution; shorter windows are rounded up to it
	MinWindow = time.Millisecond
)

var (
	// ErrInvalidKey is returned when Check is called with an empty key
	ErrInvalidKey = errors.New("rate limit key cannot be empty")

	// ErrStoreUnavailable wraps any failure of the backing store
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

var tracer = otel.Tracer("github.com/markwell-app/markwell/internal/ratelimit")

// Store is the interface for rate limit storage backends.
//
// Backends:
//   - PostgreSQL: default, shares state across instances through the primary database
//   - Redis: high-scale deployments (Redis, Valkey, Dragonfly)
//   - Memory: single process only, for development and tests
type Store interface {
	// Increment atomically counts one request against key.
	// A missing or expired record is replaced by count=1 with a fresh window;
	// otherwise count is incremented and the stored reset time is kept.
	// It returns the new count and the stored reset time.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Get returns the current count and reset time without counting a request.
	// Missing or expired keys report a zero count.
	Get(ctx context.Context, key string) (int64, time.Time, error)

	// Reset removes the record for key.
	Reset(ctx context.Context, key string) error

	// Close releases resources owned by the store.
	Close() error
}

// Result contains the rate limit check result
type Result struct {
	// Allowed indicates whether the request is allowed
	Allowed bool

	// Remaining is the number of requests remaining in the current window
	Remaining int64

	// ResetAt is when the rate limit window resets, as recorded by the store
	ResetAt time.Time

	// Limit is the maximum number of requests allowed in the window
	Limit int64
}

// RetryAfter returns how long the caller should wait before the window resets.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Check counts one request against key and reports whether it fits in the budget.
// Store failures are returned wrapped in ErrStoreUnavailable; the caller decides
// whether to fail open or closed.
func Check(ctx context.Context, store Store, key string, limit int64, window time.Duration) (*Result, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if window < MinWindow {
		window = MinWindow
	}

	ctx, span := tracer.Start(ctx, "ratelimit.Check")
	defer span.End()
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int64("ratelimit.limit", limit),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)

	count, resetAt, err := store.Increment(ctx, key, window)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store increment failed")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	result := &Result{
		Allowed:   count <= limit,
		Remaining: limit - count,
		Limit:     limit,
		ResetAt:   resetAt,
	}

	if result.Remaining < 0 {
		result.Remaining = 0
	}

	span.SetAttributes(
		attribute.Int64("ratelimit.count", count),
		attribute.Bool("ratelimit.allowed", result.Allowed),
	)

	return result, nil
}
