package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/markwell-app/markwell/internal/auth"
	"github.com/markwell-app/markwell/internal/observability"
	"github.com/markwell-app/markwell/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decisionRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *decisionRecorder) RecordRateLimit(rule, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, rule+":"+outcome)
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("dial tcp: connection refused")
}
func (brokenStore) Get(context.Context, string) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("dial tcp: connection refused")
}
func (brokenStore) Reset(context.Context, string) error { return nil }
func (brokenStore) Close() error                        { return nil }

func newLimitedApp(t *testing.T, cfg RateLimiterConfig) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Get("/limited", NewRateLimiter(cfg), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestNewRateLimiter(t *testing.T) {
	store := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	rec := &decisionRecorder{}

	app := newLimitedApp(t, RateLimiterConfig{
		Rule:     "api",
		Store:    store,
		Limit:    3,
		Window:   time.Minute,
		Recorder: rec,
	})

	for i, want := range []string{"2", "1", "0"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i+1)
		assert.Equal(t, "3", resp.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, want, resp.Header.Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "RATE_LIMITED", payload["code"])

	assert.Equal(t, []string{
		"api:" + observability.RateLimitAllowed,
		"api:" + observability.RateLimitAllowed,
		"api:" + observability.RateLimitAllowed,
		"api:" + observability.RateLimitDenied,
	}, rec.outcomes)

	// Rules keep separate counters for the same client
	other := newLimitedApp(t, RateLimiterConfig{Rule: "share", Store: store, Limit: 3, Window: time.Minute})
	resp, err = other.Test(httptest.NewRequest("GET", "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestNewRateLimiter_StoreFailure(t *testing.T) {
	t.Run("fails closed by default", func(t *testing.T) {
		rec := &decisionRecorder{}
		app := newLimitedApp(t, RateLimiterConfig{Rule: "api", Store: brokenStore{}, Limit: 3, Recorder: rec})

		resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("X-RateLimit-Remaining"))
		assert.Equal(t, []string{"api:" + observability.RateLimitError}, rec.outcomes)
	})

	t.Run("fail open lets the request through", func(t *testing.T) {
		app := newLimitedApp(t, RateLimiterConfig{Rule: "api", Store: brokenStore{}, Limit: 3, FailOpen: true})

		resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	store := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	app := newLimitedApp(t, RateLimiterConfig{Store: store})
	resp, err := app.Test(httptest.NewRequest("GET", "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(ratelimit.DefaultLimit, 10), resp.Header.Get("X-RateLimit-Limit"))

	count, _, err := store.Get(context.Background(), "global:ip:0.0.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestKeyByUser(t *testing.T) {
	app := fiber.New()
	app.Get("/anon", func(c *fiber.Ctx) error {
		return c.SendString(KeyByUser(c))
	})
	app.Get("/user", func(c *fiber.Ctx) error {
		setPrincipal(c, &auth.Principal{UserID: "u-42"})
		return c.SendString(KeyByUser(c))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/anon", nil))
	require.NoError(t, err)
	assert.Equal(t, "ip:0.0.0.0", readBody(t, resp.Body))

	resp, err = app.Test(httptest.NewRequest("GET", "/user", nil))
	require.NoError(t, err)
	assert.Equal(t, "user:u-42", readBody(t, resp.Body))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(-time.Second))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 2, retryAfterSeconds(1100*time.Millisecond))
	assert.Equal(t, 60, retryAfterSeconds(time.Minute))
}
