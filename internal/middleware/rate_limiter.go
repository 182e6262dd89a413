package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/markwell-app/markwell/internal/observability"
	"github.com/markwell-app/markwell/internal/ratelimit"
	"github.com/rs/zerolog/log"
)

// RateLimitRecorder receives limiter decisions
type RateLimitRecorder interface {
	RecordRateLimit(rule, outcome string, duration time.Duration)
}

// RateLimiterConfig holds configuration for one rate limit rule
type RateLimiterConfig struct {
	Rule     string // names the rule in keys, logs and metrics
	Store    ratelimit.Store
	Limit    int64
	Window   time.Duration
	KeyFunc  func(*fiber.Ctx) string
	FailOpen bool // let requests through when the store is down
	Message  string
	Recorder RateLimitRecorder
}

// NewRateLimiter returns a fixed-window limiter backed by a shared store.
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejected requests get 429 with Retry-After.
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	if config.Rule == "" {
		config.Rule = "global"
	}
	if config.Limit <= 0 {
		config.Limit = ratelimit.DefaultLimit
	}
	if config.Window <= 0 {
		config.Window = ratelimit.DefaultWindow
	}
	if config.KeyFunc == nil {
		config.KeyFunc = KeyByIP
	}
	if config.Message == "" {
		config.Message = fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.",
			config.Limit, config.Window.String())
	}

	return func(c *fiber.Ctx) error {
		key := config.Rule + ":" + config.KeyFunc(c)

		start := time.Now()
		res, err := ratelimit.Check(c.UserContext(), config.Store, key, config.Limit, config.Window)
		elapsed := time.Since(start)

		if err != nil {
			config.record(observability.RateLimitError, elapsed)
			log.Error().Err(err).
				Str("rule", config.Rule).
				Bool("fail_open", config.FailOpen).
				Msg("Rate limit check failed")
			if config.FailOpen {
				return c.Next()
			}
			return fiber.NewError(fiber.StatusServiceUnavailable, "Rate limiting is temporarily unavailable")
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			config.record(observability.RateLimitDenied, elapsed)
			retryAfter := retryAfterSeconds(res.RetryAfter(time.Now()))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       config.Message,
				"code":        "RATE_LIMITED",
				"retry_after": retryAfter,
			})
		}

		config.record(observability.RateLimitAllowed, elapsed)
		return c.Next()
	}
}

func (config RateLimiterConfig) record(outcome string, d time.Duration) {
	if config.Recorder != nil {
		config.Recorder.RecordRateLimit(config.Rule, outcome, d)
	}
}

// retryAfterSeconds rounds up so clients never retry before the reset
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// KeyByIP keys requests by client address
func KeyByIP(c *fiber.Ctx) string {
	return "ip:" + c.IP()
}

// KeyByUser keys authenticated requests by user and anonymous ones by address
func KeyByUser(c *fiber.Ctx) string {
	if p := GetPrincipal(c); p != nil && p.UserID != "" {
		return "user:" + p.UserID
	}
	return KeyByIP(c)
}
