package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/markwell-app/markwell/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Query parameters whose values never reach the logs
var sensitiveQueryParams = map[string]struct{}{
	"token":         {},
	"access_token":  {},
	"id_token":      {},
	"code":          {},
	"api_key":       {},
	"secret":        {},
	"password":      {},
	"session":       {},
	"refresh_token": {},
}

// StructuredLoggerConfig holds configuration for request logging
type StructuredLoggerConfig struct {
	SkipPaths            []string
	Logger               *zerolog.Logger // defaults to the global logger
	SlowRequestThreshold time.Duration   // 0 disables slow request warnings
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths:            []string{"/health", "/metrics"},
		SlowRequestThreshold: time.Second,
	}
}

// redactQueryString replaces the values of sensitive parameters
func redactQueryString(raw string) string {
	if raw == "" {
		return ""
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[redacted]"
	}

	for key := range values {
		if _, ok := sensitiveQueryParams[strings.ToLower(key)]; ok {
			values.Set(key, "[redacted]")
		}
	}
	return values.Encode()
}

// StructuredLogger logs one line per request
func StructuredLogger(config ...StructuredLoggerConfig) fiber.Handler {
	cfg := DefaultStructuredLoggerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if _, ok := skip[path]; ok {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		// The error handler has not run yet, so derive the status from err
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error().Err(err)
		case status >= 400:
			event = logger.Warn()
		case cfg.SlowRequestThreshold > 0 && duration > cfg.SlowRequestThreshold:
			event = logger.Warn().Bool("slow_request", true)
		default:
			event = logger.Info()
		}

		event = event.
			Str("request_id", localString(c, "requestid")).
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds())

		if q := string(c.Request().URI().QueryString()); q != "" {
			event = event.Str("query", redactQueryString(q))
		}
		if userID := localString(c, LocalsUserID); userID != "" {
			event = event.Str("user_id", userID)
		}
		if traceID := observability.ExtractTraceID(c.UserContext()); traceID != "" {
			event = event.Str("trace_id", traceID)
		}

		event.Msg("HTTP request")
		return err
	}
}

func localString(c *fiber.Ctx, key string) string {
	s, _ := c.Locals(key).(string)
	return s
}
