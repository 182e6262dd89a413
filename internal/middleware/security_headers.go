package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// SecurityHeadersConfig holds the header values to send; empty values are skipped
type SecurityHeadersConfig struct {
	ContentSecurityPolicy   string
	XFrameOptions           string
	XContentTypeOptions     string
	StrictTransportSecurity string // sent over HTTPS only
	ReferrerPolicy          string
}

// DefaultSecurityHeadersConfig returns headers for a JSON-only API
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		ContentSecurityPolicy:   "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:           "DENY",
		XContentTypeOptions:     "nosniff",
		StrictTransportSecurity: "max-age=31536000; includeSubDomains",
		ReferrerPolicy:          "no-referrer",
	}
}

// SecurityHeaders adds security headers to every response
func SecurityHeaders(config ...SecurityHeadersConfig) fiber.Handler {
	cfg := DefaultSecurityHeadersConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	headers := map[string]string{
		"Content-Security-Policy": cfg.ContentSecurityPolicy,
		"X-Frame-Options":         cfg.XFrameOptions,
		"X-Content-Type-Options":  cfg.XContentTypeOptions,
		"Referrer-Policy":         cfg.ReferrerPolicy,
	}

	return func(c *fiber.Ctx) error {
		for name, value := range headers {
			if value != "" {
				c.Set(name, value)
			}
		}
		if cfg.StrictTransportSecurity != "" && c.Protocol() == "https" {
			c.Set("Strict-Transport-Security", cfg.StrictTransportSecurity)
		}
		return c.Next()
	}
}
