package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/rs/zerolog/log"
)

// CSRFConfig holds configuration for CSRF protection of cookie sessions
type CSRFConfig struct {
	// SessionCookie is the auth cookie; requests without it are not checked
	SessionCookie string
	// CookieName is the name of the CSRF cookie
	CookieName string
	// HeaderName carries the echoed token on unsafe requests
	HeaderName string
	// CookieSecure marks the cookie as secure (HTTPS only)
	CookieSecure bool
	// Expiration is how long tokens are valid
	Expiration time.Duration
	// Storage remembers issued tokens. Instances behind one load balancer
	// must share it; the in-memory default suits a single process only.
	Storage fiber.Storage
}

// DefaultCSRFConfig returns default CSRF configuration
func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		SessionCookie: "markwell_session",
		CookieName:    "markwell_csrf",
		HeaderName:    "X-CSRF-Token",
		Expiration:    24 * time.Hour,
	}
}

// CSRF returns a double-submit CSRF guard. Only unsafe requests that
// authenticate with the session cookie are checked. Safe methods hand out the
// token cookie, which the client echoes in HeaderName.
func CSRF(config ...CSRFConfig) fiber.Handler {
	cfg := DefaultCSRFConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "markwell_csrf"
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-CSRF-Token"
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	if cfg.Storage == nil {
		cfg.Storage = memory.New(memory.Config{
			GCInterval: 10 * time.Minute,
		})
	}

	issue := func(c *fiber.Ctx) error {
		token, err := generateCSRFToken(32)
		if err != nil {
			return err
		}
		if err := cfg.Storage.Set(token, []byte("1"), cfg.Expiration); err != nil {
			return err
		}
		c.Cookie(&fiber.Cookie{
			Name:     cfg.CookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(cfg.Expiration.Seconds()),
			Secure:   cfg.CookieSecure,
			HTTPOnly: false, // read by the web client
			SameSite: fiber.CookieSameSiteStrictMode,
		})
		return nil
	}

	// known reports whether token was issued and has not expired. A lookup
	// error counts as known so a store outage does not churn cookies.
	known := func(token string) bool {
		if token == "" {
			return false
		}
		v, err := cfg.Storage.Get(token)
		return err != nil || v != nil
	}

	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			if !known(c.Cookies(cfg.CookieName)) {
				if err := issue(c); err != nil {
					log.Warn().Err(err).Msg("Failed to issue CSRF token")
				}
			}
			return c.Next()
		}

		if c.Get(fiber.HeaderAuthorization) != "" || c.Cookies(cfg.SessionCookie) == "" {
			return c.Next()
		}

		cookieToken := c.Cookies(cfg.CookieName)
		requestToken := c.Get(cfg.HeaderName)
		if requestToken == "" || cookieToken != requestToken {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Invalid or missing CSRF token",
				"code":  "CSRF_FAILED",
			})
		}

		v, err := cfg.Storage.Get(cookieToken)
		if err != nil {
			log.Error().Err(err).Msg("CSRF token lookup failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "CSRF token store unavailable",
				"code":  "SERVICE_UNAVAILABLE",
			})
		}
		if v == nil {
			_ = issue(c)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "CSRF token has expired",
				"code":  "CSRF_EXPIRED",
			})
		}

		return c.Next()
	}
}

// generateCSRFToken generates a random CSRF token
func generateCSRFToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
