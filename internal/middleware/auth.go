package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/markwell-app/markwell/internal/auth"
	"github.com/rs/zerolog/log"
)

// Locals keys set by the auth middleware
const (
	LocalsPrincipal = "principal"
	LocalsUserID    = "user_id"
)

// AuthRecorder receives authentication outcomes
type AuthRecorder interface {
	RecordAuthAttempt(provider string, success bool)
}

// AuthConfig configures RequireAuth and OptionalAuth
type AuthConfig struct {
	Verifier auth.Verifier
	// CookieName is checked when no Authorization header is present
	CookieName string
	// Provider labels metrics
	Provider string
	Recorder AuthRecorder
}

// RequireAuth rejects requests without a valid bearer credential
func RequireAuth(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractToken(c, cfg.CookieName)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing authentication credentials")
		}

		principal, err := cfg.Verifier.Verify(c.UserContext(), token)
		cfg.record(err == nil)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected credential")
			if errors.Is(err, auth.ErrExpiredToken) {
				return fiber.NewError(fiber.StatusUnauthorized, "Token has expired")
			}
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid authentication credentials")
		}

		setPrincipal(c, principal)
		return c.Next()
	}
}

// OptionalAuth attaches a principal when a valid credential is present and
// otherwise lets the request through anonymously
func OptionalAuth(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractToken(c, cfg.CookieName)
		if token == "" || cfg.Verifier == nil {
			return c.Next()
		}

		principal, err := cfg.Verifier.Verify(c.UserContext(), token)
		cfg.record(err == nil)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Path()).Msg("Ignoring invalid optional credential")
			return c.Next()
		}

		setPrincipal(c, principal)
		return c.Next()
	}
}

// GetPrincipal returns the authenticated principal or nil
func GetPrincipal(c *fiber.Ctx) *auth.Principal {
	p, _ := c.Locals(LocalsPrincipal).(*auth.Principal)
	return p
}

func (cfg AuthConfig) record(success bool) {
	if cfg.Recorder != nil {
		cfg.Recorder.RecordAuthAttempt(cfg.Provider, success)
	}
}

func setPrincipal(c *fiber.Ctx, p *auth.Principal) {
	c.Locals(LocalsPrincipal, p)
	c.Locals(LocalsUserID, p.UserID)
	c.SetUserContext(auth.WithPrincipal(c.UserContext(), p))
}

// extractToken reads "Authorization: Bearer <token>", falling back to the
// session cookie
func extractToken(c *fiber.Ctx, cookieName string) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName != "" {
		return c.Cookies(cookieName)
	}
	return ""
}
