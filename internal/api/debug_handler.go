package api

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/markwell-app/markwell/internal/middleware"
	"github.com/rs/zerolog/log"
)

// DebugResponse is the body of a successful GET /api/debug
type DebugResponse struct {
	HasUserID bool                   `json:"hasUserId"`
	Env       map[string]interface{} `json:"env"`
	DBCheck   string                 `json:"dbCheck"`
}

// DebugError is the body of a failed GET /api/debug
type DebugError struct {
	Error string `json:"error"`
	Stack string `json:"stack"`
}

// handleDebug reports whether the caller is signed in, which integrations are
// configured and whether the database answers. Failures, panics included,
// are answered with the raw message and a stack trace.
func (s *Server) handleDebug(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = s.debugFailure(c, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	if err := s.svc.DB.Health(ctx); err != nil {
		return s.debugFailure(c, err)
	}

	return c.JSON(DebugResponse{
		HasUserID: middleware.GetPrincipal(c) != nil,
		Env:       s.debugEnv(),
		DBCheck:   "ok",
	})
}

// debugEnv never includes secret values, only whether they are set
func (s *Server) debugEnv() map[string]interface{} {
	cfg := s.config
	return map[string]interface{}{
		"environment":      cfg.Environment,
		"version":          Version,
		"authProvider":     cfg.Auth.Provider,
		"hasJwtSecret":     cfg.Auth.JWTSecret != "",
		"hasOidcIssuer":    cfg.Auth.OIDCIssuerURL != "",
		"hasDatabaseUrl":   cfg.Database.URL != "" || cfg.Database.Host != "",
		"emailEnabled":     s.svc.Mail != nil && s.svc.Mail.Enabled(),
		"emailProvider":    cfg.Email.Provider,
		"rateLimitEnabled": cfg.RateLimit.Enabled,
		"rateLimitBackend": cfg.RateLimit.Backend,
		"metadataEnabled":  s.svc.Metadata != nil,
		"tracingEnabled":   cfg.Tracing.Enabled,
		"jobsEnabled":      cfg.Jobs.Enabled,
	}
}

func (s *Server) debugFailure(c *fiber.Ctx, err error) error {
	log.Error().Err(err).Str("request_id", getRequestID(c)).Msg("Debug check failed")
	return c.Status(fiber.StatusInternalServerError).JSON(DebugError{
		Error: err.Error(),
		Stack: string(debug.Stack()),
	})
}
