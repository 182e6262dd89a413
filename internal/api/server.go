package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/markwell-app/markwell/internal/auth"
	"github.com/markwell-app/markwell/internal/bookmarks"
	"github.com/markwell-app/markwell/internal/config"
	"github.com/markwell-app/markwell/internal/database"
	"github.com/markwell-app/markwell/internal/email"
	"github.com/markwell-app/markwell/internal/metadata"
	"github.com/markwell-app/markwell/internal/middleware"
	"github.com/markwell-app/markwell/internal/observability"
	"github.com/markwell-app/markwell/internal/ratelimit"
	"github.com/markwell-app/markwell/internal/tasks"
	"github.com/markwell-app/markwell/internal/users"
	"github.com/rs/zerolog/log"
)

// Version is reported by the debug route and the CLI
var Version = "dev"

// Services are the collaborators the HTTP layer is built on. Any of Metadata,
// Mail, Metrics, Tracer and Limiter may be nil. A nil CSRFStorage keeps CSRF
// tokens in process memory, which only works for a single instance.
type Services struct {
	DB       database.Executor
	Verifier auth.Verifier
	Limiter  ratelimit.Store
	Users    *users.Service
	Items    *bookmarks.Service
	Tasks    *tasks.Service
	Metadata metadata.Source
	Mail     *email.Service
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer

	CSRFStorage fiber.Storage
}

// Server represents the HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	svc       Services
	startedAt time.Time
	stop      chan struct{}
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, svc Services) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Markwell " + Version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		svc:       svc,
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	// Request ID first so every later middleware can log it
	s.app.Use(requestid.New())

	if s.svc.Tracer != nil && s.svc.Tracer.IsEnabled() {
		s.app.Use(middleware.TracingMiddleware(middleware.TracingConfig{
			Enabled:   true,
			SkipPaths: []string{"/health", "/metrics"},
		}))
	}

	if s.svc.Metrics != nil {
		s.app.Use(s.svc.Metrics.MetricsMiddleware())
	}

	s.app.Use(middleware.SecurityHeaders())
	s.app.Use(middleware.StructuredLogger())

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	// AllowCredentials cannot be combined with a wildcard origin
	corsCredentials := s.config.CORS.AllowCredentials
	if s.config.CORS.AllowedOrigins == "*" && corsCredentials {
		log.Warn().Msg("CORS: AllowCredentials disabled because AllowOrigins is '*'")
		corsCredentials = false
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		ExposeHeaders:    s.config.CORS.ExposedHeaders,
		AllowCredentials: corsCredentials,
		MaxAge:           s.config.CORS.MaxAge,
	}))

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.svc.Metrics != nil {
		s.app.Get("/metrics", s.svc.Metrics.Handler())
	}

	authCfg := middleware.AuthConfig{
		Verifier:   s.svc.Verifier,
		CookieName: s.config.Auth.SessionCookie,
		Provider:   s.config.Auth.Provider,
	}
	if s.svc.Metrics != nil {
		authCfg.Recorder = s.svc.Metrics
	}

	if s.config.Server.EnableDebugRoute {
		s.app.Get("/api/debug",
			middleware.OptionalAuth(authCfg),
			s.limiter("debug", s.config.RateLimit.Debug, middleware.KeyByIP),
			s.handleDebug,
		)
	}

	v1 := s.app.Group("/api/v1",
		middleware.CSRF(middleware.CSRFConfig{
			SessionCookie: s.config.Auth.SessionCookie,
			CookieSecure:  s.config.Environment == "production",
			Storage:       s.svc.CSRFStorage,
		}),
		middleware.RequireAuth(authCfg),
		// throttled requests never reach the users table
		s.limiter("api", s.config.RateLimit.API, middleware.KeyByUser),
		s.requireUser,
		middleware.ETag(),
	)

	v1.Get("/me", s.handleMe)

	items := &ItemHandler{items: s.svc.Items}
	v1.Get("/items", items.List)
	v1.Post("/items", items.Create)
	v1.Get("/items/:id", items.Get)
	v1.Patch("/items/:id", items.Update)
	v1.Delete("/items/:id", items.Delete)
	v1.Post("/items/:id/refresh", s.limiter("metadata", s.config.RateLimit.Metadata, middleware.KeyByUser), items.Refresh)
	v1.Post("/items/:id/share", s.limiter("share", s.config.RateLimit.Share, middleware.KeyByUser), items.Share)
	v1.Get("/tags", items.Tags)

	taskHandler := &TaskHandler{tasks: s.svc.Tasks}
	v1.Get("/tasks", taskHandler.List)
	v1.Post("/tasks", taskHandler.Create)
	v1.Patch("/tasks/:id", taskHandler.Update)
	v1.Delete("/tasks/:id", taskHandler.Delete)
	v1.Post("/tasks/:id/complete", taskHandler.Complete)

	v1.Get("/metadata",
		s.limiter("metadata", s.config.RateLimit.Metadata, middleware.KeyByUser),
		s.handleMetadataPreview,
	)

	s.app.Use(func(c *fiber.Ctx) error {
		return SendErrorWithCode(c, fiber.StatusNotFound, "Route not found", "NOT_FOUND")
	})
}

// limiter builds a rate limit middleware for rule, or a pass-through when
// rate limiting is disabled
func (s *Server) limiter(rule string, r config.RateLimitRule, key func(*fiber.Ctx) string) fiber.Handler {
	if !s.config.RateLimit.Enabled || s.svc.Limiter == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	limit, window := r.Limit, r.Window
	if limit <= 0 {
		limit = s.config.RateLimit.DefaultLimit
	}
	if window <= 0 {
		window = s.config.RateLimit.DefaultWindow
	}

	cfg := middleware.RateLimiterConfig{
		Rule:     rule,
		Store:    s.svc.Limiter,
		Limit:    limit,
		Window:   window,
		KeyFunc:  key,
		FailOpen: s.config.RateLimit.FailOpen,
	}
	if s.svc.Metrics != nil {
		cfg.Recorder = s.svc.Metrics
	}
	return middleware.NewRateLimiter(cfg)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbHealthy := true
	if err := s.svc.DB.Health(ctx); err != nil {
		dbHealthy = false
		log.Error().Err(err).Msg("Database health check failed")
	}

	status := "ok"
	httpStatus := fiber.StatusOK
	if !dbHealthy {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"database": dbHealthy,
			"email":    s.svc.Mail != nil && s.svc.Mail.Enabled(),
		},
		"timestamp": time.Now().UTC(),
	})
}

// Start collects runtime metrics in the background and serves HTTP until shutdown
func (s *Server) Start() error {
	if s.svc.Metrics != nil {
		go s.collectMetrics(15 * time.Second)
	}
	return s.app.Listen(s.config.Server.Address)
}

func (s *Server) collectMetrics(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stats, _ := s.svc.DB.(interface {
		Stats() *pgxpool.Stat
	})

	for {
		s.svc.Metrics.UpdateUptime(s.startedAt)
		if stats != nil {
			st := stats.Stats()
			s.svc.Metrics.UpdateDBStats(st.TotalConns(), st.IdleConns(), st.MaxConns())
		}

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)

	if s.svc.Tracer != nil {
		if err := s.svc.Tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}

	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}
