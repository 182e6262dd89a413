package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/markwell-app/markwell/internal/api"
	"github.com/markwell-app/markwell/internal/auth"
	"github.com/markwell-app/markwell/internal/bookmarks"
	"github.com/markwell-app/markwell/internal/config"
	"github.com/markwell-app/markwell/internal/database"
	"github.com/markwell-app/markwell/internal/email"
	"github.com/markwell-app/markwell/internal/jobs"
	"github.com/markwell-app/markwell/internal/metadata"
	"github.com/markwell-app/markwell/internal/observability"
	"github.com/markwell-app/markwell/internal/ratelimit"
	"github.com/markwell-app/markwell/internal/tasks"
	"github.com/markwell-app/markwell/internal/users"
)

// app holds every long-lived component built from configuration
type app struct {
	cfg       *config.Config
	db        *database.Connection
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	limiter   ratelimit.Store
	verifier  auth.Verifier
	fetcher   *metadata.Fetcher
	mail      *email.Service
	users     *users.Service
	items     *bookmarks.Service
	tasks     *tasks.Service
	tokens    *database.TokenStorage
	scheduler *jobs.Scheduler
}

// buildApp connects to the database and wires the services. Callers must
// call close.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: observability.NewMetrics()}

	tracer, err := observability.NewTracer(ctx, cfg.Tracing, cfg.Environment, Version)
	if err != nil {
		return nil, err
	}
	a.tracer = tracer

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMetrics(a.metrics)
	a.db = db

	a.limiter, err = ratelimit.NewStore(&cfg.RateLimit, db)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.verifier, err = auth.NewVerifier(ctx, &cfg.Auth)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to initialize %s verifier: %w", cfg.Auth.Provider, err)
	}

	a.mail, err = email.NewService(&cfg.Email)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.mail.SetRecorder(a.metrics)

	a.fetcher = metadata.NewFetcher(cfg.Metadata)
	a.fetcher.SetRecorder(a.metrics)

	a.tokens = database.NewTokenStorage(db)
	a.users = users.NewService(db)
	a.items = bookmarks.NewService(db, a.fetcher, a.mail)
	a.tasks = tasks.NewService(db)

	a.scheduler = jobs.NewScheduler()
	a.scheduler.SetRecorder(a.metrics)
	deps := jobs.Dependencies{
		Items:   a.items,
		Tasks:   a.tasks,
		Tokens:  a.tokens,
		BaseURL: cfg.BaseURL,
	}
	if a.mail.Enabled() {
		deps.Mailer = a.mail
	}
	if cleaner, ok := a.limiter.(jobs.Cleaner); ok {
		deps.Limiter = cleaner
	}
	if err := jobs.RegisterDefaults(a.scheduler, cfg.Jobs, deps); err != nil {
		a.close(ctx)
		return nil, err
	}

	return a, nil
}

// server builds the HTTP server on top of the wired services
func (a *app) server() *api.Server {
	api.Version = Version
	return api.NewServer(a.cfg, api.Services{
		DB:       a.db,
		Verifier: a.verifier,
		Limiter:  a.limiter,
		Users:    a.users,
		Items:    a.items,
		Tasks:    a.tasks,
		Metadata: a.fetcher,
		Mail:     a.mail,
		Metrics:  a.metrics,
		Tracer:   a.tracer,

		CSRFStorage: a.tokens,
	})
}

func (a *app) close(ctx context.Context) {
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close rate limit store")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(ctx)
	}
}
