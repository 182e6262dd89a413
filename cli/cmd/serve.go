package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markwell-app/markwell/internal/jobs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveSkipMigrations bool
	serveShutdownGrace  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP API and, unless jobs.enabled is false, the background jobs.

Migrations are applied on startup unless --skip-migrations is set.

Examples:
  markwell serve
  markwell serve --config ./markwell.yaml --debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveSkipMigrations, "skip-migrations", false,
		"do not apply migrations on startup")
	serveCmd.Flags().DurationVar(&serveShutdownGrace, "shutdown-timeout", 30*time.Second,
		"how long to wait for in-flight requests and jobs on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("environment", cfg.Environment).
		Msg("Starting Markwell")

	ctx := context.Background()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if !serveSkipMigrations {
		if err := a.db.Migrate(); err != nil {
			return err
		}
	}

	if cfg.Jobs.Enabled {
		if cfg.Jobs.LeaderElection {
			elector := jobs.NewLeaderElector(jobs.PoolAcquirer(a.db.Pool()), jobs.SchedulerLockID, "scheduler")
			a.scheduler.SetGate(elector.IsLeader)
			elector.Start(ctx)
			defer elector.Stop()
		}
		a.scheduler.Start()
	} else {
		log.Info().Msg("Background jobs are disabled")
	}

	server := a.server()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting HTTP server")
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			a.scheduler.Stop(serveShutdownGrace)
			return err
		}
		return errors.New("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, serveShutdownGrace)
	defer cancel()

	a.scheduler.Stop(serveShutdownGrace)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}

	log.Info().Msg("Server exited")
	return nil
}
