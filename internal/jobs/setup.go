package jobs

import (
	"github.com/markwell-app/markwell/internal/config"
	"github.com/rs/zerolog/log"
)

// Dependencies are the services the built-in jobs operate on
type Dependencies struct {
	Items   Backfiller
	Tasks   DueLister
	Mailer  Mailer  // nil disables the digest
	Limiter Cleaner // set only for stores that keep expired records
	Tokens  Cleaner // shared CSRF token storage
	BaseURL string
}

// RateLimitCleanupSchedule is when expired rate limit records and CSRF
// tokens are purged
const RateLimitCleanupSchedule = "@hourly"

// RegisterDefaults registers the built-in jobs from configuration
func RegisterDefaults(s *Scheduler, cfg config.JobsConfig, deps Dependencies) error {
	if deps.Items != nil {
		if err := s.Register(JobMetadataBackfill, cfg.BackfillSchedule,
			MetadataBackfill(deps.Items, cfg.BackfillBatchSize, cfg.BackfillMaxAttempts)); err != nil {
			return err
		}
	}

	if deps.Limiter != nil {
		if err := s.Register(JobRateLimitCleanup, RateLimitCleanupSchedule, RateLimitCleanup(deps.Limiter)); err != nil {
			return err
		}
	}

	if deps.Tokens != nil {
		if err := s.Register(JobCSRFCleanup, RateLimitCleanupSchedule, CSRFCleanup(deps.Tokens)); err != nil {
			return err
		}
	}

	if deps.Tasks == nil || deps.Mailer == nil {
		log.Warn().Msg("Task digest disabled: no mailer configured")
		return nil
	}
	return s.Register(JobTaskDigest, cfg.DigestSchedule, TaskDigest(deps.Tasks, deps.Mailer, deps.BaseURL, nil))
}
