package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/markwell-app/markwell/internal/email"
	"github.com/markwell-app/markwell/internal/tasks"
	"github.com/rs/zerolog/log"
)

// Job names
const (
	JobMetadataBackfill = "metadata_backfill"
	JobTaskDigest       = "task_digest"
	JobRateLimitCleanup = "ratelimit_cleanup"
	JobCSRFCleanup      = "csrf_token_cleanup"
)

// DigestHorizon is how far ahead the digest looks for due action items
const DigestHorizon = 24 * time.Hour

// Backfiller re-enriches items whose metadata is missing
type Backfiller interface {
	Backfill(ctx context.Context, limit, maxAttempts int) (attempted, enriched int, err error)
}

// DueLister lists open action items due before a point in time
type DueLister interface {
	DueBefore(ctx context.Context, t time.Time) ([]tasks.DueTask, error)
}

// Cleaner deletes records that have expired
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Mailer sends a rendered message
type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// MetadataBackfill returns the metadata_backfill job
func MetadataBackfill(b Backfiller, batchSize, maxAttempts int) Func {
	return func(ctx context.Context) error {
		attempted, enriched, err := b.Backfill(ctx, batchSize, maxAttempts)
		if err != nil {
			return fmt.Errorf("metadata backfill: %w", err)
		}
		log.Info().
			Int("attempted", attempted).
			Int("enriched", enriched).
			Msg("Metadata backfill pass complete")
		return nil
	}
}

// RateLimitCleanup returns the ratelimit_cleanup job, which purges records
// for keys that stopped sending requests
func RateLimitCleanup(c Cleaner) Func {
	return cleanup("rate limit records", c)
}

// CSRFCleanup returns the csrf_token_cleanup job
func CSRFCleanup(c Cleaner) Func {
	return cleanup("CSRF tokens", c)
}

func cleanup(what string, c Cleaner) Func {
	return func(ctx context.Context) error {
		deleted, err := c.Cleanup(ctx)
		if err != nil {
			return fmt.Errorf("cleanup of expired %s: %w", what, err)
		}
		log.Debug().Int64("deleted", deleted).Msgf("Expired %s removed", what)
		return nil
	}
}

// TaskDigest returns the task_digest job. Each user with open action items
// due within DigestHorizon gets one message. A failed send is logged and
// the job moves on to the next user; the run reports an error afterwards
// if any send failed.
func TaskDigest(lister DueLister, mailer Mailer, baseURL string, now func() time.Time) Func {
	if now == nil {
		now = time.Now
	}

	return func(ctx context.Context) error {
		due, err := lister.DueBefore(ctx, now().Add(DigestHorizon))
		if err != nil {
			return fmt.Errorf("task digest: %w", err)
		}

		batches := groupByUser(due)
		failed := 0
		for _, batch := range batches {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			msg, err := email.DigestMessage(batch.email, batch.data(baseURL))
			if err != nil {
				failed++
				log.Error().Err(err).Str("user_id", batch.userID.String()).Msg("Failed to render digest")
				continue
			}
			if err := mailer.Send(ctx, msg); err != nil {
				failed++
				log.Warn().Err(err).Str("user_id", batch.userID.String()).Msg("Failed to send digest, continuing")
				continue
			}
		}

		log.Info().
			Int("users", len(batches)).
			Int("tasks", len(due)).
			Int("failed", failed).
			Msg("Task digest complete")

		if failed > 0 {
			return fmt.Errorf("task digest: %d of %d messages failed", failed, len(batches))
		}
		return nil
	}
}

type digestBatch struct {
	userID uuid.UUID
	email  string
	name   string
	tasks  []tasks.DueTask
}

func (b digestBatch) data(baseURL string) email.DigestData {
	out := email.DigestData{
		Name:    b.name,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Tasks:   make([]email.DigestTask, 0, len(b.tasks)),
	}
	for _, t := range b.tasks {
		due := t.DueAt
		out.Tasks = append(out.Tasks, email.DigestTask{Title: t.Title, DueAt: &due, URL: t.ItemURL})
	}
	return out
}

// groupByUser batches tasks per user, keeping first-seen order
func groupByUser(due []tasks.DueTask) []digestBatch {
	index := make(map[uuid.UUID]int)
	var batches []digestBatch
	for _, t := range due {
		i, ok := index[t.UserID]
		if !ok {
			i = len(batches)
			index[t.UserID] = i
			batches = append(batches, digestBatch{userID: t.UserID, email: t.Email, name: t.Name})
		}
		batches[i].tasks = append(batches[i].tasks, t)
	}
	return batches
}
