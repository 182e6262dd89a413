package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/markwell-app/markwell/internal/config"
	"github.com/markwell-app/markwell/internal/email"
	"github.com/markwell-app/markwell/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackfiller struct {
	limit, maxAttempts int
	err                error
}

func (f *fakeBackfiller) Backfill(_ context.Context, limit, maxAttempts int) (int, int, error) {
	f.limit, f.maxAttempts = limit, maxAttempts
	if f.err != nil {
		return 0, 0, f.err
	}
	return 3, 2, nil
}

type fakeLister struct {
	before time.Time
	due    []tasks.DueTask
	err    error
}

func (f *fakeLister) DueBefore(_ context.Context, t time.Time) ([]tasks.DueTask, error) {
	f.before = t
	return f.due, f.err
}

type fakeMailer struct {
	sent   []email.Message
	failTo string
}

func (m *fakeMailer) Send(_ context.Context, msg email.Message) error {
	if msg.To == m.failTo {
		return errors.New("550 mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestMetadataBackfill(t *testing.T) {
	ctx := context.Background()

	b := &fakeBackfiller{}
	require.NoError(t, MetadataBackfill(b, 50, 5)(ctx))
	assert.Equal(t, 50, b.limit)
	assert.Equal(t, 5, b.maxAttempts)

	cause := errors.New("query failed")
	err := MetadataBackfill(&fakeBackfiller{err: cause}, 50, 5)(ctx)
	assert.ErrorIs(t, err, cause)
}

type fakeCleaner struct {
	calls int
	err   error
}

func (f *fakeCleaner) Cleanup(context.Context) (int64, error) {
	f.calls++
	return 4, f.err
}

func TestRateLimitCleanup(t *testing.T) {
	ctx := context.Background()

	c := &fakeCleaner{}
	require.NoError(t, RateLimitCleanup(c)(ctx))
	assert.Equal(t, 1, c.calls)

	cause := errors.New("deadlock detected")
	err := RateLimitCleanup(&fakeCleaner{err: cause})(ctx)
	assert.ErrorIs(t, err, cause)
}

func TestCSRFCleanup(t *testing.T) {
	c := &fakeCleaner{}
	require.NoError(t, CSRFCleanup(c)(context.Background()))
	assert.Equal(t, 1, c.calls)

	err := CSRFCleanup(&fakeCleaner{err: errors.New("timeout")})(context.Background())
	assert.ErrorContains(t, err, "CSRF tokens")
}

func TestTaskDigest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ada, bob := uuid.New(), uuid.New()

	due := []tasks.DueTask{
		{TaskID: uuid.New(), UserID: ada, Email: "ada@example.com", Name: "Ada", Title: "Review draft", DueAt: now.Add(2 * time.Hour)},
		{TaskID: uuid.New(), UserID: bob, Email: "bob@example.com", Name: "Bob", Title: "Call back", DueAt: now.Add(3 * time.Hour)},
		{TaskID: uuid.New(), UserID: ada, Email: "ada@example.com", Name: "Ada", Title: "Read paper", DueAt: now.Add(5 * time.Hour), ItemURL: "https://example.com/paper"},
	}

	t.Run("one message per user", func(t *testing.T) {
		lister := &fakeLister{due: due}
		mailer := &fakeMailer{}

		err := TaskDigest(lister, mailer, "https://markwell.test/", clock)(ctx)
		require.NoError(t, err)

		assert.Equal(t, now.Add(DigestHorizon), lister.before)
		require.Len(t, mailer.sent, 2)
		assert.Equal(t, "ada@example.com", mailer.sent[0].To)
		assert.Equal(t, "You have 2 action items due soon", mailer.sent[0].Subject)
		assert.Contains(t, mailer.sent[0].HTML, "Review draft")
		assert.Contains(t, mailer.sent[0].HTML, "Read paper")
		assert.NotContains(t, mailer.sent[0].HTML, "Call back")
		assert.Equal(t, "bob@example.com", mailer.sent[1].To)
	})

	t.Run("a failed send does not stop the others", func(t *testing.T) {
		mailer := &fakeMailer{failTo: "ada@example.com"}

		err := TaskDigest(&fakeLister{due: due}, mailer, "https://markwell.test", clock)(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2")
		require.Len(t, mailer.sent, 1)
		assert.Equal(t, "bob@example.com", mailer.sent[0].To)
	})

	t.Run("nothing due", func(t *testing.T) {
		mailer := &fakeMailer{}
		require.NoError(t, TaskDigest(&fakeLister{}, mailer, "", clock)(ctx))
		assert.Empty(t, mailer.sent)
	})

	t.Run("query failure", func(t *testing.T) {
		cause := errors.New("timeout")
		err := TaskDigest(&fakeLister{err: cause}, &fakeMailer{}, "", clock)(ctx)
		assert.ErrorIs(t, err, cause)
	})
}

func TestGroupByUser(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	batches := groupByUser([]tasks.DueTask{
		{UserID: b, Title: "1"},
		{UserID: a, Title: "2"},
		{UserID: b, Title: "3"},
	})

	require.Len(t, batches, 2)
	assert.Equal(t, b, batches[0].userID)
	assert.Len(t, batches[0].tasks, 2)
	assert.Equal(t, a, batches[1].userID)

	data := batches[0].data("https://markwell.test///")
	assert.Equal(t, "https://markwell.test", data.BaseURL)
	titles := make([]string, 0, len(data.Tasks))
	for _, task := range data.Tasks {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, "1,3", strings.Join(titles, ","))
}

func TestRegisterDefaults(t *testing.T) {
	cfg := config.JobsConfig{
		BackfillSchedule:    "@every 15m",
		BackfillBatchSize:   50,
		BackfillMaxAttempts: 5,
		DigestSchedule:      "0 8 * * *",
	}

	t.Run("all jobs", func(t *testing.T) {
		s := NewScheduler()
		err := RegisterDefaults(s, cfg, Dependencies{Items: &fakeBackfiller{}, Tasks: &fakeLister{}, Mailer: &fakeMailer{}})
		require.NoError(t, err)

		jobs := s.GetScheduledJobs()
		require.Len(t, jobs, 2)
		assert.Equal(t, JobMetadataBackfill, jobs[0].Name)
		assert.Equal(t, JobTaskDigest, jobs[1].Name)
	})

	t.Run("cleanup for stores that need it", func(t *testing.T) {
		s := NewScheduler()
		err := RegisterDefaults(s, cfg, Dependencies{Items: &fakeBackfiller{}, Limiter: &fakeCleaner{}})
		require.NoError(t, err)

		jobs := s.GetScheduledJobs()
		require.Len(t, jobs, 2)
		assert.Equal(t, JobRateLimitCleanup, jobs[1].Name)
		assert.Equal(t, RateLimitCleanupSchedule, jobs[1].Schedule)
	})

	t.Run("shared csrf tokens are purged", func(t *testing.T) {
		s := NewScheduler()
		err := RegisterDefaults(s, cfg, Dependencies{Items: &fakeBackfiller{}, Tokens: &fakeCleaner{}})
		require.NoError(t, err)

		jobs := s.GetScheduledJobs()
		require.Len(t, jobs, 2)
		assert.Equal(t, JobCSRFCleanup, jobs[0].Name)
	})

	t.Run("digest needs a mailer", func(t *testing.T) {
		s := NewScheduler()
		err := RegisterDefaults(s, cfg, Dependencies{Items: &fakeBackfiller{}, Tasks: &fakeLister{}})
		require.NoError(t, err)
		assert.Len(t, s.GetScheduledJobs(), 1)
	})

	t.Run("bad schedule", func(t *testing.T) {
		bad := cfg
		bad.BackfillSchedule = "sometimes"
		err := RegisterDefaults(NewScheduler(), bad, Dependencies{Items: &fakeBackfiller{}})
		assert.Error(t, err)
	})
}
