// Package jobs runs periodic maintenance work on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/markwell-app/markwell/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ErrUnknownJob is returned by RunNow for names that were never registered
var ErrUnknownJob = errors.New("unknown job")

// ErrAlreadyRunning is returned by RunNow while the same job is in progress
var ErrAlreadyRunning = errors.New("job already running")

// Func is the body of a scheduled job
type Func func(ctx context.Context) error

// Recorder receives job outcomes
type Recorder interface {
	RecordJobRun(job string, duration time.Duration, err error)
}

type registeredJob struct {
	name     string
	schedule string
	fn       Func
	entryID  cron.EntryID
	running  bool
}

// Scheduler manages scheduled execution of jobs via cron. A job never runs
// concurrently with itself; a tick that arrives mid-run is skipped.
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]*registeredJob
	mu       sync.Mutex
	recorder Recorder
	gate     func() bool
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler. Schedules accept standard 5-field
// expressions, an optional leading seconds field, and descriptors such
// as "@every 15m".
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		jobs:    make(map[string]*registeredJob),
		timeout: 10 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetRecorder attaches a metrics recorder
func (s *Scheduler) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetGate makes scheduled ticks conditional. Ticks that arrive while gate
// returns false are dropped; RunNow is not affected.
func (s *Scheduler) SetGate(gate func() bool) {
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
}

// Register adds a job under name. Registering the same name again replaces
// the previous schedule.
func (s *Scheduler) Register(name, schedule string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[name]; ok {
		s.cron.Remove(existing.entryID)
		delete(s.jobs, name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		if !s.open() {
			log.Debug().Str("job", name).Msg("Not the leader, skipping scheduled run")
			return
		}
		if err := s.run(s.ctx, name); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			log.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}

	s.jobs[name] = &registeredJob{name: name, schedule: schedule, fn: fn, entryID: entryID}

	log.Info().
		Str("job", name).
		Str("schedule", schedule).
		Uint("entry_id", uint(entryID)).
		Msg("Job scheduled")
	return nil
}

// Start begins firing schedules
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.jobs)).Msg("Starting job scheduler")
	s.cron.Start()
}

// Stop stops the schedule and waits up to timeout for running jobs
func (s *Scheduler) Stop(timeout time.Duration) {
	log.Info().Msg("Stopping job scheduler")
	s.cancel()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Info().Msg("All running jobs completed")
	case <-time.After(timeout):
		log.Warn().Msg("Scheduler shutdown timeout, some jobs may not have completed")
	}
}

func (s *Scheduler) open() bool {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	return gate == nil || gate()
}

// RunNow runs a registered job immediately in the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	return s.run(ctx, name)
}

func (s *Scheduler) run(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if job.running {
		s.mu.Unlock()
		log.Warn().Str("job", name).Msg("Skipping job run, previous run still in progress")
		return ErrAlreadyRunning
	}
	job.running = true
	fn := job.fn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		job.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := observability.StartJobSpan(ctx, name)
	defer span.End()

	start := time.Now()
	err := safeCall(ctx, fn)
	duration := time.Since(start)

	if err != nil {
		observability.RecordError(ctx, err)
	}
	if s.recorder != nil {
		s.recorder.RecordJobRun(name, duration, err)
	}

	log.Info().
		Str("job", name).
		Dur("duration", duration).
		Bool("success", err == nil).
		Msg("Job finished")

	return err
}

func safeCall(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// ScheduledJobInfo describes a registered job
type ScheduledJobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	PrevRun  time.Time `json:"prev_run"`
	Running  bool      `json:"running"`
}

// GetScheduledJobs lists registered jobs by name
func (s *Scheduler) GetScheduledJobs() []ScheduledJobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduledJobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		entry := s.cron.Entry(job.entryID)
		next := entry.Next
		// cron fills Next in only once started
		if next.IsZero() && entry.Schedule != nil {
			next = entry.Schedule.Next(time.Now())
		}
		out = append(out, ScheduledJobInfo{
			Name:     job.name,
			Schedule: job.schedule,
			NextRun:  next,
			PrevRun:  entry.Prev,
			Running:  job.running,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
