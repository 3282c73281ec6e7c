package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds one scheduled job.
const DefaultJobTimeout = 30 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	logger   zerolog.Logger
	timeout  time.Duration
	timezone *time.Location

	mu   sync.Mutex
	jobs map[string]cron.EntryID

	// base is cancelled by Stop so running jobs wind down.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler with the given timezone. A job still running
// when its next activation comes round is skipped, not overlapped.
func New(timezone string, timeout time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	cronLog := cron.PrintfLogger(&logger)
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     c,
		logger:   logger,
		timeout:  timeout,
		timezone: loc,
		jobs:     make(map[string]cron.EntryID),
		base:     base,
		cancel:   cancel,
	}, nil
}

// AddJob adds a job with a cron schedule
// schedule format: "0 7 * * *" (at 7:00 AM daily)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.execute(name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("Added job")

	return nil
}

func (s *Scheduler) execute(name string, job Job) error {
	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	defer cancel()

	s.logger.Info().Str("job", name).Msg("Starting job")
	start := time.Now()

	err := job(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("Job failed")
	} else {
		s.logger.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("Job completed")
	}
	return err
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info().Str("job", name).Msg("Removed job")
	}
}

// RemoveAll removes every job.
func (s *Scheduler) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, entryID := range s.jobs {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.logger.Info().Str("timezone", s.timezone.String()).Msg("Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler and cancels running jobs. The returned context is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info().Msg("Stopping scheduler")
	ctx := s.cron.Stop()
	s.cancel()
	return ctx
}

// RunNow immediately executes a job
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.execute(name, job)
}

// ListJobs returns info about scheduled jobs, ordered by name
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}
