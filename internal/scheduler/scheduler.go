// Package scheduler runs background jobs on cron schedules and fixed intervals.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

type entry struct {
	id       cron.EntryID
	interval time.Duration
}

// Scheduler manages background jobs. A run that is still in progress when
// its next fire time arrives causes that fire to be skipped.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu        sync.Mutex
	intervals map[string]entry
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		log:       log,
		intervals: make(map[string]entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, s.wrap(job))
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// Schedule runs job every interval, counted from now. An existing entry for
// the same job is replaced only when the interval differs. Returns whether
// the schedule changed.
func (s *Scheduler) Schedule(job Job, interval time.Duration) (bool, error) {
	if interval < time.Second {
		return false, fmt.Errorf("interval for %s must be at least 1s, got %s", job.Name(), interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, exists := s.intervals[job.Name()]
	if exists && previous.interval == interval {
		return false, nil
	}
	if exists {
		s.cron.Remove(previous.id)
	}

	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.wrap(job)))
	s.intervals[job.Name()] = entry{id: id, interval: interval}

	event := s.log.Info().Str("job", job.Name()).Dur("interval", interval)
	if exists {
		event = event.Dur("previous_interval", previous.interval)
	}
	event.Msg("Job scheduled")

	return true, nil
}

// Next returns the next fire time of a job added with Schedule. It is
// unknown (false) until the scheduler has started.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.intervals[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(e.id).Next
	return next, !next.IsZero()
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running job")

		start := time.Now()
		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Dur("duration", time.Since(start)).
				Msg("Job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("Job completed")
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
