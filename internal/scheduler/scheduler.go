// Package scheduler runs the background jobs: exchange-rate sync, valuation
// snapshots and cache cleanup. Schedules are cron specs from configuration.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of background work.
type Job interface {
	Name() string
	Run() error
}

// EventManagerInterface is the event emission contract the scheduler needs.
// Kept narrow so tests can substitute a mock.
type EventManagerInterface interface {
	EmitError(module string, err error, context map[string]interface{})
}

// Scheduler drives registered jobs on cron schedules.
type Scheduler struct {
	cron         *cron.Cron
	eventManager EventManagerInterface
	log          zerolog.Logger
}

// New creates a scheduler. eventManager may be nil.
func New(eventManager EventManagerInterface, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		eventManager: eventManager,
		log:          log.With().Str("service", "scheduler").Logger(),
	}
}

// Register schedules a job with a cron spec (supports descriptors like
// "@every 15m" and "@daily"). Job failures are logged and emitted as error
// events; a failing job stays scheduled.
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Scheduled job failed")
			if s.eventManager != nil {
				s.eventManager.EmitError("scheduler", err, map[string]interface{}{
					"job": job.Name(),
				})
			}
			return
		}
		s.log.Debug().Str("job", job.Name()).Msg("Scheduled job completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s with spec %q: %w", job.Name(), spec, err)
	}

	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("Job scheduled")
	return nil
}

// RunNow executes a job once, immediately, with the same logging and error
// handling as a scheduled run. Used at startup to warm caches.
func (s *Scheduler) RunNow(job Job) {
	if err := job.Run(); err != nil {
		s.log.Error().Err(err).Str("job", job.Name()).Msg("Startup job run failed")
		if s.eventManager != nil {
			s.eventManager.EmitError("scheduler", err, map[string]interface{}{
				"job": job.Name(),
			})
		}
	}
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}
