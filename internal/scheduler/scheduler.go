// Package scheduler drives CREP's periodic tasks — snapshot bucket cleanup,
// the prediction cycle, prediction-store GC, cache-stats logging, and the
// Earth-2 gateway health probe — on a robfig/cron schedule.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler wraps a cron.Cron with logging around each registered job.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New constructs a Scheduler. Jobs are not started until Start is called.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Job is a named unit of periodic work.
type Job struct {
	Name string
	Spec string // standard 5-field cron expression
	Run  func(ctx context.Context) error
}

// Register adds a job to the schedule. Every run of the job receives ctx;
// Stop does not cancel it.
func (s *Scheduler) Register(ctx context.Context, job Job) error {
	_, err := s.cron.AddFunc(job.Spec, func() {
		log := s.log.With().Str("job", job.Name).Logger()
		log.Debug().Msg("running scheduled job")
		if err := job.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled job failed")
			return
		}
		log.Debug().Msg("scheduled job completed")
	})
	return err
}

// Start begins executing registered jobs on their schedules. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
