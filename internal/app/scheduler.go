/**
 * @description
 * Cron scheduler setup for the scheduled sweeps.
 */

package app

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/zpdl768/apptech-wallet-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	config config.Config
}

// NewScheduler creates a new scheduler instance. Jobs are recover-wrapped so a
// panicking sweep never takes the process down.
func NewScheduler(jobs *Jobs, cfg config.Config) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))))
	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.ResetSweepSchedule, s.jobs.RunResetSweep); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule reset sweep\" schedule=%q err=%v", s.config.ResetSweepSchedule, err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled reset sweep\" schedule=%q", s.config.ResetSweepSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.SessionSweepSchedule, s.jobs.RunIdleSessionSweep); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule idle session sweep\" schedule=%q err=%v", s.config.SessionSweepSchedule, err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled idle session sweep\" schedule=%q", s.config.SessionSweepSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
