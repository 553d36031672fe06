// Package scheduler provides cron-based scheduling for ClassPipe.
//
// It drives the twice-daily assignment digests and the due-tomorrow
// reminders, evaluated in the school's local timezone.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// Option configures the scheduler before it starts.
type Option func(*[]cron.Option)

// WithLocation evaluates cron expressions in the given timezone.
func WithLocation(loc *time.Location) Option {
	return func(opts *[]cron.Option) {
		*opts = append(*opts, cron.WithLocation(loc))
	}
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic
	// recovery so one bad job does not kill the digest loop.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cronOpts := []cron.Option{
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	}
	for _, opt := range opts {
		opt(&cronOpts)
	}
	c := cron.New(cronOpts...)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
