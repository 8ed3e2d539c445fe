// Package scheduler drives the engine's periodic jobs: interval ticks and
// minute-of-hour aligned batch runs.
package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aimstors/sentinel/pkg/logger"
)

// Job is one periodic unit of work. Errors are logged, never fatal.
type Job func(ctx context.Context) error

// Scheduler runs registered jobs under one errgroup until the context is
// canceled. Each run is panic-isolated so a bad tick cannot kill the
// process.
type Scheduler struct {
	log  logger.Logger
	jobs []func(ctx context.Context) error
}

// NewScheduler creates an empty scheduler.
func NewScheduler(log logger.Logger) *Scheduler {
	return &Scheduler{log: log.WithComponent("Scheduler")}
}

// Every registers a job on a fixed interval.
func (s *Scheduler) Every(interval time.Duration, name string, job Job) {
	s.jobs = append(s.jobs, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.runJob(ctx, name, job)
			}
		}
	})
}

// HourlyAt registers a job that runs once per hour at the given minute.
func (s *Scheduler) HourlyAt(minute int, name string, job Job) {
	s.jobs = append(s.jobs, func(ctx context.Context) error {
		for {
			wait := untilNextMinuteOfHour(time.Now(), minute)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				s.runJob(ctx, name, job)
			}
		}
	})
}

// Run blocks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, loop := range s.jobs {
		loop := loop
		g.Go(func() error { return loop(ctx) })
	}
	s.log.Info(ctx, "scheduler started", logger.Int("jobs", len(s.jobs)))
	return g.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "scheduled job panicked", nil,
				logger.String("job", name), logger.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error(ctx, "scheduled job failed", err, logger.String("job", name))
		return
	}
	s.log.Debug(ctx, "scheduled job completed",
		logger.String("job", name), logger.Duration("took", time.Since(start)))
}

// untilNextMinuteOfHour computes the wait until the next occurrence of the
// given minute, always in the future.
func untilNextMinuteOfHour(now time.Time, minute int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next.Sub(now)
}
