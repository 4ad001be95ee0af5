// Package scheduler runs the periodic jobs: event sync, token refresh and the
// token health check. One goroutine per job, ticker driven, stopped together
// through context cancellation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/philippzhuravlev/event-aggregator/internal/logger"
)

type Job struct {
	Name     string
	Interval time.Duration

	// Run executes one tick. Errors are logged, never fatal; the next tick
	// runs regardless.
	Run func(ctx context.Context) error

	// Immediate also fires the job once right at startup
	Immediate bool
}

type Scheduler struct {
	jobs   []Job
	logger logger.Logger
}

func New(l logger.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: l}
}

// Start launches all jobs and returns a channel closed once every job has
// stopped after ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runJob(ctx, job)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		s.logger.Debug("Scheduler stopped")
	}()

	return idleStopped
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	s.logger.Info("Scheduling job", "job", job.Name, "interval", job.Interval)

	if job.Immediate {
		s.tick(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Job stopped by context", "job", job.Name)
			return
		case <-ticker.C:
			s.tick(ctx, job)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		s.logger.Error("Scheduled job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Info("Scheduled job finished", "job", job.Name, "duration", time.Since(start))
}
