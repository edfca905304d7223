// Package worker runs the periodic pipeline jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/strogmv/renodesk/internal/pkg/logger"
)

// Job is a unit of work run on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	// Immediate runs the job once at start instead of waiting a full interval.
	Immediate bool
	Run       func(ctx context.Context) error
}

// Scheduler runs jobs on their intervals until the context is cancelled.
type Scheduler struct {
	jobs []Job
}

func NewScheduler(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Add registers another job. It must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start runs every job in its own goroutine and blocks until ctx is done and all runs returned.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			logger.From(ctx).Warn("skipping job without interval", slog.String("job", job.Name))
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	log := logger.From(ctx).With(slog.String("job", job.Name))
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	log.Info("job scheduled", slog.Duration("interval", job.Interval))
	if job.Immediate {
		runOnce(ctx, job)
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return
		case <-ticker.C:
			runOnce(ctx, job)
		}
	}
}

// runOnce executes a single run; a panic is logged and the schedule continues.
func runOnce(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.From(ctx).Error("job panicked", slog.String("job", job.Name), slog.Any("panic", r))
		}
	}()
	if err = job.Run(ctx); err != nil {
		logger.From(ctx).Error("job run failed", slog.String("job", job.Name), slog.Any("error", err))
	}
	return err
}
