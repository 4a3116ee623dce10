package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Enqueuer accepts jobs; *Queue satisfies it.
type Enqueuer interface {
	Enqueue(job Job) error
}

// Scheduler enqueues a fresh job every interval until stopped.
type Scheduler struct {
	queue    Enqueuer
	interval time.Duration
	newJob   func() Job
	logger   *slog.Logger

	stop    chan struct{}
	once    sync.Once
	done    chan struct{}
	started atomic.Bool
}

func NewScheduler(queue Enqueuer, interval time.Duration, newJob func() Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queue:    queue,
		interval: interval,
		newJob:   newJob,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the ticker until ctx ends or Stop is called. It does not block.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.fire(ctx)
			}
		}
	}()
}

func (s *Scheduler) fire(ctx context.Context) {
	job := s.newJob()
	err := s.queue.Enqueue(job)
	switch {
	case err == nil:
		s.logger.DebugContext(ctx, "scheduled job enqueued", "job", job.Name())
	case errors.Is(err, ErrQueueClosed):
		s.logger.InfoContext(ctx, "queue closed, skipping scheduled job", "job", job.Name())
	default:
		s.logger.WarnContext(ctx, "failed to enqueue scheduled job", "job", job.Name(), "error", err)
	}
}

// Stop halts the ticker and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}
