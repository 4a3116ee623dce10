// Package jobs runs background work on an in-process worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"libraryhub/internal/telemetry"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Execute(ctx context.Context) error
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Config sizes a Queue.
type Config struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	// NewBackOff returns the retry schedule for one job. Defaults to exponential.
	NewBackOff func() backoff.BackOff
}

// Queue executes enqueued jobs on a fixed set of workers.
type Queue struct {
	cfg    Config
	logger *slog.Logger
	jobs   chan Job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// runCtx is handed to executing jobs; cancelled when Shutdown gives up waiting.
	runCtx    context.Context
	cancelRun context.CancelFunc

	tracer    trace.Tracer
	succeeded metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
}

// NewQueue starts cfg.Workers workers.
func NewQueue(cfg Config, logger *slog.Logger) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:       cfg,
		logger:    logger,
		jobs:      make(chan Job, cfg.QueueSize),
		runCtx:    runCtx,
		cancelRun: cancel,
		tracer:    otel.Tracer("libraryhub/jobs"),
	}

	meter := otel.Meter("libraryhub/jobs")
	q.succeeded = telemetry.Int64Counter(meter, logger, "jobs.succeeded", "Jobs that completed")
	q.failed = telemetry.Int64Counter(meter, logger, "jobs.failed", "Jobs that failed after all attempts")
	q.retried = telemetry.Int64Counter(meter, logger, "jobs.retried", "Job attempts that will be retried")

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. If ctx ends
// first, running jobs are cancelled and ctx's error is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancelRun()
		return nil
	case <-ctx.Done():
		q.cancelRun()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
	}
}

func (q *Queue) run(job Job) {
	ctx, span := q.tracer.Start(q.runCtx, "jobs.execute",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("job.name", job.Name())),
	)
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("job.name", job.Name()))
	attempts := 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := q.execute(ctx, job)
		if err != nil {
			var permanent *backoff.PermanentError
			if !errors.As(err, &permanent) && attempts <= q.cfg.MaxRetries {
				q.retried.Add(ctx, 1, attrs)
				q.logger.WarnContext(ctx, "job attempt failed, retrying",
					"job", job.Name(),
					"attempt", attempts,
					"error", err,
				)
			}
		}
		return struct{}{}, err
	}, backoff.WithBackOff(q.cfg.NewBackOff()), backoff.WithMaxTries(uint(q.cfg.MaxRetries+1)))

	span.SetAttributes(attribute.Int("job.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.failed.Add(ctx, 1, attrs)
		q.logger.ErrorContext(ctx, "job failed",
			"job", job.Name(),
			"attempts", attempts,
			"error", err,
		)
		return
	}
	q.succeeded.Add(ctx, 1, attrs)
}

// execute runs one attempt, turning a panic into an error.
func (q *Queue) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("job %s panicked: %v", job.Name(), r))
		}
	}()
	return job.Execute(ctx)
}
