// Package app assembles the library services from configuration.
package app

import (
	"context"
	"fmt"
	"libraryhub/internal/catalog"
	"libraryhub/internal/circulation"
	"libraryhub/internal/config"
	"libraryhub/internal/eventstore"
	"libraryhub/internal/jobs"
	"libraryhub/internal/membership"
	"libraryhub/internal/notification"
	"libraryhub/internal/server"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
)

// App holds the wired services and their background machinery.
type App struct {
	Handler    http.Handler
	Queue      *jobs.Queue
	Scheduler  *jobs.Scheduler
	Dispatcher *notification.Dispatcher

	loans  *circulation.PostgresRepository
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// Option adjusts how the App is built.
type Option func(*options)

type options struct {
	mailer     notification.Mailer
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

// WithMailer replaces the mailer chosen from the SMTP settings.
func WithMailer(m notification.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithClock replaces the time source for loans and overdue sweeps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithJobBackOff replaces the retry schedule of background jobs.
func WithJobBackOff(newBackOff func() backoff.BackOff) Option {
	return func(o *options) { o.newBackOff = newBackOff }
}

// New wires repositories, services, the job queue and the HTTP handler on db.
// The scheduler is created but not started.
func New(cfg *config.Config, logger *slog.Logger, db *sqlx.DB, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mailer == nil {
		o.mailer = notification.NewMailer(cfg.Notification.SMTP, logger)
	}

	events, err := eventstore.NewEventStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create event store: %w", err)
	}

	catalogSvc := catalog.NewService(catalog.NewPostgresRepository(db))
	membershipSvc := membership.NewService(membership.NewPostgresRepository(db), membership.WithClock(o.now))

	queue := jobs.NewQueue(jobs.Config{
		Workers:    cfg.Jobs.Workers,
		QueueSize:  cfg.Jobs.QueueSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		NewBackOff: o.newBackOff,
	}, logger)

	a := &App{
		Queue:      queue,
		Dispatcher: notification.NewDispatcher(o.mailer, cfg.Notification, logger),
		loans:      circulation.NewPostgresRepository(db, events),
		cfg:        cfg,
		logger:     logger,
		now:        o.now,
	}

	notifier := notification.NewQueueNotifier(queue, a.loans, a.Dispatcher, logger)
	circulationSvc := circulation.NewService(a.loans, notifier, logger,
		circulation.WithClock(o.now),
		circulation.WithLoanPeriod(cfg.Circulation.LoanPeriodDays),
	)

	a.Scheduler = jobs.NewScheduler(queue, cfg.Notification.SweepInterval, a.OverdueSweep, logger)
	a.Handler = server.New(cfg.Server, logger, db,
		catalog.NewHandler(catalogSvc, logger),
		membership.NewHandler(membershipSvc, logger),
		circulation.NewHandler(circulationSvc, logger),
	)
	return a, nil
}

// OverdueSweep returns a fresh overdue-reminder job.
func (a *App) OverdueSweep() jobs.Job {
	return notification.NewCheckOverdueLoans(a.loans, a.Dispatcher, a.logger,
		notification.WithClock(a.now),
		notification.WithAggregation(a.cfg.Notification.AggregateOverdue),
	)
}

// Shutdown stops the scheduler, then drains the job queue.
func (a *App) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()
	if err := a.Queue.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to drain job queue: %w", err)
	}
	return nil
}
