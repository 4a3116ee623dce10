// internal/notification/dispatcher.go
package notification

import (
	"context"
	"fmt"
	"libraryhub/internal/config"
	"libraryhub/internal/telemetry"
	"log/slog"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Dispatcher sends notifications through a Mailer, throttled by a rate
// limiter and guarded by a circuit breaker.
type Dispatcher struct {
	mailer  Mailer
	from    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	tracer trace.Tracer
	sent   metric.Int64Counter
	failed metric.Int64Counter
}

func NewDispatcher(mailer Mailer, cfg config.NotificationConfig, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		mailer:  mailer,
		from:    cfg.From,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger,
		tracer:  otel.Tracer("libraryhub/notification"),
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 1
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mailer",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	meter := otel.Meter("libraryhub/notification")
	d.sent = telemetry.Int64Counter(meter, logger, "notification.sent", "Notifications delivered")
	d.failed = telemetry.Int64Counter(meter, logger, "notification.failed", "Notifications that could not be delivered")

	return d
}

// Notify sends one email to recipient. It blocks while the rate limit is exhausted
// and fails fast while the breaker is open.
func (d *Dispatcher) Notify(ctx context.Context, recipient, subject, body string) (err error) {
	ctx, span := d.tracer.Start(ctx, "notification.Notify",
		trace.WithAttributes(attribute.String("mail.subject", subject)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.failed.Add(ctx, 1)
		} else {
			d.sent.Add(ctx, 1)
		}
		span.End()
	}()

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}

	msg := Message{From: d.from, To: recipient, Subject: subject, Body: body}
	_, err = d.breaker.Execute(func() (interface{}, error) {
		return nil, d.mailer.Send(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", recipient, err)
	}
	return nil
}

// State reports the breaker state.
func (d *Dispatcher) State() gobreaker.State {
	return d.breaker.State()
}
