// internal/telemetry/metrics.go
package telemetry

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Int64Counter registers a counter on meter. A registration failure is logged
// and a no-op counter is returned so callers can record unconditionally.
func Int64Counter(meter metric.Meter, logger *slog.Logger, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Warn("failed to register counter", "counter", name, "error", err)
		return noop.Int64Counter{}
	}
	return counter
}
