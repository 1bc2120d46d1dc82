package coordinator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/task"
)

const meterName = "github.com/Iron-Ham/conductor/internal/coordinator"

// instruments are the coordinator's OpenTelemetry metrics. An instrument
// that fails to register falls back to a no-op.
type instruments struct {
	submitted metric.Int64Counter
	finished  metric.Int64Counter
	retried   metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider, logger *logging.Logger) *instruments {
	meter := mp.Meter(meterName)
	i := &instruments{}

	var err error
	if i.submitted, err = meter.Int64Counter("conductor.tasks.submitted",
		metric.WithDescription("Tasks accepted by Submit"),
		metric.WithUnit("{task}")); err != nil {
		logger.Warn("failed to create metric", "metric", "conductor.tasks.submitted", "error", err)
		i.submitted = noop.Int64Counter{}
	}
	if i.finished, err = meter.Int64Counter("conductor.tasks.finished",
		metric.WithDescription("Tasks that reached a terminal status"),
		metric.WithUnit("{task}")); err != nil {
		logger.Warn("failed to create metric", "metric", "conductor.tasks.finished", "error", err)
		i.finished = noop.Int64Counter{}
	}
	if i.retried, err = meter.Int64Counter("conductor.tasks.retried",
		metric.WithDescription("Failed attempts that were scheduled for retry"),
		metric.WithUnit("{task}")); err != nil {
		logger.Warn("failed to create metric", "metric", "conductor.tasks.retried", "error", err)
		i.retried = noop.Int64Counter{}
	}
	if i.duration, err = meter.Float64Histogram("conductor.task.duration",
		metric.WithDescription("Wall time of the final attempt of a task"),
		metric.WithUnit("s")); err != nil {
		logger.Warn("failed to create metric", "metric", "conductor.task.duration", "error", err)
		i.duration = noop.Float64Histogram{}
	}
	return i
}

func taskAttrs(t task.Task) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("worker_type", t.WorkerType),
		attribute.String("priority", t.Priority.String()),
		attribute.String("origin", string(t.Origin)),
	)
}

func (i *instruments) recordSubmitted(ctx context.Context, t task.Task) {
	i.submitted.Add(ctx, 1, taskAttrs(t))
}

func (i *instruments) recordRetried(ctx context.Context, t task.Task) {
	i.retried.Add(ctx, 1, taskAttrs(t))
}

func (i *instruments) recordFinished(ctx context.Context, t task.Task) {
	attrs := metric.WithAttributes(
		attribute.String("worker_type", t.WorkerType),
		attribute.String("status", string(t.Status)),
	)
	i.finished.Add(ctx, 1, attrs)
	if d := t.Duration(); d > 0 {
		i.duration.Record(ctx, d.Seconds(), attrs)
	}
}
