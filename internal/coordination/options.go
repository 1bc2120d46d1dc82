package coordination

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/Iron-Ham/conductor/internal/archive"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/rules"
	"github.com/Iron-Ham/conductor/internal/threshold"
	"github.com/Iron-Ham/conductor/internal/worker"
)

// hubConfig holds optional configuration for a Hub.
type hubConfig struct {
	events         *event.Bus
	logger         *logging.Logger
	sink           archive.Sink
	meterProvider  metric.MeterProvider
	eventSource    rules.Source
	metricSource   threshold.Source
	workers        []worker.Worker
	skipConfigured bool
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithEventBus shares an existing event bus. A new one is created otherwise.
func WithEventBus(b *event.Bus) Option {
	return func(c *hubConfig) { c.events = b }
}

// WithLogger sets the logger every component derives from.
func WithLogger(l *logging.Logger) Option {
	return func(c *hubConfig) { c.logger = l }
}

// WithArchive overrides the sink built from the archive config.
func WithArchive(s archive.Sink) Option {
	return func(c *hubConfig) { c.sink = s }
}

// WithMeterProvider sets the OpenTelemetry meter provider for coordinator
// metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *hubConfig) { c.meterProvider = mp }
}

// WithEventSource feeds the rule engine from src.
func WithEventSource(src rules.Source) Option {
	return func(c *hubConfig) { c.eventSource = src }
}

// WithMetricSource feeds the threshold monitor from src.
func WithMetricSource(src threshold.Source) Option {
	return func(c *hubConfig) { c.metricSource = src }
}

// WithWorkers adds workers registered at Start alongside the configured ones.
func WithWorkers(ws ...worker.Worker) Option {
	return func(c *hubConfig) { c.workers = append(c.workers, ws...) }
}

// WithoutConfiguredWorkers ignores the workers section of the config.
func WithoutConfiguredWorkers() Option {
	return func(c *hubConfig) { c.skipConfigured = true }
}
