package coordinator

import (
	"maps"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Iron-Ham/conductor/internal/archive"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/retry"
	"github.com/Iron-Ham/conductor/internal/task"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 30 * time.Second
	defaultHistoryLimit = 1000
	archiveTimeout      = 10 * time.Second
)

type coordinatorConfig struct {
	events        *event.Bus
	logger        *logging.Logger
	sink          archive.Sink
	meterProvider metric.MeterProvider
	policy        retry.Policy
	taskTimeout   time.Duration
	limits        map[task.Priority]int
	historyLimit  int
	now           func() time.Time
}

// Option configures a Coordinator.
type Option func(*coordinatorConfig)

// WithEventBus sets the bus that receives task and worker lifecycle events.
func WithEventBus(b *event.Bus) Option {
	return func(c *coordinatorConfig) { c.events = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *coordinatorConfig) { c.logger = l }
}

// WithArchive sets the sink for terminal tasks.
func WithArchive(s archive.Sink) Option {
	return func(c *coordinatorConfig) { c.sink = s }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *coordinatorConfig) { c.meterProvider = mp }
}

// WithRetryPolicy sets the attempt limit and the fixed retry delay.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *coordinatorConfig) { c.policy = p }
}

// WithTaskTimeout bounds each Execute call. Zero disables the timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *coordinatorConfig) { c.taskTimeout = d }
}

// WithConcurrencyLimits caps in-flight tasks per priority band. Missing or
// zero entries are unlimited.
func WithConcurrencyLimits(limits map[task.Priority]int) Option {
	return func(c *coordinatorConfig) { c.limits = maps.Clone(limits) }
}

// WithHistoryLimit sets how many terminal tasks are kept in memory.
func WithHistoryLimit(n int) Option {
	return func(c *coordinatorConfig) { c.historyLimit = n }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *coordinatorConfig) { c.now = now }
}
