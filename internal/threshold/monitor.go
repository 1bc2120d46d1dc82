package threshold

import (
	"context"
	"fmt"
	"maps"
	"math"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/task"
)

const (
	defaultTickInterval     = 5 * time.Minute
	defaultEvaluationWindow = time.Hour
	defaultRetention        = 7 * 24 * time.Hour
)

// LabelThresholdID is set on every corrective task.
const LabelThresholdID = "threshold.id"

// Submitter accepts tasks. *coordinator.Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, t task.Task) (string, error)
}

// Source produces data points from outside the process. It is sampled at
// the start of every tick.
type Source interface {
	Sample(ctx context.Context) ([]DataPoint, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]DataPoint, error)

// Sample calls f.
func (f SourceFunc) Sample(ctx context.Context) ([]DataPoint, error) { return f(ctx) }

type seriesKey struct {
	channel string
	metric  Metric
}

// Monitor stores data points and evaluates thresholds against them.
type Monitor struct {
	submitter    Submitter
	events       *event.Bus
	logger       *logging.Logger
	source       Source
	tickInterval time.Duration
	window       time.Duration
	retention    time.Duration
	now          func() time.Time

	mu         sync.Mutex
	thresholds map[string]*Threshold
	order      []string
	series     map[seriesKey][]DataPoint // each series is in timestamp order
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithEventBus publishes a ThresholdBreachedEvent for every breach.
func WithEventBus(b *event.Bus) Option {
	return func(m *Monitor) { m.events = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithSource samples src at the start of every tick.
func WithSource(src Source) Option {
	return func(m *Monitor) { m.source = src }
}

// WithTickInterval sets the Run loop cadence.
func WithTickInterval(d time.Duration) Option {
	return func(m *Monitor) { m.tickInterval = d }
}

// WithEvaluationWindow sets the span averaged per evaluation.
func WithEvaluationWindow(d time.Duration) Option {
	return func(m *Monitor) { m.window = d }
}

// WithRetention sets how long data points are kept.
func WithRetention(d time.Duration) Option {
	return func(m *Monitor) { m.retention = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor that submits corrective tasks to sub.
func New(sub Submitter, opts ...Option) *Monitor {
	m := &Monitor{
		submitter:    sub,
		logger:       logging.NopLogger(),
		tickInterval: defaultTickInterval,
		window:       defaultEvaluationWindow,
		retention:    defaultRetention,
		now:          time.Now,
		thresholds:   make(map[string]*Threshold),
		series:       make(map[seriesKey][]DataPoint),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tickInterval <= 0 {
		m.tickInterval = defaultTickInterval
	}
	if m.window <= 0 {
		m.window = defaultEvaluationWindow
	}
	if m.retention <= 0 {
		m.retention = defaultRetention
	}
	m.logger = m.logger.WithComponent("threshold")
	return m
}

// Record stores a data point stamped with the current time.
func (m *Monitor) Record(channel string, metric Metric, value float64, metadata map[string]any) error {
	return m.RecordPoint(DataPoint{
		Channel:  channel,
		Metric:   metric,
		Value:    value,
		Metadata: metadata,
	})
}

// RecordPoint stores dp. A zero timestamp is replaced by the current time.
func (m *Monitor) RecordPoint(dp DataPoint) error {
	if dp.Channel == "" {
		return errors.NewValidationError("channel is required").WithField("channel")
	}
	if !dp.Metric.Valid() {
		return errors.NewValidationError("unknown metric").WithField("metric").WithValue(string(dp.Metric))
	}
	if !finite(dp.Value) {
		return errors.NewValidationError("value must be a finite number").WithField("value").WithValue(fmt.Sprint(dp.Value))
	}
	if dp.Timestamp.IsZero() {
		dp.Timestamp = m.now()
	}
	dp.Metadata = maps.Clone(dp.Metadata)

	key := seriesKey{channel: dp.Channel, metric: dp.Metric}
	m.mu.Lock()
	defer m.mu.Unlock()

	points := m.series[key]
	// insert in timestamp order
	i := len(points)
	for i > 0 && points[i-1].Timestamp.After(dp.Timestamp) {
		i--
	}
	m.series[key] = slices.Insert(points, i, dp)
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Points returns the stored points for one series, oldest first.
func (m *Monitor) Points(channel string, metric Metric) []DataPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.series[seriesKey{channel: channel, metric: metric}])
}

// AddThreshold validates th, enables it, and stores it.
func (m *Monitor) AddThreshold(th Threshold) (string, error) {
	if !th.Metric.Valid() {
		return "", errors.NewValidationError("unknown metric").WithField("metric").WithValue(string(th.Metric))
	}
	if th.Channel == "" {
		return "", errors.NewValidationError("channel is required").WithField("channel")
	}
	if th.TenantID == "" {
		return "", errors.NewValidationError("tenant id is required").WithField("tenant_id")
	}
	if !finite(th.Value) {
		return "", errors.NewValidationError("value must be a finite number").WithField("value").WithValue(fmt.Sprint(th.Value))
	}
	if !th.Comparison.Valid() {
		return "", errors.NewValidationError("unknown comparison").WithField("comparison").WithValue(string(th.Comparison))
	}
	th.Severity = th.Severity.OrDefault()
	if !th.Severity.Valid() {
		return "", errors.NewValidationError("invalid severity").WithField("severity").WithValue(int(th.Severity))
	}

	if th.ID == "" {
		th.ID = uuid.NewString()
	}
	th.Enabled = true
	th.LastBreach = time.Time{}
	th.LastTaskID = ""

	m.mu.Lock()
	if _, exists := m.thresholds[th.ID]; exists {
		m.mu.Unlock()
		return "", errors.NewAlreadyExistsError("threshold", th.ID)
	}
	m.thresholds[th.ID] = &th
	m.order = append(m.order, th.ID)
	m.mu.Unlock()

	m.logger.Info("threshold added",
		"threshold_id", th.ID,
		"metric", string(th.Metric),
		"channel", th.Channel,
		"comparison", string(th.Comparison),
		"value", th.Value)
	return th.ID, nil
}

// EnableThreshold turns a threshold on.
func (m *Monitor) EnableThreshold(id string) error { return m.setEnabled(id, true) }

// DisableThreshold turns a threshold off.
func (m *Monitor) DisableThreshold(id string) error { return m.setEnabled(id, false) }

func (m *Monitor) setEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	th, ok := m.thresholds[id]
	if !ok {
		return notFound(id)
	}
	th.Enabled = enabled
	return nil
}

// RemoveThreshold deletes a threshold. Its data points are kept.
func (m *Monitor) RemoveThreshold(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.thresholds[id]; !ok {
		return notFound(id)
	}
	delete(m.thresholds, id)
	m.order = slices.DeleteFunc(m.order, func(x string) bool { return x == id })
	return nil
}

// Threshold returns a copy of one threshold.
func (m *Monitor) Threshold(id string) (Threshold, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	th, ok := m.thresholds[id]
	if !ok {
		return Threshold{}, false
	}
	return *th, true
}

// Thresholds returns every threshold in insertion order.
func (m *Monitor) Thresholds() []Threshold {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Threshold, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.thresholds[id])
	}
	return out
}

// Evaluate returns the enabled thresholds whose mean over the window ending
// at now crosses their boundary. A series with no points in the window never
// breaches. Evaluate changes no state.
func (m *Monitor) Evaluate(now time.Time) []Breach {
	m.mu.Lock()
	defer m.mu.Unlock()

	since := now.Add(-m.window)
	var breaches []Breach
	for _, id := range m.order {
		th := m.thresholds[id]
		if !th.Enabled {
			continue
		}
		mean, n := meanBetween(m.series[seriesKey{channel: th.Channel, metric: th.Metric}], since, now)
		if n == 0 || !th.Comparison.Breached(mean, th.Value) {
			continue
		}
		breaches = append(breaches, Breach{Threshold: *th, Mean: mean, Samples: n, At: now})
	}
	return breaches
}

// meanBetween averages the points with since < timestamp <= until.
func meanBetween(points []DataPoint, since, until time.Time) (float64, int) {
	var sum float64
	n := 0
	for _, p := range points {
		if !p.Timestamp.After(since) || p.Timestamp.After(until) {
			continue
		}
		sum += p.Value
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// Prune drops points older than the retention period and returns how many
// were removed.
func (m *Monitor) Prune(now time.Time) int {
	cutoff := now.Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, points := range m.series {
		i := 0
		for i < len(points) && points[i].Timestamp.Before(cutoff) {
			i++
		}
		if i == 0 {
			continue
		}
		removed += i
		if i == len(points) {
			delete(m.series, key)
			continue
		}
		m.series[key] = slices.Clone(points[i:])
	}
	return removed
}

// Tick samples the source, evaluates, submits one corrective task per
// breach, and prunes. It returns the breaches found.
func (m *Monitor) Tick(ctx context.Context, now time.Time) []Breach {
	m.sample(ctx)

	breaches := m.Evaluate(now)
	for _, b := range breaches {
		m.correct(ctx, b)
	}

	if removed := m.Prune(now); removed > 0 {
		m.logger.Debug("pruned data points", "removed", removed)
	}
	return breaches
}

func (m *Monitor) sample(ctx context.Context) {
	if m.source == nil {
		return
	}
	points, err := m.source.Sample(ctx)
	if err != nil {
		m.logger.Warn("metric source sample failed", "error", err)
		return
	}
	for _, p := range points {
		if err := m.RecordPoint(p); err != nil {
			m.logger.Warn("dropping invalid data point", "channel", p.Channel, "metric", string(p.Metric), "error", err)
		}
	}
}

func (m *Monitor) correct(ctx context.Context, b Breach) {
	th := b.Threshold
	taskID, err := m.submitter.Submit(ctx, task.Task{
		WorkerType: string(th.Metric.WorkerType()),
		TenantID:   th.TenantID,
		Priority:   th.Severity,
		Origin:     task.OriginThreshold,
		Payload: map[string]any{
			"threshold_id": th.ID,
			"metric":       string(th.Metric),
			"channel":      th.Channel,
			"comparison":   string(th.Comparison),
			"boundary":     th.Value,
			"mean":         b.Mean,
			"samples":      b.Samples,
		},
		Labels: map[string]string{LabelThresholdID: th.ID},
	})
	if err != nil {
		m.logger.Error("corrective task submission failed",
			"threshold_id", th.ID,
			"metric", string(th.Metric),
			"worker_type", string(th.Metric.WorkerType()),
			"tenant_id", th.TenantID,
			"error", err)
	} else {
		m.logger.Warn("threshold breached",
			"threshold_id", th.ID,
			"metric", string(th.Metric),
			"channel", th.Channel,
			"mean", b.Mean,
			"boundary", th.Value,
			"task_id", taskID)
	}

	m.mu.Lock()
	if cur, ok := m.thresholds[th.ID]; ok {
		cur.LastBreach = b.At
		cur.LastTaskID = taskID
	}
	m.mu.Unlock()

	if m.events != nil {
		m.events.Publish(event.NewThresholdBreachedEvent(th.ID, th.Channel, string(th.Metric), b.Mean, th.Value, taskID))
	}
}

// Run ticks every tick interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	m.logger.Info("threshold monitor started",
		"tick_interval", m.tickInterval.String(),
		"window", m.window.String(),
		"retention", m.retention.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.safeTick(ctx)
		}
	}
}

func (m *Monitor) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("threshold tick panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	m.Tick(ctx, m.now())
}

func notFound(id string) error {
	return errors.NewNotFoundError("threshold", id).WithCause(errors.ErrThresholdNotFound)
}
