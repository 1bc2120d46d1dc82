// Package testutil provides deterministic fixtures for Conductor tests:
// scripted event and metric sources, and a recording worker.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/conductor/internal/rules"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/threshold"
	"github.com/Iron-Ham/conductor/internal/worker"
)

// Epoch is the fixed clock reading fixtures use for timestamps.
var Epoch = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// EventSource is a rules.Source that hands out queued events on Poll.
// Each Poll drains the queue.
type EventSource struct {
	mu     sync.Mutex
	queue  []rules.Event
	polls  int
	failed error
}

var _ rules.Source = (*EventSource)(nil)

// NewEventSource returns a source pre-loaded with events.
func NewEventSource(events ...rules.Event) *EventSource {
	return &EventSource{queue: events}
}

// Push queues events for the next Poll.
func (s *EventSource) Push(events ...rules.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, events...)
}

// FailNext makes the next Poll return err instead of events.
func (s *EventSource) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = err
}

// Poll implements rules.Source.
func (s *EventSource) Poll(context.Context) ([]rules.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if err := s.failed; err != nil {
		s.failed = nil
		return nil, err
	}
	out := s.queue
	s.queue = nil
	return out, nil
}

// Polls reports how many times Poll has been called.
func (s *EventSource) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// MetricSource is a threshold.Source that hands out queued data points.
type MetricSource struct {
	mu      sync.Mutex
	queue   []threshold.DataPoint
	samples int
}

var _ threshold.Source = (*MetricSource)(nil)

// NewMetricSource returns a source pre-loaded with points.
func NewMetricSource(points ...threshold.DataPoint) *MetricSource {
	return &MetricSource{queue: points}
}

// Push queues points for the next Sample.
func (s *MetricSource) Push(points ...threshold.DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, points...)
}

// Sample implements threshold.Source.
func (s *MetricSource) Sample(context.Context) ([]threshold.DataPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++
	out := s.queue
	s.queue = nil
	return out, nil
}

// Samples reports how many times Sample has been called.
func (s *MetricSource) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Series builds one data point per value, spaced a minute apart ending at end.
func Series(channel string, metric threshold.Metric, end time.Time, values ...float64) []threshold.DataPoint {
	points := make([]threshold.DataPoint, len(values))
	for i, v := range values {
		points[i] = threshold.DataPoint{
			Channel:   channel,
			Metric:    metric,
			Value:     v,
			Timestamp: end.Add(-time.Duration(len(values)-1-i) * time.Minute),
		}
	}
	return points
}

// Event builds a rules.Event stamped at Epoch.
func Event(kind rules.EventKind, channel string, data map[string]any) rules.Event {
	return rules.Event{
		Kind:      kind,
		Channel:   channel,
		TenantID:  "tenant-test",
		Data:      data,
		Timestamp: Epoch,
	}
}

// RecordingWorker wraps a FuncWorker and records every task it executes.
type RecordingWorker struct {
	*worker.FuncWorker

	mu    sync.Mutex
	tasks []task.Task
	seen  chan task.Task
}

// NewRecordingWorker returns a worker of type typ that succeeds with an
// empty output and records each task.
func NewRecordingWorker(id string, typ worker.Type) *RecordingWorker {
	w := &RecordingWorker{seen: make(chan task.Task, 64)}
	w.FuncWorker = worker.NewFunc(id, typ, nil, func(_ context.Context, t task.Task) (task.Result, error) {
		w.mu.Lock()
		w.tasks = append(w.tasks, t)
		w.mu.Unlock()
		select {
		case w.seen <- t:
		default:
		}
		return task.Result{Output: map[string]any{"handled_by": id}}, nil
	})
	return w
}

// Tasks returns a copy of every task executed so far.
func (w *RecordingWorker) Tasks() []task.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]task.Task(nil), w.tasks...)
}

// Wait blocks until the worker executes a task or the timeout elapses.
func (w *RecordingWorker) Wait(t *testing.T, timeout time.Duration) task.Task {
	t.Helper()
	select {
	case tk := <-w.seen:
		return tk
	case <-time.After(timeout):
		t.Fatalf("worker %s executed no task within %s", w.ID(), timeout)
		return task.Task{}
	}
}
