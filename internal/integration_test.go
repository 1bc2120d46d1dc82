// Package internal contains integration tests that drive the hub through
// its external inputs: polled events, sampled metrics and workflows.
package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Iron-Ham/conductor/internal/archive"
	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/coordination"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/rules"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/testutil"
	"github.com/Iron-Ham/conductor/internal/threshold"
	"github.com/Iron-Ham/conductor/internal/worker"
	"github.com/Iron-Ham/conductor/internal/workflow"
)

type fixture struct {
	hub        *coordination.Hub
	bus        *event.Bus
	events     *testutil.EventSource
	metrics    *testutil.MetricSource
	engagement *testutil.RecordingWorker
	crisis     *testutil.RecordingWorker
	content    *testutil.RecordingWorker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Archive.Driver = "none"

	f := &fixture{
		bus:        event.NewBus(),
		events:     testutil.NewEventSource(),
		metrics:    testutil.NewMetricSource(),
		engagement: testutil.NewRecordingWorker("engagement-1", worker.TypeEngagement),
		crisis:     testutil.NewRecordingWorker("crisis-1", worker.TypeCrisis),
		content:    testutil.NewRecordingWorker("content-1", worker.TypeContent),
	}

	hub, err := coordination.NewHub(context.Background(), cfg,
		coordination.WithArchive(archive.Nop{}),
		coordination.WithEventBus(f.bus),
		coordination.WithEventSource(f.events),
		coordination.WithMetricSource(f.metrics),
		coordination.WithWorkers(f.engagement, f.crisis, f.content),
	)
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Stop(ctx); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	f.hub = hub
	return f
}

// TestPolledEventsFireRules verifies that events from a polled source are
// matched, that the cooldown suppresses a repeat on the same channel, and
// that a different channel still fires.
func TestPolledEventsFireRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.hub.Rules().AddRule(rules.Rule{
		Name:       "reply to comments",
		Kind:       rules.KindNewComment,
		Conditions: rules.Conditions{Channels: []string{"twitter", "instagram"}},
		Actions:    []rules.Action{{WorkerType: "engagement", Name: "reply", Priority: task.PriorityHigh}},
		Cooldown:   time.Hour,
	}); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	f.events.Push(
		testutil.Event(rules.KindNewComment, "twitter", map[string]any{"text": "love it"}),
		testutil.Event(rules.KindNewComment, "twitter", map[string]any{"text": "me too"}),
	)
	now := testutil.Epoch.Add(time.Minute)
	if n := f.hub.Rules().Tick(ctx, now); n != 1 {
		t.Fatalf("first Tick() fired %d, want 1", n)
	}
	first := f.engagement.Wait(t, 5*time.Second)
	if first.Origin != task.OriginEvent || first.Priority != task.PriorityHigh {
		t.Errorf("task origin/priority = %s/%s", first.Origin, first.Priority)
	}

	f.events.Push(testutil.Event(rules.KindNewComment, "instagram", nil))
	if n := f.hub.Rules().Tick(ctx, now.Add(time.Minute)); n != 1 {
		t.Fatalf("second Tick() fired %d, want 1", n)
	}
	f.engagement.Wait(t, 5*time.Second)

	var suppressed, fired int
	for _, evt := range f.hub.Rules().Events(0) {
		switch evt.Outcome {
		case rules.OutcomeSuppressed:
			suppressed++
		case rules.OutcomeFired:
			fired++
		}
	}
	if fired != 2 || suppressed != 1 {
		t.Errorf("fired = %d, suppressed = %d, want 2 and 1", fired, suppressed)
	}
	if f.events.Polls() < 2 {
		t.Errorf("Polls() = %d, want at least 2", f.events.Polls())
	}
}

func TestPolledEventSourceFailureIsSkipped(t *testing.T) {
	f := newFixture(t)

	f.events.FailNext(errors.New("upstream unavailable"))
	if n := f.hub.Rules().Tick(context.Background(), testutil.Epoch); n != 0 {
		t.Fatalf("Tick() = %d, want 0", n)
	}
	if got := len(f.engagement.Tasks()); got != 0 {
		t.Errorf("engagement tasks = %d, want 0", got)
	}
}

// TestSampledMetricsBreachThreshold verifies that a falling sentiment
// series routes a corrective task to the crisis worker.
func TestSampledMetricsBreachThreshold(t *testing.T) {
	f := newFixture(t)
	now := testutil.Epoch

	id, err := f.hub.Thresholds().AddThreshold(threshold.Threshold{
		Name:       "sentiment floor",
		Metric:     threshold.MetricSentiment,
		Channel:    "twitter",
		Value:      0.3,
		Comparison: threshold.ComparisonBelow,
		Severity:   task.PriorityCritical,
		Enabled:    true,
		TenantID:   "tenant-test",
	})
	if err != nil {
		t.Fatalf("AddThreshold() error = %v", err)
	}

	f.metrics.Push(testutil.Series("twitter", threshold.MetricSentiment, now, 0.2, 0.1, 0.15)...)
	breaches := f.hub.Thresholds().Tick(context.Background(), now)
	if len(breaches) != 1 || breaches[0].Threshold.ID != id {
		t.Fatalf("breaches = %+v, want one for %s", breaches, id)
	}

	tk := f.crisis.Wait(t, 5*time.Second)
	if tk.Origin != task.OriginThreshold || tk.Priority != task.PriorityCritical {
		t.Errorf("corrective task origin/priority = %s/%s", tk.Origin, tk.Priority)
	}
	if tk.Label(threshold.LabelThresholdID) != id {
		t.Errorf("threshold label = %q, want %q", tk.Label(threshold.LabelThresholdID), id)
	}
	if f.metrics.Samples() == 0 {
		t.Error("metric source was never sampled")
	}
}

// TestWorkflowAcrossWorkers chains a content step into an engagement step.
func TestWorkflowAcrossWorkers(t *testing.T) {
	f := newFixture(t)

	done := make(chan workflow.Execution, 1)
	f.bus.Subscribe(event.TypeWorkflowFinished, func(e event.Event) {
		if fe, ok := e.(event.WorkflowFinishedEvent); ok {
			if exec, err := f.hub.Workflows().Status(fe.ExecutionID); err == nil {
				done <- exec
			}
		}
	})

	defID, err := f.hub.Workflows().Define(workflow.Definition{
		ID:   "launch",
		Name: "launch",
		Steps: []workflow.Step{
			{Name: "draft", WorkerType: "content"},
			{Name: "promote", WorkerType: "engagement"},
		},
	})
	if err != nil {
		t.Fatalf("Define() error = %v", err)
	}
	if _, err := f.hub.Workflows().Execute(context.Background(), defID, "tenant-test", map[string]any{"topic": "spring"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	select {
	case exec := <-done:
		if exec.Status != workflow.StatusCompleted {
			t.Errorf("execution status = %s, want completed", exec.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("workflow did not finish")
	}
	if len(f.content.Tasks()) != 1 || len(f.engagement.Tasks()) != 1 {
		t.Errorf("content tasks = %d, engagement tasks = %d", len(f.content.Tasks()), len(f.engagement.Tasks()))
	}
}
