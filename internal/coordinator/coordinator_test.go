package coordinator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/conductor/internal/archive"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/retry"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
)

const waitTimeout = 2 * time.Second

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	base := []Option{
		WithEventBus(bus),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}),
	}
	c := New(worker.NewRegistry(), append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c, bus
}

// finished subscribes to TaskFinishedEvent before the test submits anything.
func finished(bus *event.Bus) <-chan task.Task {
	ch := make(chan task.Task, 64)
	bus.Subscribe(event.TypeTaskFinished, func(e event.Event) {
		ch <- e.(event.TaskFinishedEvent).Task
	})
	return ch
}

func waitFinished(t *testing.T, ch <-chan task.Task) task.Task {
	t.Helper()
	select {
	case tk := <-ch:
		return tk
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a task to finish")
		return task.Task{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func okWorker(output map[string]any) worker.ExecuteFunc {
	return func(context.Context, task.Task) (task.Result, error) {
		return task.Result{Output: output}, nil
	}
}

func submit(t *testing.T, c *Coordinator, tk task.Task) string {
	t.Helper()
	if tk.TenantID == "" {
		tk.TenantID = "org1"
	}
	id, err := c.Submit(context.Background(), tk)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	return id
}

func TestSubmit_NoWorkerIsRoutingErrorAndQueueUnchanged(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.Submit(context.Background(), task.Task{WorkerType: "strategy", TenantID: "org1"})
	if !errors.Is(err, errors.ErrNoWorkerForType) {
		t.Fatalf("Submit() error = %v, want ErrNoWorkerForType", err)
	}
	var routing *errors.RoutingError
	if !errors.As(err, &routing) || routing.WorkerType != "strategy" {
		t.Errorf("expected RoutingError for strategy, got %v", err)
	}

	s := c.Status()
	if s.Queued != 0 || len(c.Tasks()) != 0 {
		t.Errorf("queue should be unchanged, status = %+v", s)
	}
	for p, n := range s.QueueDepth {
		if n != 0 {
			t.Errorf("QueueDepth[%s] = %d, want 0", p, n)
		}
	}
	if m := c.Metrics(); m.Rejected != 1 || m.Submitted != 0 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestSubmit_Validation(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, err := c.RegisterFunc("w-1", worker.TypeContent, nil, okWorker(nil)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		task task.Task
	}{
		{"missing tenant", task.Task{WorkerType: "content"}},
		{"unknown type", task.Task{WorkerType: "astrology", TenantID: "org1"}},
		{"bad priority", task.Task{WorkerType: "content", TenantID: "org1", Priority: 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Submit(context.Background(), tt.task)
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("Submit() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSubmit_Succeeds(t *testing.T) {
	c, bus := newTestCoordinator(t)
	done := finished(bus)
	if _, err := c.RegisterFunc("w-1", worker.TypeContent, nil, okWorker(map[string]any{"draft": "hello"})); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := submit(t, c, task.Task{WorkerType: "content", Payload: map[string]any{"topic": "launch"}})
	got := waitFinished(t, done)

	if got.ID != id || got.Status != task.StatusSucceeded {
		t.Fatalf("finished task = %+v", got)
	}
	if got.Attempts != 1 || got.WorkerID != "w-1" || got.Origin != task.OriginManual {
		t.Errorf("unexpected task state: %+v", got)
	}
	if got.Output["draft"] != "hello" {
		t.Errorf("Output = %v", got.Output)
	}

	stored, ok := c.Task(id)
	if !ok || stored.Status != task.StatusSucceeded {
		t.Errorf("Task(%s) = %+v, %v", id, stored, ok)
	}
	if m := c.Metrics(); m.Succeeded != 1 || m.Dispatched != 1 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestAlwaysFailingWorker_ExhaustsAttemptsAndKeepsLastError(t *testing.T) {
	c, bus := newTestCoordinator(t)
	done := finished(bus)

	var calls atomic.Int32
	_, err := c.RegisterFunc("analytics-1", worker.TypeAnalytics, nil, func(context.Context, task.Task) (task.Result, error) {
		n := calls.Add(1)
		return task.Result{}, errors.New("quota exceeded #" + string(rune('0'+n)))
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	submit(t, c, task.Task{WorkerType: "analytics"})
	got := waitFinished(t, done)

	if got.Status != task.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if got.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", got.Attempts)
	}
	if got.LastError != "quota exceeded #3" {
		t.Errorf("LastError = %q, want the third attempt's error", got.LastError)
	}
	if calls.Load() != 3 {
		t.Errorf("worker called %d times, want 3", calls.Load())
	}
	if m := c.Metrics(); m.Retried != 2 || m.Failed != 1 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestPanicIsRetriedLikeAnError(t *testing.T) {
	c, bus := newTestCoordinator(t)
	done := finished(bus)

	var calls atomic.Int32
	_, _ = c.RegisterFunc("w-1", worker.TypeCrisis, nil, func(context.Context, task.Task) (task.Result, error) {
		if calls.Add(1) == 1 {
			panic("nil map write")
		}
		return task.Result{Output: map[string]any{"ok": true}}, nil
	})
	_ = c.Start(context.Background())

	submit(t, c, task.Task{WorkerType: "crisis", Priority: task.PriorityCritical})
	got := waitFinished(t, done)

	if got.Status != task.StatusSucceeded || got.Attempts != 2 {
		t.Errorf("got status %s after %d attempts, want succeeded after 2", got.Status, got.Attempts)
	}
	if !strings.Contains(got.LastError, "worker panicked") {
		t.Errorf("LastError = %q, want the panic from attempt 1", got.LastError)
	}
}

func TestTaskTimeout(t *testing.T) {
	c, bus := newTestCoordinator(t,
		WithTaskTimeout(10*time.Millisecond),
		WithRetryPolicy(retry.Policy{MaxAttempts: 1}))
	done := finished(bus)

	block := make(chan struct{})
	defer close(block)
	_, _ = c.RegisterFunc("slow", worker.TypeResearch, nil, func(context.Context, task.Task) (task.Result, error) {
		<-block // ignores its context
		return task.Result{}, nil
	})
	_ = c.Start(context.Background())

	submit(t, c, task.Task{WorkerType: "research"})
	got := waitFinished(t, done)

	if got.Status != task.StatusFailed {
		t.Fatalf("Status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.LastError, "timeout") {
		t.Errorf("LastError = %q, want a timeout", got.LastError)
	}
}

func TestDispatchOrder_PriorityThenFIFO(t *testing.T) {
	c, bus := newTestCoordinator(t)
	_, _ = c.RegisterFunc("w-1", worker.TypeEngagement, nil, okWorker(nil))

	var mu sync.Mutex
	var order []string
	bus.Subscribe(event.TypeTaskDispatched, func(e event.Event) {
		mu.Lock()
		order = append(order, e.(event.TaskDispatchedEvent).Task.ID)
		mu.Unlock()
	})

	submit(t, c, task.Task{ID: "low", WorkerType: "engagement", Priority: task.PriorityLow})
	submit(t, c, task.Task{ID: "high-1", WorkerType: "engagement", Priority: task.PriorityHigh})
	submit(t, c, task.Task{ID: "critical", WorkerType: "engagement", Priority: task.PriorityCritical})
	submit(t, c, task.Task{ID: "high-2", WorkerType: "engagement", Priority: task.PriorityHigh})
	submit(t, c, task.Task{ID: "medium", WorkerType: "engagement", Priority: task.PriorityMedium})

	if s := c.Status(); s.Queued != 5 {
		t.Fatalf("tasks submitted before Start should wait, status = %+v", s)
	}
	_ = c.Start(context.Background())
	waitFor(t, "all tasks to succeed", func() bool { return c.Metrics().Succeeded == 5 })

	mu.Lock()
	defer mu.Unlock()
	want := []string{"critical", "high-1", "high-2", "medium", "low"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("dispatch order = %v, want %v", order, want)
	}
}

func TestDispatch_RoundRobinAcrossWorkers(t *testing.T) {
	c, bus := newTestCoordinator(t)
	_, _ = c.RegisterFunc("w-a", worker.TypeContent, nil, okWorker(nil))
	_, _ = c.RegisterFunc("w-b", worker.TypeContent, nil, okWorker(nil))

	var mu sync.Mutex
	var picked []string
	bus.Subscribe(event.TypeTaskDispatched, func(e event.Event) {
		mu.Lock()
		picked = append(picked, e.(event.TaskDispatchedEvent).WorkerID)
		mu.Unlock()
	})

	for range 4 {
		submit(t, c, task.Task{WorkerType: "content"})
	}
	_ = c.Start(context.Background())
	waitFor(t, "all tasks to succeed", func() bool { return c.Metrics().Succeeded == 4 })

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(picked, ",") != "w-a,w-b,w-a,w-b" {
		t.Errorf("workers picked = %v, want alternating", picked)
	}
}

func TestDispatch_CapabilityLabel(t *testing.T) {
	c, bus := newTestCoordinator(t)
	done := finished(bus)
	_, _ = c.RegisterFunc("plain", worker.TypeContent, []string{"copy"}, okWorker(nil))
	_, _ = c.RegisterFunc("video", worker.TypeContent, []string{"copy", "video"}, okWorker(nil))
	_ = c.Start(context.Background())

	submit(t, c, task.Task{WorkerType: "content", Labels: map[string]string{task.LabelCapability: "video"}})
	if got := waitFinished(t, done); got.WorkerID != "video" {
		t.Errorf("WorkerID = %q, want video", got.WorkerID)
	}

	_, err := c.Submit(context.Background(), task.Task{
		WorkerType: "content",
		TenantID:   "org1",
		Labels:     map[string]string{task.LabelCapability: "podcast"},
	})
	if !errors.Is(err, errors.ErrNoWorkerForType) {
		t.Errorf("Submit() with unmet capability = %v, want routing error", err)
	}
}

func TestDispatch_WorkerGoneAtDispatchFailsTerminally(t *testing.T) {
	c, bus := newTestCoordinator(t)
	done := finished(bus)
	_, _ = c.RegisterFunc("w-1", worker.TypeScheduling, nil, okWorker(nil))

	submit(t, c, task.Task{WorkerType: "scheduling"})
	if err := c.Deregister("w-1"); err != nil {
		t.Fatal(err)
	}
	_ = c.Start(context.Background())

	got := waitFinished(t, done)
	if got.Status != task.StatusFailed || !strings.Contains(got.LastError, "routing error") {
		t.Errorf("finished task = %s %q, want failed with routing error", got.Status, got.LastError)
	}
	if m := c.Metrics(); m.RoutingFailures != 1 || m.Dispatched != 0 {
		t.Errorf("Metrics() = %+v", m)
	}
	if err := c.Deregister("ghost"); !errors.IsNotFound(err) {
		t.Errorf("Deregister(ghost) = %v, want not found", err)
	}
}

func TestCancel(t *testing.T) {
	c, bus := newTestCoordinator(t)
	done := finished(bus)
	_, _ = c.RegisterFunc("w-1", worker.TypeStrategy, nil, okWorker(nil))

	id := submit(t, c, task.Task{WorkerType: "strategy"})
	got, err := c.Cancel(id)
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if got.Status != task.StatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
	if ev := waitFinished(t, done); ev.ID != id || ev.Status != task.StatusCancelled {
		t.Errorf("finished event = %+v", ev)
	}
	if s := c.Status(); s.Queued != 0 || s.Cancelled != 1 {
		t.Errorf("Status() = %+v", s)
	}

	if _, err := c.Cancel(id); !errors.Is(err, errors.ErrTaskTerminal) {
		t.Errorf("second Cancel() = %v, want ErrTaskTerminal", err)
	}
	if _, err := c.Cancel("nope"); !errors.IsNotFound(err) {
		t.Errorf("Cancel(unknown) = %v, want not found", err)
	}
}

func TestCancel_RunningTaskIsRejected(t *testing.T) {
	c, _ := newTestCoordinator(t)
	release := make(chan struct{})
	_, _ = c.RegisterFunc("w-1", worker.TypeStrategy, nil, func(ctx context.Context, _ task.Task) (task.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return task.Result{}, nil
	})
	_ = c.Start(context.Background())

	id := submit(t, c, task.Task{WorkerType: "strategy"})
	waitFor(t, "task to run", func() bool { return c.Status().InFlight == 1 })

	if _, err := c.Cancel(id); !errors.Is(err, errors.ErrTaskRunning) {
		t.Errorf("Cancel(running) = %v, want ErrTaskRunning", err)
	}
	close(release)
	waitFor(t, "task to finish", func() bool { return c.Metrics().Succeeded == 1 })
}

func TestConcurrencyLimitPerPriority(t *testing.T) {
	c, _ := newTestCoordinator(t, WithConcurrencyLimits(map[task.Priority]int{task.PriorityHigh: 1}))
	release := make(chan struct{})
	_, _ = c.RegisterFunc("w-1", worker.TypeAnalytics, nil, func(context.Context, task.Task) (task.Result, error) {
		<-release
		return task.Result{}, nil
	})
	_ = c.Start(context.Background())

	submit(t, c, task.Task{WorkerType: "analytics", Priority: task.PriorityHigh})
	submit(t, c, task.Task{WorkerType: "analytics", Priority: task.PriorityHigh})
	submit(t, c, task.Task{WorkerType: "analytics", Priority: task.PriorityLow})

	waitFor(t, "one high and one low in flight", func() bool { return c.Status().InFlight == 2 })
	if s := c.Status(); s.Queued != 1 || s.QueueDepth["high"] != 1 {
		t.Errorf("second high task should wait for a slot, status = %+v", s)
	}

	close(release)
	waitFor(t, "all tasks to succeed", func() bool { return c.Metrics().Succeeded == 3 })
	if got := c.ConcurrencyLimits()[task.PriorityHigh]; got != 1 {
		t.Errorf("ConcurrencyLimits()[high] = %d, want 1", got)
	}
}

func TestStop(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, _ = c.RegisterFunc("w-1", worker.TypeContent, nil, okWorker(nil))
	id := submit(t, c, task.Task{WorkerType: "content"})
	_ = c.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}

	if got, ok := c.Task(id); !ok || !got.Status.IsTerminal() {
		t.Errorf("task should be terminal after Stop, got %+v", got)
	}
	if _, err := c.Submit(context.Background(), task.Task{WorkerType: "content", TenantID: "org1"}); !errors.Is(err, errors.ErrCoordinatorStopped) {
		t.Errorf("Submit() after Stop = %v, want ErrCoordinatorStopped", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, errors.ErrCoordinatorStopped) {
		t.Errorf("Start() after Stop = %v, want ErrCoordinatorStopped", err)
	}
}

type memorySink struct {
	mu      sync.Mutex
	records []archive.Record
}

func (s *memorySink) Write(_ context.Context, r archive.Record) error {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestHistoryAndArchive(t *testing.T) {
	sink := &memorySink{}
	c, _ := newTestCoordinator(t, WithHistoryLimit(2), WithArchive(sink))
	_, _ = c.RegisterFunc("w-1", worker.TypeContent, nil, okWorker(nil))
	_ = c.Start(context.Background())

	for range 3 {
		submit(t, c, task.Task{WorkerType: "content"})
	}
	waitFor(t, "all tasks to succeed", func() bool { return c.Metrics().Succeeded == 3 })

	if h := c.History(); len(h) != 2 {
		t.Errorf("History() length = %d, want 2", len(h))
	}
	waitFor(t, "archive writes", func() bool { return sink.len() == 3 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, r := range sink.records {
		if r.Kind != archive.KindTask || r.Status != "succeeded" {
			t.Errorf("archived record = %+v", r)
		}
	}
}

func TestRegisterWorker_Validation(t *testing.T) {
	c, bus := newTestCoordinator(t)
	var registered []string
	bus.Subscribe(event.TypeWorkerRegistered, func(e event.Event) {
		registered = append(registered, e.(event.WorkerRegisteredEvent).WorkerID)
	})

	if _, err := c.RegisterWorker(nil); err == nil {
		t.Error("nil worker should be rejected")
	}
	if _, err := c.RegisterFunc("", worker.TypeContent, nil, okWorker(nil)); err == nil {
		t.Error("empty id should be rejected")
	}
	if _, err := c.RegisterFunc("w", "astrology", nil, okWorker(nil)); err == nil {
		t.Error("unknown type should be rejected")
	}
	info, err := c.RegisterFunc("w", worker.TypeContent, []string{"copy"}, okWorker(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !info.Active || !info.HasCapability("copy") {
		t.Errorf("Info = %+v", info)
	}
	if len(registered) != 1 || len(c.Workers()) != 1 {
		t.Errorf("registered events = %v, workers = %d", registered, len(c.Workers()))
	}
}
