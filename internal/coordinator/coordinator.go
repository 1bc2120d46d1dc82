package coordinator

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/Iron-Ham/conductor/internal/archive"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/retry"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/taskqueue"
	"github.com/Iron-Ham/conductor/internal/worker"
)

// Coordinator registers workers and routes tasks to them.
type Coordinator struct {
	registry     *worker.Registry
	queue        *taskqueue.Queue
	retries      *retry.Manager
	limits       priorityLimits
	events       *event.Bus
	sink         archive.Sink
	logger       *logging.Logger
	metrics      *instruments
	policy       retry.Policy
	taskTimeout  time.Duration
	historyLimit int
	now          func() time.Time

	wake chan struct{}
	wg   sync.WaitGroup // dispatch loop and executions

	mu       sync.Mutex
	tasks    map[string]*task.Task  // non-terminal tasks
	history  []task.Task            // terminal tasks, oldest first
	timers   map[string]*time.Timer // pending retries
	cursors  map[worker.Type]int    // round-robin position per type
	counters Metrics
	cancel   context.CancelFunc
	started  bool
	stopped  bool
}

// Metrics are cumulative counters since the coordinator was created.
type Metrics struct {
	Submitted       int           `json:"submitted"`
	Rejected        int           `json:"rejected"`
	Dispatched      int           `json:"dispatched"`
	Retried         int           `json:"retried"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Cancelled       int           `json:"cancelled"`
	RoutingFailures int           `json:"routing_failures"`
	TotalDuration   time.Duration `json:"total_duration"`
}

// AvgDuration is the mean wall time of the final attempt of succeeded and
// failed tasks.
func (m Metrics) AvgDuration() time.Duration {
	n := m.Succeeded + m.Failed
	if n == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(n)
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	QueueDepth        map[string]int `json:"queue_depth"`
	Queued            int            `json:"queued"`
	InFlight          int            `json:"in_flight"`
	Retrying          int            `json:"retrying"`
	Succeeded         int            `json:"succeeded"`
	Failed            int            `json:"failed"`
	Cancelled         int            `json:"cancelled"`
	ActiveWorkers     int            `json:"active_workers"`
	RegisteredWorkers int            `json:"registered_workers"`
}

// New creates a Coordinator over registry. A nil registry gets a fresh one.
func New(registry *worker.Registry, opts ...Option) *Coordinator {
	cfg := &coordinatorConfig{
		logger:       logging.NopLogger(),
		sink:         archive.Nop{},
		policy:       retry.Policy{MaxAttempts: defaultMaxAttempts, Delay: defaultRetryDelay},
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.sink == nil {
		cfg.sink = archive.Nop{}
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}
	if registry == nil {
		registry = worker.NewRegistry()
	}
	logger := cfg.logger.WithComponent("coordinator")

	return &Coordinator{
		registry:     registry,
		queue:        taskqueue.New(),
		retries:      retry.NewManager(),
		limits:       newPriorityLimits(cfg.limits),
		events:       cfg.events,
		sink:         cfg.sink,
		logger:       logger,
		metrics:      newInstruments(cfg.meterProvider, logger),
		policy:       cfg.policy.Normalize(),
		taskTimeout:  cfg.taskTimeout,
		historyLimit: cfg.historyLimit,
		now:          cfg.now,
		wake:         make(chan struct{}, 1),
		tasks:        make(map[string]*task.Task),
		timers:       make(map[string]*time.Timer),
		cursors:      make(map[worker.Type]int),
	}
}

// Registry returns the worker registry.
func (c *Coordinator) Registry() *worker.Registry {
	return c.registry
}

// RegisterWorker adds w to the registry, or refreshes it if its ID is
// already known. The worker is not started; that is the caller's job.
func (c *Coordinator) RegisterWorker(w worker.Worker) (worker.Info, error) {
	if w == nil {
		return worker.Info{}, errors.NewValidationError("worker is required").WithField("worker")
	}
	if w.ID() == "" {
		return worker.Info{}, errors.NewValidationError("worker id is required").WithField("id")
	}
	caps := w.Capabilities()
	if !caps.Type.Valid() {
		return worker.Info{}, errors.NewValidationError("unknown worker type").
			WithField("type").WithValue(caps.Type).WithCause(errors.ErrUnknownWorkerType)
	}

	info := c.registry.Register(worker.Info{
		ID:           w.ID(),
		Type:         caps.Type,
		Capabilities: caps.Capabilities,
	}, w)

	c.logger.Info("worker registered", "worker_id", info.ID, "worker_type", string(info.Type), "capabilities", info.Capabilities)
	c.publish(event.NewWorkerRegisteredEvent(info.ID, string(info.Type), slices.Clone(info.Capabilities)))
	c.signal()
	return info, nil
}

// RegisterFunc registers a worker whose Execute is fn.
func (c *Coordinator) RegisterFunc(id string, t worker.Type, capabilities []string, fn worker.ExecuteFunc) (worker.Info, error) {
	if fn == nil {
		return worker.Info{}, errors.NewValidationError("execute function is required").WithField("fn")
	}
	return c.RegisterWorker(worker.NewFunc(id, t, capabilities, fn))
}

// Deregister marks a worker inactive. Tasks already running on it finish
// normally; queued tasks are routed to other workers of the type.
func (c *Coordinator) Deregister(id string) error {
	if !c.registry.Deregister(id) {
		return errors.NewNotFoundError("worker", id).WithCause(errors.ErrWorkerNotFound)
	}
	c.logger.Info("worker deregistered", "worker_id", id)
	c.publish(event.NewWorkerDeregisteredEvent(id))
	return nil
}

// Workers returns every registered worker, active or not.
func (c *Coordinator) Workers() []worker.Info {
	return c.registry.All()
}

// Submit validates t, checks that an active worker can take it, and
// enqueues it. It returns the task ID without waiting for execution.
//
// A task with no active worker of its type (or none declaring the task's
// required capability) is rejected with a RoutingError and nothing is
// queued.
func (c *Coordinator) Submit(ctx context.Context, t task.Task) (string, error) {
	if t.TenantID == "" {
		return "", errors.NewValidationError("tenant id is required").WithField("tenant_id")
	}
	if _, err := worker.ParseType(t.WorkerType); err != nil {
		return "", errors.NewValidationError("unknown worker type").
			WithField("worker_type").WithValue(t.WorkerType).WithCause(errors.ErrUnknownWorkerType)
	}
	t.Priority = t.Priority.OrDefault()
	if !t.Priority.Valid() {
		return "", errors.NewValidationError("invalid priority").WithField("priority").WithValue(int(t.Priority))
	}

	if len(c.candidates(t)) == 0 {
		c.mu.Lock()
		c.counters.Rejected++
		c.mu.Unlock()
		c.logger.Warn("task rejected: no worker",
			"worker_type", t.WorkerType,
			"tenant_id", t.TenantID,
			"capability", t.Label(task.LabelCapability))
		return "", errors.NewRoutingError("no active worker can accept task", errors.ErrNoWorkerForType).
			WithTaskID(t.ID).
			WithWorkerType(t.WorkerType).
			WithTenant(t.TenantID)
	}

	t = t.Clone()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Origin == "" {
		t.Origin = task.OriginManual
	}
	t.CreatedAt = c.now()
	t.Status = task.StatusQueued
	t.Attempts = 0
	t.WorkerID = ""
	t.LastError = ""
	t.Output = nil
	t.StartedAt = time.Time{}
	t.FinishedAt = time.Time{}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return "", errors.ErrCoordinatorStopped
	}
	if _, exists := c.tasks[t.ID]; exists {
		c.mu.Unlock()
		return "", errors.NewValidationError("task id already in use").WithField("id").WithValue(t.ID)
	}
	if err := c.queue.Push(t); err != nil {
		c.mu.Unlock()
		return "", errors.NewValidationError("cannot enqueue task").WithField("id").WithValue(t.ID).WithCause(err)
	}
	rec := t.Clone()
	c.tasks[t.ID] = &rec
	c.retries.Track(t.ID, c.policy.MaxAttempts)
	c.counters.Submitted++
	c.mu.Unlock()

	c.logger.Info("task submitted",
		"task_id", t.ID,
		"worker_type", t.WorkerType,
		"tenant_id", t.TenantID,
		"priority", t.Priority.String(),
		"origin", string(t.Origin))
	c.publish(event.NewTaskSubmittedEvent(t.Clone()))
	c.metrics.recordSubmitted(ctx, t)
	c.signal()
	return t.ID, nil
}

// Cancel stops a task that has not been dispatched yet (queued, or waiting
// for a retry). A running task cannot be cancelled.
func (c *Coordinator) Cancel(id string) (task.Task, error) {
	c.mu.Lock()
	rec, ok := c.tasks[id]
	if !ok {
		_, finished := c.findHistory(id)
		c.mu.Unlock()
		if finished {
			return task.Task{}, errors.Wrapf(errors.ErrTaskTerminal, "cancel task %s", id)
		}
		return task.Task{}, errors.NewNotFoundError("task", id).WithCause(errors.ErrTaskNotFound)
	}
	if rec.Status == task.StatusRunning {
		c.mu.Unlock()
		return task.Task{}, errors.Wrapf(errors.ErrTaskRunning, "cancel task %s", id)
	}
	if rec.Status == task.StatusQueued {
		c.queue.Remove(id)
	}
	done := c.finishLocked(rec, task.StatusCancelled)
	c.mu.Unlock()

	c.afterFinish(done)
	return done, nil
}

// Task returns a live or recently finished task.
func (c *Coordinator) Task(id string) (task.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.tasks[id]; ok {
		return rec.Clone(), true
	}
	return c.findHistory(id)
}

// Tasks returns every non-terminal task ordered by creation time.
func (c *Coordinator) Tasks() []task.Task {
	c.mu.Lock()
	out := make([]task.Task, 0, len(c.tasks))
	for _, rec := range c.tasks {
		out = append(out, rec.Clone())
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b task.Task) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// History returns the retained terminal tasks, oldest first.
func (c *Coordinator) History() []task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]task.Task, len(c.history))
	for i, t := range c.history {
		out[i] = t.Clone()
	}
	return out
}

// Status returns queue depth and task counts.
func (c *Coordinator) Status() Status {
	depth := c.queue.Depth()
	s := Status{
		QueueDepth:        make(map[string]int, len(depth)),
		ActiveWorkers:     c.registry.ActiveCount(),
		RegisteredWorkers: len(c.registry.All()),
	}
	for p, n := range depth {
		s.QueueDepth[p.String()] = n
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.tasks {
		switch rec.Status {
		case task.StatusQueued:
			s.Queued++
		case task.StatusRunning:
			s.InFlight++
		case task.StatusRetrying:
			s.Retrying++
		}
	}
	s.Succeeded = c.counters.Succeeded
	s.Failed = c.counters.Failed
	s.Cancelled = c.counters.Cancelled
	return s
}

// Metrics returns the cumulative counters.
func (c *Coordinator) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// findHistory searches terminal tasks newest first. Caller holds c.mu.
func (c *Coordinator) findHistory(id string) (task.Task, bool) {
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].ID == id {
			return c.history[i].Clone(), true
		}
	}
	return task.Task{}, false
}

// finishLocked moves rec to its terminal status and into history. It
// returns the final copy for the caller to publish once c.mu is released.
// Caller holds c.mu.
func (c *Coordinator) finishLocked(rec *task.Task, status task.Status) task.Task {
	rec.Status = status
	rec.FinishedAt = c.now()
	delete(c.tasks, rec.ID)
	c.retries.Forget(rec.ID)
	if timer, ok := c.timers[rec.ID]; ok {
		timer.Stop()
		delete(c.timers, rec.ID)
	}

	switch status {
	case task.StatusSucceeded:
		c.counters.Succeeded++
		c.counters.TotalDuration += rec.Duration()
	case task.StatusFailed:
		c.counters.Failed++
		c.counters.TotalDuration += rec.Duration()
	case task.StatusCancelled:
		c.counters.Cancelled++
	}

	done := rec.Clone()
	if c.historyLimit > 0 {
		c.history = append(c.history, done.Clone())
		if over := len(c.history) - c.historyLimit; over > 0 {
			c.history = slices.Delete(c.history, 0, over)
		}
	}
	return done
}

// afterFinish announces a terminal task: log line, event, metrics, archive.
func (c *Coordinator) afterFinish(t task.Task) {
	attrs := []any{
		"task_id", t.ID,
		"worker_type", t.WorkerType,
		"worker_id", t.WorkerID,
		"tenant_id", t.TenantID,
		"status", string(t.Status),
		"attempts", t.Attempts,
	}
	switch t.Status {
	case task.StatusFailed:
		c.logger.Error("task failed", append(attrs, "error", t.LastError)...)
	case task.StatusCancelled:
		c.logger.Info("task cancelled", attrs...)
	default:
		c.logger.Info("task succeeded", append(attrs, "duration", t.Duration().String())...)
	}

	c.publish(event.NewTaskFinishedEvent(t.Clone()))
	c.metrics.recordFinished(context.Background(), t)
	c.archive(t)
}

func (c *Coordinator) archive(t task.Task) {
	rec, err := archive.TaskRecord(t)
	if err != nil {
		c.logger.Warn("failed to build archive record", "task_id", t.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := c.sink.Write(ctx, rec); err != nil {
		c.logger.Warn("failed to archive task", "task_id", t.ID, "error", err)
	}
}

func (c *Coordinator) publish(e event.Event) {
	if c.events != nil {
		c.events.Publish(e)
	}
}

// signal wakes the dispatch loop without blocking.
func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// SetConcurrencyLimit changes the in-flight cap for one priority band.
func (c *Coordinator) SetConcurrencyLimit(p task.Priority, n int) {
	if l, ok := c.limits[p]; ok {
		l.SetLimit(n)
		c.signal()
	}
}

// ConcurrencyLimits returns the current per-band limits (0 = unlimited).
func (c *Coordinator) ConcurrencyLimits() map[task.Priority]int {
	out := make(map[task.Priority]int, len(c.limits))
	for p, l := range c.limits {
		out[p] = l.Limit()
	}
	return out
}

func (c *Coordinator) String() string {
	m := c.Metrics()
	return fmt.Sprintf("coordinator[submitted=%d succeeded=%d failed=%d workers=%d]",
		m.Submitted, m.Succeeded, m.Failed, c.registry.ActiveCount())
}
