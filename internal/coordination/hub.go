package coordination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/conductor/internal/ai"
	"github.com/Iron-Ham/conductor/internal/archive"
	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/coordinator"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/mailbox"
	"github.com/Iron-Ham/conductor/internal/retry"
	"github.com/Iron-Ham/conductor/internal/rules"
	"github.com/Iron-Ham/conductor/internal/scaling"
	"github.com/Iron-Ham/conductor/internal/scheduler"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/threshold"
	"github.com/Iron-Ham/conductor/internal/worker"
	"github.com/Iron-Ham/conductor/internal/workflow"
)

// LabelHandoffFrom marks a task resubmitted through an accepted handoff.
const LabelHandoffFrom = "handoff.from"

// Hub owns every component of a running Conductor process.
type Hub struct {
	logger *logging.Logger
	events *event.Bus
	sink   archive.Sink

	registry   *worker.Registry
	coord      *coordinator.Coordinator
	mailbox    *mailbox.Bus
	sched      *scheduler.Scheduler
	rules      *rules.Engine
	thresholds *threshold.Monitor
	workflows  *workflow.Engine
	advisor    *scaling.Advisor
	workers    []worker.Worker

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	active  []worker.Worker
}

// NewHub builds every component from cfg. Nothing runs until Start.
func NewHub(ctx context.Context, cfg *config.Config, opts ...Option) (*Hub, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Wrap(config.ValidationErrors(errs), "invalid config")
	}

	hc := &hubConfig{}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.logger == nil {
		hc.logger = logging.NopLogger()
	}
	if hc.events == nil {
		hc.events = event.NewBus(event.WithLogger(hc.logger))
	}
	logger := hc.logger.WithComponent("hub")

	sink := hc.sink
	if sink == nil {
		var err error
		sink, err = archive.Open(ctx, cfg.Archive, hc.logger)
		if err != nil {
			return nil, errors.Wrap(err, "open archive")
		}
	}

	limits, err := concurrencyLimits(cfg.Coordinator.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	h := &Hub{
		logger:   logger,
		events:   hc.events,
		sink:     sink,
		registry: worker.NewRegistry(),
	}

	coordOpts := []coordinator.Option{
		coordinator.WithEventBus(hc.events),
		coordinator.WithLogger(hc.logger),
		coordinator.WithArchive(sink),
		coordinator.WithRetryPolicy(retry.Policy{
			MaxAttempts: cfg.Coordinator.MaxRetries,
			Delay:       cfg.Coordinator.RetryDelay,
		}),
		coordinator.WithTaskTimeout(cfg.Coordinator.TaskTimeout),
		coordinator.WithConcurrencyLimits(limits),
		coordinator.WithHistoryLimit(cfg.Coordinator.HistoryLimit),
	}
	if hc.meterProvider != nil {
		coordOpts = append(coordOpts, coordinator.WithMeterProvider(hc.meterProvider))
	}
	h.coord = coordinator.New(h.registry, coordOpts...)

	h.mailbox = mailbox.New(
		mailbox.WithEventBus(hc.events),
		mailbox.WithLogger(hc.logger),
		mailbox.WithHandoffTTL(cfg.Bus.HandoffTTL),
		mailbox.WithShareTTL(cfg.Bus.ShareTTL),
		mailbox.WithSweepInterval(cfg.Bus.SweepInterval),
		mailbox.WithHistoryLimit(cfg.Bus.HistoryLimit),
	)

	h.sched = scheduler.New(h.coord,
		scheduler.WithEventBus(hc.events),
		scheduler.WithLogger(hc.logger),
		scheduler.WithLocation(cfg.Scheduler.Location()),
		scheduler.WithTickInterval(cfg.Scheduler.TickInterval),
	)

	ruleOpts := []rules.Option{
		rules.WithEventBus(hc.events),
		rules.WithLogger(hc.logger),
		rules.WithTickInterval(cfg.Rules.TickInterval),
		rules.WithHistoryLimit(cfg.Rules.EventHistory),
	}
	if hc.eventSource != nil {
		ruleOpts = append(ruleOpts, rules.WithSource(hc.eventSource))
	}
	h.rules = rules.New(h.coord, ruleOpts...)

	monitorOpts := []threshold.Option{
		threshold.WithEventBus(hc.events),
		threshold.WithLogger(hc.logger),
		threshold.WithTickInterval(cfg.Threshold.TickInterval),
		threshold.WithEvaluationWindow(cfg.Threshold.EvaluationWindow),
		threshold.WithRetention(cfg.Threshold.Retention),
	}
	if hc.metricSource != nil {
		monitorOpts = append(monitorOpts, threshold.WithSource(hc.metricSource))
	}
	h.thresholds = threshold.New(h.coord, monitorOpts...)

	h.workflows = workflow.New(h.coord, hc.events,
		workflow.WithLogger(hc.logger),
		workflow.WithArchive(sink),
	)

	policy := scaling.NewPolicy(
		scaling.WithMinWorkers(cfg.Scaling.MinWorkers),
		scaling.WithMaxWorkers(cfg.Scaling.MaxWorkers),
		scaling.WithScaleUpThreshold(cfg.Scaling.ScaleUpThreshold),
		scaling.WithScaleDownThreshold(cfg.Scaling.ScaleDownThreshold),
		scaling.WithCooldownPeriod(cfg.Scaling.Cooldown),
	)
	h.advisor = scaling.NewAdvisor(h.load, policy,
		scaling.WithEventBus(hc.events),
		scaling.WithLogger(hc.logger),
		scaling.WithTickInterval(cfg.Scaling.TickInterval),
	)

	if !hc.skipConfigured {
		for _, wc := range cfg.Workers {
			w, err := h.newConfiguredWorker(wc, hc.logger)
			if err != nil {
				h.workflows.Close()
				return nil, err
			}
			h.workers = append(h.workers, w)
		}
	}
	h.workers = append(h.workers, hc.workers...)

	return h, nil
}

func (h *Hub) newConfiguredWorker(wc config.WorkerConfig, logger *logging.Logger) (worker.Worker, error) {
	t, err := worker.ParseType(wc.Type)
	if err != nil {
		return nil, errors.Wrapf(err, "worker %s", wc.ID)
	}
	backend, err := ai.NewFromConfig(wc)
	if err != nil {
		return nil, errors.Wrapf(err, "worker %s", wc.ID)
	}
	return ai.NewCLIWorker(wc.ID, t, wc.Capabilities, backend,
		ai.WithMailbox(h.mailbox),
		ai.WithLogger(logger),
	), nil
}

func concurrencyLimits(raw map[string]int) (map[task.Priority]int, error) {
	limits := make(map[task.Priority]int, len(raw))
	for name, n := range raw {
		p, err := task.ParsePriority(name)
		if err != nil {
			return nil, errors.NewValidationError("unknown priority in max_concurrent").
				WithField("coordinator.max_concurrent").
				WithValue(name).
				WithCause(err)
		}
		limits[p] = n
	}
	return limits, nil
}

// Start starts the coordinator, registers every worker whose Start
// succeeds, and launches the periodic loops. A worker that fails to start
// is logged and left out of routing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return errors.ErrCoordinatorStopped
	}
	if h.started {
		return fmt.Errorf("hub already started")
	}

	if err := h.coord.Start(ctx); err != nil {
		return errors.Wrap(err, "start coordinator")
	}

	for _, w := range h.workers {
		if err := w.Start(ctx); err != nil {
			h.logger.Warn("worker failed to start", "worker_id", w.ID(), "error", err.Error())
			continue
		}
		if _, err := h.coord.RegisterWorker(w); err != nil {
			h.logger.Warn("worker registration failed", "worker_id", w.ID(), "error", err.Error())
			if stopErr := w.Stop(ctx); stopErr != nil {
				h.logger.Debug("worker stop failed", "worker_id", w.ID(), "error", stopErr.Error())
			}
			continue
		}
		id := w.ID()
		if err := h.mailbox.RegisterHandler(id, func(msg mailbox.Message) {
			h.handleMessage(id, msg)
		}); err != nil {
			h.logger.Warn("mailbox registration failed", "worker_id", id, "error", err.Error())
		}
		h.active = append(h.active, w)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return h.mailbox.Run(gctx) })
	g.Go(func() error { return h.sched.Run(gctx) })
	g.Go(func() error { return h.rules.Run(gctx) })
	g.Go(func() error { return h.thresholds.Run(gctx) })
	g.Go(func() error { return h.advisor.Run(gctx) })

	h.cancel = cancel
	h.group = g
	h.started = true

	h.logger.Info("hub started", "workers", describeWorkers(h.active))
	return nil
}

// handleMessage runs for every message addressed to a registered worker.
// Handoffs are accepted for the recipient and resubmitted to the
// coordinator. Other messages only land in history, where the recipient's
// next prompt picks them up.
func (h *Hub) handleMessage(workerID string, msg mailbox.Message) {
	if msg.Kind != mailbox.KindTaskHandoff {
		h.logger.Debug("message received",
			"worker_id", workerID, "from", msg.From, "kind", string(msg.Kind))
		return
	}

	handoffID, _ := msg.Payload["handoff_id"].(string)
	t, ok := h.mailbox.AcceptHandoff(handoffID, workerID)
	if !ok {
		h.logger.Debug("handoff no longer available", "handoff_id", handoffID, "worker_id", workerID)
		return
	}
	if info, found := h.registry.Get(workerID); found {
		t.WorkerType = string(info.Type)
	}

	resubmit := task.Task{
		WorkerType: t.WorkerType,
		TenantID:   t.TenantID,
		Payload:    t.Payload,
		Priority:   t.Priority,
		Origin:     t.Origin,
		Labels:     t.Labels,
	}
	if resubmit.Labels == nil {
		resubmit.Labels = map[string]string{}
	}
	resubmit.Labels[LabelHandoffFrom] = msg.From

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := h.coord.Submit(ctx, resubmit)
	if err != nil {
		h.logger.Warn("handoff resubmission failed",
			"handoff_id", handoffID, "worker_id", workerID, "error", err.Error())
		return
	}
	h.logger.Info("handoff accepted",
		"handoff_id", handoffID, "worker_id", workerID, "from", msg.From, "task_id", id)
}

// Stop cancels the periodic loops, stops the coordinator and every
// started worker, and closes the archive. It is safe to call multiple
// times.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	cancel, g, active := h.cancel, h.group, h.active
	h.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
	}
	if g != nil {
		if err := g.Wait(); err != nil {
			errs = append(errs, errors.Wrap(err, "periodic loops"))
		}
	}

	if err := h.coord.Stop(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "stop coordinator"))
	}
	for _, w := range active {
		h.mailbox.UnregisterHandler(w.ID())
		if err := w.Stop(ctx); err != nil {
			errs = append(errs, errors.Wrapf(err, "stop worker %s", w.ID()))
		}
	}
	h.mailbox.Wait()
	h.workflows.Close()

	if err := h.sink.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close archive"))
	}

	h.logger.Info("hub stopped")
	return errors.Join(errs...)
}

// Running reports whether Start succeeded and Stop has not been called.
func (h *Hub) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started && !h.stopped
}

// Coordinator returns the task coordinator.
func (h *Hub) Coordinator() *coordinator.Coordinator { return h.coord }

// Mailbox returns the communication bus between workers.
func (h *Hub) Mailbox() *mailbox.Bus { return h.mailbox }

// Scheduler returns the recurring scheduler.
func (h *Hub) Scheduler() *scheduler.Scheduler { return h.sched }

// Rules returns the event rule engine.
func (h *Hub) Rules() *rules.Engine { return h.rules }

// Thresholds returns the threshold monitor.
func (h *Hub) Thresholds() *threshold.Monitor { return h.thresholds }

// Scaling returns the capacity advisor.
func (h *Hub) Scaling() *scaling.Advisor { return h.advisor }

// Workflows returns the workflow engine.
func (h *Hub) Workflows() *workflow.Engine { return h.workflows }

// Events returns the event bus shared by every component.
func (h *Hub) Events() *event.Bus { return h.events }

// Workers returns the workers that started and were registered.
func (h *Hub) Workers() []worker.Info { return h.coord.Workers() }

// Summary describes the hub for status displays.
type Summary struct {
	Running     bool               `json:"running"`
	Coordinator coordinator.Status `json:"coordinator"`
	Bus         mailbox.Stats      `json:"bus"`
	Templates   int                `json:"templates"`
	Rules       int                `json:"rules"`
	Thresholds  int                `json:"thresholds"`
	Workflows   int                `json:"workflows"`
	Executions  int                `json:"running_executions"`
	Events      map[string]uint64  `json:"events"`
}

// Summary returns a point-in-time snapshot of every component.
func (h *Hub) Summary() Summary {
	return Summary{
		Running:     h.Running(),
		Coordinator: h.coord.Status(),
		Bus:         h.mailbox.Stats(),
		Templates:   len(h.sched.List()),
		Rules:       len(h.rules.Rules()),
		Thresholds:  len(h.thresholds.Thresholds()),
		Workflows:   len(h.workflows.Definitions()),
		Executions:  h.workflows.Running(),
		Events:      h.events.Published(),
	}
}

func (h *Hub) load() map[string]scaling.Load {
	return scaling.LoadFrom(h.coord.Tasks(), h.coord.Workers())
}

func describeWorkers(ws []worker.Worker) string {
	ids := make([]string, 0, len(ws))
	for _, w := range ws {
		ids = append(ids, w.ID())
	}
	return strings.Join(ids, ",")
}
