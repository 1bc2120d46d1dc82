package workflow

import (
	"context"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/conductor/internal/archive"
	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/event"
	"github.com/Iron-Ham/conductor/internal/logging"
	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
)

const archiveTimeout = 10 * time.Second

// Submitter accepts tasks. *coordinator.Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, t task.Task) (string, error)
}

// canceller is implemented by submitters that can withdraw a queued task.
type canceller interface {
	Cancel(id string) (task.Task, error)
}

// Engine owns workflow definitions and executions.
type Engine struct {
	submitter Submitter
	bus       *event.Bus
	logger    *logging.Logger
	sink      archive.Sink
	now       func() time.Time
	subID     string

	mu          sync.Mutex
	definitions map[string]*Definition
	defOrder    []string
	executions  map[string]*Execution
	execOrder   []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithArchive writes terminal executions to sink.
func WithArchive(sink archive.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine that submits step tasks to sub and observes their
// completion on bus. Call Close to unsubscribe.
func New(sub Submitter, bus *event.Bus, opts ...Option) *Engine {
	e := &Engine{
		submitter:   sub,
		bus:         bus,
		logger:      logging.NopLogger(),
		sink:        archive.Nop{},
		now:         time.Now,
		definitions: make(map[string]*Definition),
		executions:  make(map[string]*Execution),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("workflow")
	e.subID = bus.Subscribe(event.TypeTaskFinished, func(ev event.Event) {
		if fin, ok := ev.(event.TaskFinishedEvent); ok {
			e.HandleTaskFinished(fin.Task)
		}
	})
	return e
}

// Close stops observing task completions.
func (e *Engine) Close() {
	if e.subID != "" {
		e.bus.Unsubscribe(e.subID)
	}
}

// Define validates and stores a definition.
func (e *Engine) Define(def Definition) (string, error) {
	if def.Name == "" {
		return "", errors.NewValidationError("workflow name is required").WithField("name")
	}
	if len(def.Steps) == 0 {
		return "", errors.NewValidationError("at least one step is required").WithField("steps")
	}
	def = def.clone()
	for i := range def.Steps {
		def.Steps[i].Priority = def.Steps[i].Priority.OrDefault()
	}
	for i, s := range def.Steps {
		field := "steps[" + strconv.Itoa(i) + "]"
		if s.Name == "" {
			return "", errors.NewValidationError("step name is required").WithField(field + ".name")
		}
		if _, err := worker.ParseType(s.WorkerType); err != nil {
			return "", errors.NewValidationError("unknown worker type").
				WithField(field + ".worker_type").
				WithValue(s.WorkerType).
				WithCause(errors.ErrUnknownWorkerType)
		}
		if !s.Priority.Valid() {
			return "", errors.NewValidationError("invalid priority").WithField(field + ".priority").WithValue(int(s.Priority))
		}
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	def.CreatedAt = e.now()

	e.mu.Lock()
	if _, exists := e.definitions[def.ID]; exists {
		e.mu.Unlock()
		return "", errors.NewAlreadyExistsError("workflow", def.ID)
	}
	e.definitions[def.ID] = &def
	e.defOrder = append(e.defOrder, def.ID)
	e.mu.Unlock()

	e.logger.Info("workflow defined", "workflow_id", def.ID, "name", def.Name, "steps", len(def.Steps))
	return def.ID, nil
}

// Definition returns a copy of one definition.
func (e *Engine) Definition(id string) (Definition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.definitions[id]
	if !ok {
		return Definition{}, false
	}
	return d.clone(), true
}

// Definitions returns every definition in the order they were defined.
func (e *Engine) Definitions() []Definition {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Definition, 0, len(e.defOrder))
	for _, id := range e.defOrder {
		out = append(out, e.definitions[id].clone())
	}
	return out
}

// Execute starts a new execution of a definition with input as the initial
// context and submits its first step.
func (e *Engine) Execute(ctx context.Context, definitionID, tenantID string, input map[string]any) (string, error) {
	if tenantID == "" {
		return "", errors.NewValidationError("tenant id is required").WithField("tenant_id")
	}

	e.mu.Lock()
	def, ok := e.definitions[definitionID]
	if !ok {
		e.mu.Unlock()
		return "", errors.NewNotFoundError("workflow", definitionID).WithCause(errors.ErrWorkflowNotFound)
	}
	exec := &Execution{
		ID:           uuid.NewString(),
		DefinitionID: def.ID,
		TenantID:     tenantID,
		Status:       StatusRunning,
		Steps:        make([]StepState, len(def.Steps)),
		Context:      maps.Clone(input),
		StartedAt:    e.now(),
	}
	if exec.Context == nil {
		exec.Context = make(map[string]any)
	}
	for i, s := range def.Steps {
		exec.Steps[i] = StepState{Name: s.Name, Status: StepPending}
	}
	e.executions[exec.ID] = exec
	e.execOrder = append(e.execOrder, exec.ID)
	e.mu.Unlock()

	e.logger.Info("workflow started",
		"execution_id", exec.ID,
		"workflow_id", def.ID,
		"tenant_id", tenantID)
	e.bus.Publish(event.NewWorkflowStartedEvent(exec.ID, def.ID, tenantID))

	if err := e.startStep(ctx, exec.ID, 0); err != nil {
		return exec.ID, err
	}
	return exec.ID, nil
}

// startStep submits step idx. The step is marked running before the task is
// submitted so a fast completion finds it in the expected state. A
// submission error fails the execution and is returned.
func (e *Engine) startStep(ctx context.Context, execID string, idx int) error {
	e.mu.Lock()
	exec, ok := e.executions[execID]
	if !ok || exec.Status != StatusRunning {
		e.mu.Unlock()
		return nil
	}
	def := e.definitions[exec.DefinitionID]
	step := def.Steps[idx]
	exec.CurrentStep = idx
	exec.Steps[idx].Status = StepRunning
	exec.Steps[idx].StartedAt = e.now()

	payload := mapInputs(step.Inputs, exec.Context)
	maps.Copy(payload, step.Params)
	if step.Action != "" {
		payload["action"] = step.Action
	}
	t := task.Task{
		WorkerType: step.WorkerType,
		TenantID:   exec.TenantID,
		Payload:    payload,
		Priority:   step.Priority,
		Origin:     task.OriginWorkflow,
		Labels: map[string]string{
			LabelExecutionID: exec.ID,
			LabelStep:        strconv.Itoa(idx),
		},
	}
	if step.Action != "" {
		t.Labels[task.LabelAction] = step.Action
	}
	e.mu.Unlock()

	e.bus.Publish(event.NewWorkflowStepChangedEvent(execID, idx, step.Name, string(StepRunning), ""))

	taskID, err := e.submitter.Submit(ctx, t)
	if err != nil {
		e.logger.Error("workflow step submission failed",
			"execution_id", execID,
			"step", idx,
			"step_name", step.Name,
			"worker_type", step.WorkerType,
			"error", err)
		werr := errors.NewWorkflowError("submit step", err).
			WithExecutionID(execID).
			WithDefinitionID(def.ID).
			WithStep(idx, step.Name)
		e.failStep(execID, idx, "", werr.Error())
		return werr
	}

	e.mu.Lock()
	if exec.Steps[idx].TaskID == "" {
		exec.Steps[idx].TaskID = taskID
	}
	withdrawn := exec.Status == StatusCancelled && exec.CurrentStep == idx
	e.mu.Unlock()

	// Cancel ran while the task was being submitted and had no id to withdraw.
	if withdrawn {
		if c, ok := e.submitter.(canceller); ok {
			if _, err := c.Cancel(taskID); err != nil {
				e.logger.Debug("step task not withdrawn", "execution_id", execID, "task_id", taskID, "error", err)
			}
		}
		return nil
	}

	e.logger.Debug("workflow step submitted", "execution_id", execID, "step", idx, "task_id", taskID)
	return nil
}

// HandleTaskFinished advances the execution a finished task belongs to.
// Tasks without workflow labels, and outcomes for executions that are no
// longer running, are ignored.
func (e *Engine) HandleTaskFinished(t task.Task) {
	execID := t.Label(LabelExecutionID)
	if execID == "" {
		return
	}
	idx, err := strconv.Atoi(t.Label(LabelStep))
	if err != nil {
		e.logger.Warn("task has invalid workflow step label", "task_id", t.ID, "execution_id", execID, "step", t.Label(LabelStep))
		return
	}

	e.mu.Lock()
	exec, ok := e.executions[execID]
	if !ok || exec.Status != StatusRunning || idx != exec.CurrentStep || exec.Steps[idx].Status != StepRunning {
		e.mu.Unlock()
		e.logger.Debug("ignoring step outcome", "execution_id", execID, "step", idx, "task_id", t.ID)
		return
	}
	exec.Steps[idx].TaskID = t.ID
	e.mu.Unlock()

	if t.Status != task.StatusSucceeded {
		msg := t.LastError
		if msg == "" {
			msg = "task " + string(t.Status)
		}
		e.failStep(execID, idx, t.ID, msg)
		return
	}
	e.completeStep(execID, idx, t)
}

func (e *Engine) completeStep(execID string, idx int, t task.Task) {
	e.mu.Lock()
	exec := e.executions[execID]
	def := e.definitions[exec.DefinitionID]
	step := def.Steps[idx]
	exec.Steps[idx].Status = StepSucceeded
	exec.Steps[idx].FinishedAt = e.now()
	mergeOutputs(step.Outputs, t.Output, exec.Context)

	last := idx == len(def.Steps)-1
	var done Execution
	if last {
		exec.Status = StatusCompleted
		exec.FinishedAt = e.now()
		done = exec.clone()
	}
	e.mu.Unlock()

	e.bus.Publish(event.NewWorkflowStepChangedEvent(execID, idx, step.Name, string(StepSucceeded), t.ID))
	if last {
		e.finished(done)
		return
	}
	_ = e.startStep(context.Background(), execID, idx+1)
}

func (e *Engine) failStep(execID string, idx int, taskID, msg string) {
	e.mu.Lock()
	exec := e.executions[execID]
	if exec.Status != StatusRunning {
		e.mu.Unlock()
		return
	}
	stepName := exec.Steps[idx].Name
	exec.Steps[idx].Status = StepFailed
	exec.Steps[idx].FinishedAt = e.now()
	exec.Steps[idx].Error = msg
	if taskID != "" {
		exec.Steps[idx].TaskID = taskID
	}
	exec.Status = StatusFailed
	exec.Error = "step " + strconv.Itoa(idx) + " (" + stepName + ") failed: " + msg
	exec.FinishedAt = e.now()
	done := exec.clone()
	e.mu.Unlock()

	e.bus.Publish(event.NewWorkflowStepChangedEvent(execID, idx, stepName, string(StepFailed), taskID))
	e.finished(done)
}

// Cancel stops a running execution. The current step's task is withdrawn
// if it has not been dispatched yet; any later outcome is ignored.
func (e *Engine) Cancel(executionID string) (Execution, error) {
	e.mu.Lock()
	exec, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return Execution{}, errors.NewNotFoundError("execution", executionID).WithCause(errors.ErrExecutionNotFound)
	}
	if exec.Status != StatusRunning {
		e.mu.Unlock()
		return Execution{}, errors.Wrapf(errors.ErrExecutionNotRunning, "cancel execution %s (%s)", executionID, exec.Status)
	}
	cur := exec.CurrentStep
	taskID := exec.Steps[cur].TaskID
	if exec.Steps[cur].Status == StepRunning {
		exec.Steps[cur].Status = StepCancelled
		exec.Steps[cur].FinishedAt = e.now()
	}
	exec.Status = StatusCancelled
	exec.FinishedAt = e.now()
	done := exec.clone()
	e.mu.Unlock()

	if c, ok := e.submitter.(canceller); ok && taskID != "" {
		if _, err := c.Cancel(taskID); err != nil {
			e.logger.Debug("step task not withdrawn", "execution_id", executionID, "task_id", taskID, "error", err)
		}
	}

	e.finished(done)
	return done, nil
}

// Status returns a snapshot of one execution.
func (e *Engine) Status(executionID string) (Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, ok := e.executions[executionID]
	if !ok {
		return Execution{}, errors.NewNotFoundError("execution", executionID).WithCause(errors.ErrExecutionNotFound)
	}
	return exec.clone(), nil
}

// List returns the executions matching f in start order.
func (e *Engine) List(f Filter) []Execution {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Execution
	for _, id := range e.execOrder {
		if exec := e.executions[id]; f.match(exec) {
			out = append(out, exec.clone())
		}
	}
	return out
}

// Running returns the number of running executions.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, exec := range e.executions {
		if exec.Status == StatusRunning {
			n++
		}
	}
	return n
}

func (e *Engine) finished(exec Execution) {
	attrs := []any{
		"execution_id", exec.ID,
		"workflow_id", exec.DefinitionID,
		"tenant_id", exec.TenantID,
		"status", string(exec.Status),
	}
	if exec.Status == StatusFailed {
		e.logger.Error("workflow failed", append(attrs, "error", exec.Error)...)
	} else {
		e.logger.Info("workflow finished", attrs...)
	}
	e.bus.Publish(event.NewWorkflowFinishedEvent(exec.ID, exec.DefinitionID, string(exec.Status), exec.Error))

	rec, err := archive.NewRecord(archive.KindExecution, exec.ID, exec.TenantID, string(exec.Status), exec.FinishedAt, exec)
	if err != nil {
		e.logger.Warn("encode execution for archive", "execution_id", exec.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := e.sink.Write(ctx, rec); err != nil {
		e.logger.Warn("archive execution", "execution_id", exec.ID, "error", err)
	}
}
