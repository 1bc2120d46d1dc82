package workflow

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/conductor/internal/task"
)

// Labels that correlate a task with its execution step.
const (
	LabelExecutionID = "workflow.execution_id"
	LabelStep        = "workflow.step"
)

// Step is one unit of a Definition.
type Step struct {
	Name       string `json:"name"`
	WorkerType string `json:"worker_type"`
	Action     string `json:"action,omitempty"`
	// Inputs lists the context keys passed to the step, each either "key" or
	// "src:dst". An empty list passes the whole context.
	Inputs []string `json:"inputs,omitempty"`
	// Outputs lists the result fields merged into the context. An empty list
	// merges every field.
	Outputs  []string       `json:"outputs,omitempty"`
	Priority task.Priority  `json:"priority"`
	Params   map[string]any `json:"params,omitempty"`
}

// Definition is a named, ordered list of steps.
type Definition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Steps       []Step    `json:"steps"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d Definition) clone() Definition {
	steps := make([]Step, len(d.Steps))
	for i, s := range d.Steps {
		s.Inputs = slices.Clone(s.Inputs)
		s.Outputs = slices.Clone(s.Outputs)
		s.Params = maps.Clone(s.Params)
		steps[i] = s
	}
	d.Steps = steps
	return d
}

// Status is the overall state of an execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the execution can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the state of one step within an execution.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// StepState tracks one step of an execution.
type StepState struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	TaskID     string     `json:"task_id,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitzero"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
	Error      string     `json:"error,omitempty"`
}

// Execution is one run of a Definition.
type Execution struct {
	ID           string         `json:"id"`
	DefinitionID string         `json:"definition_id"`
	TenantID     string         `json:"tenant_id"`
	Status       Status         `json:"status"`
	CurrentStep  int            `json:"current_step"`
	Steps        []StepState    `json:"steps"`
	Context      map[string]any `json:"context"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at,omitzero"`
}

func (e *Execution) clone() Execution {
	c := *e
	c.Steps = slices.Clone(e.Steps)
	c.Context = maps.Clone(e.Context)
	return c
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	DefinitionID string
	TenantID     string
	Status       Status
}

func (f Filter) match(e *Execution) bool {
	return (f.DefinitionID == "" || e.DefinitionID == f.DefinitionID) &&
		(f.TenantID == "" || e.TenantID == f.TenantID) &&
		(f.Status == "" || e.Status == f.Status)
}

// mapInputs applies a step's input mapping to the execution context.
// Missing source keys are skipped.
func mapInputs(inputs []string, ctx map[string]any) map[string]any {
	if len(inputs) == 0 {
		return maps.Clone(ctx)
	}
	out := make(map[string]any, len(inputs))
	for _, in := range inputs {
		src, dst, found := strings.Cut(in, ":")
		if !found {
			dst = src
		}
		if v, ok := ctx[src]; ok {
			out[dst] = v
		}
	}
	return out
}

// mergeOutputs copies the declared result fields, or all of them, into ctx.
func mergeOutputs(outputs []string, result, ctx map[string]any) {
	if len(outputs) == 0 {
		maps.Copy(ctx, result)
		return
	}
	for _, key := range outputs {
		if v, ok := result[key]; ok {
			ctx[key] = v
		}
	}
}
