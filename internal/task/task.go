// Package task defines the unit of work routed by the coordinator.
//
// A Task names the type of worker that should run it, the tenant it belongs
// to, and an opaque payload the core never inspects. Priority orders
// dispatch; Origin records which trigger produced it; Labels carry
// correlation data such as the owning workflow execution.
package task

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Priority orders dispatch. Higher values preempt lower ones. The zero
// value means unset and resolves to DefaultPriority.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// DefaultPriority applies wherever a priority is omitted.
const DefaultPriority = PriorityMedium

// Priorities lists every band from highest to lowest.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// String returns the lowercase band name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// OrDefault returns DefaultPriority for an unset priority and p otherwise.
func (p Priority) OrDefault() Priority {
	if p == 0 {
		return DefaultPriority
	}
	return p
}

// Valid reports whether p is one of the defined bands.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority converts a band name to a Priority. An empty string maps to
// DefaultPriority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultPriority, nil
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText encodes the priority by name. An unset priority encodes as
// DefaultPriority.
func (p Priority) MarshalText() ([]byte, error) {
	p = p.OrDefault()
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority by name.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Origin records which trigger created a task.
type Origin string

const (
	OriginManual    Origin = "manual"
	OriginScheduled Origin = "scheduled"
	OriginEvent     Origin = "event"
	OriginThreshold Origin = "threshold"
	OriginWorkflow  Origin = "workflow"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Well-known label keys.
const (
	// LabelCapability restricts dispatch to workers declaring this capability.
	LabelCapability = "capability"
	// LabelAction is the action name a trigger asked the worker to perform.
	LabelAction = "action"
)

// Task is a unit of work routed to a worker of WorkerType.
type Task struct {
	ID         string            `json:"id"`
	WorkerType string            `json:"worker_type"`
	TenantID   string            `json:"tenant_id"`
	Payload    map[string]any    `json:"payload,omitempty"`
	Priority   Priority          `json:"priority"`
	Origin     Origin            `json:"origin"`
	Labels     map[string]string `json:"labels,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Attempts   int               `json:"attempts"`

	// Coordinator-owned state.
	Status     Status         `json:"status"`
	WorkerID   string         `json:"worker_id,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitzero"`
	FinishedAt time.Time      `json:"finished_at,omitzero"`
}

// Label returns the value of a label, or "" if unset.
func (t Task) Label(key string) string {
	if t.Labels == nil {
		return ""
	}
	return t.Labels[key]
}

// Clone returns a copy whose maps can be modified without affecting t.
// Payload and Output values are copied shallowly.
func (t Task) Clone() Task {
	c := t
	c.Payload = maps.Clone(t.Payload)
	c.Labels = maps.Clone(t.Labels)
	c.Output = maps.Clone(t.Output)
	return c
}

// Duration is the wall time between start and finish of the last attempt.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Result is what a worker returns on success.
type Result struct {
	Output map[string]any `json:"output,omitempty"`
}

// String renders the task for log lines.
func (t Task) String() string {
	return fmt.Sprintf("task[%s type=%s tenant=%s priority=%s origin=%s attempts=%d]",
		t.ID, t.WorkerType, t.TenantID, t.Priority, t.Origin, t.Attempts)
}

// PayloadJSON renders the payload as compact JSON for display.
func (t Task) PayloadJSON() string {
	if len(t.Payload) == 0 {
		return "{}"
	}
	b, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Sprintf("%v", t.Payload)
	}
	return string(b)
}
