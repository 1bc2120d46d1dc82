package event

import (
	"time"

	"github.com/Iron-Ham/conductor/internal/task"
)

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.finished", "workflow.completed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type names.
const (
	TypeWorkerRegistered   = "worker.registered"
	TypeWorkerDeregistered = "worker.deregistered"

	TypeTaskSubmitted  = "task.submitted"
	TypeTaskDispatched = "task.dispatched"
	TypeTaskRetrying   = "task.retrying"
	TypeTaskFinished   = "task.finished"

	TypeScheduleFired = "schedule.fired"

	TypeRuleFired      = "rule.fired"
	TypeRuleSuppressed = "rule.suppressed"

	TypeThresholdBreached = "threshold.breached"

	TypeWorkflowStarted     = "workflow.started"
	TypeWorkflowStepChanged = "workflow.step_changed"
	TypeWorkflowFinished    = "workflow.finished"

	TypeMessageFailed  = "bus.delivery_failed"
	TypeHandoffExpired = "bus.handoff_expired"

	TypeScalingAdvised = "scaling.advised"
)

// -----------------------------------------------------------------------------
// Worker Events
// -----------------------------------------------------------------------------

// WorkerRegisteredEvent is emitted when a worker joins or re-joins the registry.
type WorkerRegisteredEvent struct {
	baseEvent
	WorkerID     string
	WorkerType   string
	Capabilities []string
}

// NewWorkerRegisteredEvent creates a WorkerRegisteredEvent.
func NewWorkerRegisteredEvent(workerID, workerType string, capabilities []string) WorkerRegisteredEvent {
	return WorkerRegisteredEvent{
		baseEvent:    newBaseEvent(TypeWorkerRegistered),
		WorkerID:     workerID,
		WorkerType:   workerType,
		Capabilities: capabilities,
	}
}

// WorkerDeregisteredEvent is emitted when a worker is soft-deregistered.
type WorkerDeregisteredEvent struct {
	baseEvent
	WorkerID string
}

// NewWorkerDeregisteredEvent creates a WorkerDeregisteredEvent.
func NewWorkerDeregisteredEvent(workerID string) WorkerDeregisteredEvent {
	return WorkerDeregisteredEvent{
		baseEvent: newBaseEvent(TypeWorkerDeregistered),
		WorkerID:  workerID,
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskSubmittedEvent is emitted when a task is accepted into the queue.
type TaskSubmittedEvent struct {
	baseEvent
	Task task.Task
}

// NewTaskSubmittedEvent creates a TaskSubmittedEvent.
func NewTaskSubmittedEvent(t task.Task) TaskSubmittedEvent {
	return TaskSubmittedEvent{baseEvent: newBaseEvent(TypeTaskSubmitted), Task: t}
}

// TaskDispatchedEvent is emitted when a task is handed to a worker.
type TaskDispatchedEvent struct {
	baseEvent
	Task     task.Task
	WorkerID string
}

// NewTaskDispatchedEvent creates a TaskDispatchedEvent.
func NewTaskDispatchedEvent(t task.Task, workerID string) TaskDispatchedEvent {
	return TaskDispatchedEvent{baseEvent: newBaseEvent(TypeTaskDispatched), Task: t, WorkerID: workerID}
}

// TaskRetryingEvent is emitted when a failed attempt is scheduled for retry.
type TaskRetryingEvent struct {
	baseEvent
	Task  task.Task
	Error string
	Delay time.Duration
}

// NewTaskRetryingEvent creates a TaskRetryingEvent.
func NewTaskRetryingEvent(t task.Task, errMsg string, delay time.Duration) TaskRetryingEvent {
	return TaskRetryingEvent{baseEvent: newBaseEvent(TypeTaskRetrying), Task: t, Error: errMsg, Delay: delay}
}

// TaskFinishedEvent is emitted once per task when it reaches a terminal status.
// Task carries the final snapshot including Status, Output and LastError.
type TaskFinishedEvent struct {
	baseEvent
	Task task.Task
}

// NewTaskFinishedEvent creates a TaskFinishedEvent.
func NewTaskFinishedEvent(t task.Task) TaskFinishedEvent {
	return TaskFinishedEvent{baseEvent: newBaseEvent(TypeTaskFinished), Task: t}
}

// Succeeded reports whether the task finished successfully.
func (e TaskFinishedEvent) Succeeded() bool {
	return e.Task.Status == task.StatusSucceeded
}

// -----------------------------------------------------------------------------
// Trigger Events
// -----------------------------------------------------------------------------

// ScheduleFiredEvent is emitted when a recurring template fires.
type ScheduleFiredEvent struct {
	baseEvent
	TemplateID string
	TaskID     string // empty when submission failed
	Error      string
	NextRun    time.Time
}

// NewScheduleFiredEvent creates a ScheduleFiredEvent.
func NewScheduleFiredEvent(templateID, taskID, errMsg string, nextRun time.Time) ScheduleFiredEvent {
	return ScheduleFiredEvent{
		baseEvent:  newBaseEvent(TypeScheduleFired),
		TemplateID: templateID,
		TaskID:     taskID,
		Error:      errMsg,
		NextRun:    nextRun,
	}
}

// RuleFiredEvent is emitted when a rule matches an event and submits its actions.
type RuleFiredEvent struct {
	baseEvent
	RuleID  string
	EventID string
	TaskIDs []string
}

// NewRuleFiredEvent creates a RuleFiredEvent.
func NewRuleFiredEvent(ruleID, eventID string, taskIDs []string) RuleFiredEvent {
	return RuleFiredEvent{
		baseEvent: newBaseEvent(TypeRuleFired),
		RuleID:    ruleID,
		EventID:   eventID,
		TaskIDs:   taskIDs,
	}
}

// RuleSuppressedEvent is emitted when a matching rule is inside its cooldown.
type RuleSuppressedEvent struct {
	baseEvent
	RuleID   string
	EventID  string
	DedupKey string
}

// NewRuleSuppressedEvent creates a RuleSuppressedEvent.
func NewRuleSuppressedEvent(ruleID, eventID, dedupKey string) RuleSuppressedEvent {
	return RuleSuppressedEvent{
		baseEvent: newBaseEvent(TypeRuleSuppressed),
		RuleID:    ruleID,
		EventID:   eventID,
		DedupKey:  dedupKey,
	}
}

// ThresholdBreachedEvent is emitted when a rolling average crosses its boundary.
type ThresholdBreachedEvent struct {
	baseEvent
	ThresholdID string
	Channel     string
	Metric      string
	Mean        float64
	Boundary    float64
	TaskID      string
}

// NewThresholdBreachedEvent creates a ThresholdBreachedEvent.
func NewThresholdBreachedEvent(thresholdID, channel, metric string, mean, boundary float64, taskID string) ThresholdBreachedEvent {
	return ThresholdBreachedEvent{
		baseEvent:   newBaseEvent(TypeThresholdBreached),
		ThresholdID: thresholdID,
		Channel:     channel,
		Metric:      metric,
		Mean:        mean,
		Boundary:    boundary,
		TaskID:      taskID,
	}
}

// -----------------------------------------------------------------------------
// Workflow Events
// -----------------------------------------------------------------------------

// WorkflowStartedEvent is emitted when an execution begins.
type WorkflowStartedEvent struct {
	baseEvent
	ExecutionID  string
	DefinitionID string
	TenantID     string
}

// NewWorkflowStartedEvent creates a WorkflowStartedEvent.
func NewWorkflowStartedEvent(executionID, definitionID, tenantID string) WorkflowStartedEvent {
	return WorkflowStartedEvent{
		baseEvent:    newBaseEvent(TypeWorkflowStarted),
		ExecutionID:  executionID,
		DefinitionID: definitionID,
		TenantID:     tenantID,
	}
}

// WorkflowStepChangedEvent is emitted on every step status transition.
type WorkflowStepChangedEvent struct {
	baseEvent
	ExecutionID string
	StepIndex   int
	StepName    string
	Status      string
	TaskID      string
}

// NewWorkflowStepChangedEvent creates a WorkflowStepChangedEvent.
func NewWorkflowStepChangedEvent(executionID string, stepIndex int, stepName, status, taskID string) WorkflowStepChangedEvent {
	return WorkflowStepChangedEvent{
		baseEvent:   newBaseEvent(TypeWorkflowStepChanged),
		ExecutionID: executionID,
		StepIndex:   stepIndex,
		StepName:    stepName,
		Status:      status,
		TaskID:      taskID,
	}
}

// WorkflowFinishedEvent is emitted when an execution reaches a terminal status.
type WorkflowFinishedEvent struct {
	baseEvent
	ExecutionID  string
	DefinitionID string
	Status       string
	Error        string
}

// NewWorkflowFinishedEvent creates a WorkflowFinishedEvent.
func NewWorkflowFinishedEvent(executionID, definitionID, status, errMsg string) WorkflowFinishedEvent {
	return WorkflowFinishedEvent{
		baseEvent:    newBaseEvent(TypeWorkflowFinished),
		ExecutionID:  executionID,
		DefinitionID: definitionID,
		Status:       status,
		Error:        errMsg,
	}
}

// -----------------------------------------------------------------------------
// Communication Bus Events
// -----------------------------------------------------------------------------

// MessageFailedEvent is emitted when a message cannot be delivered.
type MessageFailedEvent struct {
	baseEvent
	MessageID string
	From      string
	To        string
	Kind      string
	Reason    string
}

// NewMessageFailedEvent creates a MessageFailedEvent.
func NewMessageFailedEvent(messageID, from, to, kind, reason string) MessageFailedEvent {
	return MessageFailedEvent{
		baseEvent: newBaseEvent(TypeMessageFailed),
		MessageID: messageID,
		From:      from,
		To:        to,
		Kind:      kind,
		Reason:    reason,
	}
}

// HandoffExpiredEvent is emitted when an unaccepted handoff is discarded.
type HandoffExpiredEvent struct {
	baseEvent
	HandoffID string
	TaskID    string
	From      string
	To        string
}

// NewHandoffExpiredEvent creates a HandoffExpiredEvent.
func NewHandoffExpiredEvent(handoffID, taskID, from, to string) HandoffExpiredEvent {
	return HandoffExpiredEvent{
		baseEvent: newBaseEvent(TypeHandoffExpired),
		HandoffID: handoffID,
		TaskID:    taskID,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Capacity Events
// -----------------------------------------------------------------------------

// ScalingAdvisedEvent is emitted when the capacity advisor recommends adding
// or removing workers of one type.
type ScalingAdvisedEvent struct {
	baseEvent
	WorkerType string
	Action     string
	Delta      int
	Workers    int
	Reason     string
}

// NewScalingAdvisedEvent creates a ScalingAdvisedEvent.
func NewScalingAdvisedEvent(workerType, action string, delta, workers int, reason string) ScalingAdvisedEvent {
	return ScalingAdvisedEvent{
		baseEvent:  newBaseEvent(TypeScalingAdvised),
		WorkerType: workerType,
		Action:     action,
		Delta:      delta,
		Workers:    workers,
		Reason:     reason,
	}
}
