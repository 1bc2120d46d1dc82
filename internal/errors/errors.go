// Package errors provides centralized error definitions and error handling utilities
// for the Conductor codebase. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors follow the failure taxonomy of the orchestration core:
//   - RoutingError: no active worker can accept a task (rejected at submission)
//   - WorkerError: a worker reported a failure, panicked, or timed out
//   - WorkflowError: a workflow step failed or could not be submitted
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewRoutingError("no worker registered", errors.ErrNoWorkerForType).
//	    WithWorkerType("strategy").WithTenant("org1")
//
//	// Semantic error
//	err := errors.NewNotFoundError("execution", "abc123")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrNoWorkerForType) { ... }
//
//	var routingErr *errors.RoutingError
//	if errors.As(err, &routingErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to return through the HTTP surface
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Routing and dispatch sentinel errors
var (
	// ErrNoWorkerForType indicates that no active worker is registered for a worker type.
	ErrNoWorkerForType = New("no worker registered for type")
	// ErrUnknownWorkerType indicates a worker type outside the fixed enumeration.
	ErrUnknownWorkerType = New("unknown worker type")
	// ErrWorkerNotFound indicates that a worker id is not registered.
	ErrWorkerNotFound = New("worker not found")
	// ErrWorkerPanic indicates that a worker panicked while executing a task.
	ErrWorkerPanic = New("worker panicked")
	// ErrTaskNotFound indicates that a task could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrTaskFailed indicates that a task execution failed.
	ErrTaskFailed = New("task failed")
	// ErrTaskTerminal indicates an operation on a task that already finished.
	ErrTaskTerminal = New("task already finished")
	// ErrTaskRunning indicates an operation that requires a task not yet dispatched.
	ErrTaskRunning = New("task is running")
	// ErrCoordinatorStopped indicates the coordinator is not accepting work.
	ErrCoordinatorStopped = New("coordinator stopped")
)

// Communication bus sentinel errors
var (
	// ErrRecipientNotRegistered indicates a message recipient has no handler.
	ErrRecipientNotRegistered = New("recipient not registered")
	// ErrHandoffNotFound indicates that a handoff expired or never existed.
	ErrHandoffNotFound = New("handoff not found")
	// ErrShareNotFound indicates that shared data expired or never existed.
	ErrShareNotFound = New("shared data not found")
)

// Workflow sentinel errors
var (
	// ErrWorkflowNotFound indicates that a workflow definition could not be found.
	ErrWorkflowNotFound = New("workflow not found")
	// ErrExecutionNotFound indicates that a workflow execution could not be found.
	ErrExecutionNotFound = New("execution not found")
	// ErrExecutionNotRunning indicates an operation that requires a running execution.
	ErrExecutionNotRunning = New("execution is not running")
	// ErrStepFailed indicates that a workflow step failed.
	ErrStepFailed = New("workflow step failed")
)

// Trigger sentinel errors
var (
	// ErrTemplateNotFound indicates that a scheduled template could not be found.
	ErrTemplateNotFound = New("template not found")
	// ErrRuleNotFound indicates that an event rule could not be found.
	ErrRuleNotFound = New("rule not found")
	// ErrThresholdNotFound indicates that a metric threshold could not be found.
	ErrThresholdNotFound = New("threshold not found")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrOperationFailed indicates a general operation failure.
	ErrOperationFailed = New("operation failed")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ConductorError is the base interface for all Conductor errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type ConductorError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to API clients.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// RoutingError represents a task that cannot be routed to any worker.
// Routing errors are returned synchronously from Submit and are never
// silently dropped.
//
// Example:
//
//	err := errors.NewRoutingError("cannot route task", errors.ErrNoWorkerForType)
//	err = err.WithWorkerType("strategy").WithTenant("org1")
//	fmt.Println(err) // "routing error [type=strategy, tenant=org1]: cannot route task: no worker registered for type"
type RoutingError struct {
	baseError
	TaskID     string
	WorkerType string
	TenantID   string
}

// NewRoutingError creates a new RoutingError.
func NewRoutingError(message string, cause error) *RoutingError {
	return &RoutingError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *RoutingError) WithTaskID(id string) *RoutingError {
	e.TaskID = id
	return e
}

// WithWorkerType adds the requested worker type to the error context.
func (e *RoutingError) WithWorkerType(workerType string) *RoutingError {
	e.WorkerType = workerType
	return e
}

// WithTenant adds the tenant ID to the error context.
func (e *RoutingError) WithTenant(tenantID string) *RoutingError {
	e.TenantID = tenantID
	return e
}

// Error returns the formatted error message.
func (e *RoutingError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.WorkerType != "" {
		parts = append(parts, fmt.Sprintf("type=%s", e.WorkerType))
	}
	if e.TenantID != "" {
		parts = append(parts, fmt.Sprintf("tenant=%s", e.TenantID))
	}
	return formatWithContext("routing error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *RoutingError) Is(target error) bool {
	if _, ok := target.(*RoutingError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// WorkerError represents a failed task execution inside a worker. A reported
// failure, a panic and a timeout all produce a WorkerError, so the retry path
// treats them identically.
//
// Example:
//
//	err := errors.NewWorkerError("execute failed", cause).
//	    WithTaskID("t-1").WithWorker("w-1", "analytics").WithAttempt(2)
type WorkerError struct {
	baseError
	TaskID     string
	WorkerID   string
	WorkerType string
	Attempt    int
}

// NewWorkerError creates a new WorkerError. Worker errors are retryable by
// default; the coordinator decides whether attempts remain.
func NewWorkerError(message string, cause error) *WorkerError {
	return &WorkerError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *WorkerError) WithTaskID(id string) *WorkerError {
	e.TaskID = id
	return e
}

// WithWorker adds the executing worker to the error context.
func (e *WorkerError) WithWorker(id, workerType string) *WorkerError {
	e.WorkerID = id
	e.WorkerType = workerType
	return e
}

// WithAttempt records which attempt failed.
func (e *WorkerError) WithAttempt(n int) *WorkerError {
	e.Attempt = n
	return e
}

// WithSeverity sets the error severity.
func (e *WorkerError) WithSeverity(s Severity) *WorkerError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *WorkerError) WithRetryable(r bool) *WorkerError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *WorkerError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.WorkerID != "" {
		parts = append(parts, fmt.Sprintf("worker=%s", e.WorkerID))
	}
	if e.WorkerType != "" {
		parts = append(parts, fmt.Sprintf("type=%s", e.WorkerType))
	}
	if e.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}
	return formatWithContext("worker error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *WorkerError) Is(target error) bool {
	if _, ok := target.(*WorkerError); ok {
		return true
	}
	if errors.Is(target, ErrTaskFailed) {
		return true
	}
	return e.baseError.Is(target)
}

// WorkflowError represents errors related to workflow executions.
//
// Example:
//
//	err := errors.NewWorkflowError("step failed", errors.ErrStepFailed)
//	err = err.WithExecutionID("exec-1").WithStep(1, "draft")
type WorkflowError struct {
	baseError
	ExecutionID  string
	DefinitionID string
	StepIndex    int
	StepName     string
}

// NewWorkflowError creates a new WorkflowError.
func NewWorkflowError(message string, cause error) *WorkflowError {
	return &WorkflowError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		StepIndex: -1, // -1 indicates not set
	}
}

// WithExecutionID adds an execution ID to the error context.
func (e *WorkflowError) WithExecutionID(id string) *WorkflowError {
	e.ExecutionID = id
	return e
}

// WithDefinitionID adds a workflow definition ID to the error context.
func (e *WorkflowError) WithDefinitionID(id string) *WorkflowError {
	e.DefinitionID = id
	return e
}

// WithStep adds the step index and name to the error context.
func (e *WorkflowError) WithStep(idx int, name string) *WorkflowError {
	e.StepIndex = idx
	e.StepName = name
	return e
}

// WithSeverity sets the error severity.
func (e *WorkflowError) WithSeverity(s Severity) *WorkflowError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *WorkflowError) Error() string {
	var parts []string
	if e.ExecutionID != "" {
		parts = append(parts, fmt.Sprintf("execution=%s", e.ExecutionID))
	}
	if e.DefinitionID != "" {
		parts = append(parts, fmt.Sprintf("workflow=%s", e.DefinitionID))
	}
	if e.StepIndex >= 0 {
		parts = append(parts, fmt.Sprintf("step=%d", e.StepIndex))
	}
	if e.StepName != "" {
		parts = append(parts, fmt.Sprintf("name=%s", e.StepName))
	}
	return formatWithContext("workflow error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *WorkflowError) Is(target error) bool {
	if _, ok := target.(*WorkflowError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("execution", "abc123")
//	fmt.Println(err) // "execution 'abc123' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("tenant id is required")
//	err = err.WithField("tenant_id").WithValue("")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("executing task t-1", 30*time.Second)
//	fmt.Println(err) // "timeout error: executing task t-1 (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing ConductorError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var condErr ConductorError
	if As(err, &condErr) {
		return condErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to return to API
// clients.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var condErr ConductorError
	if As(err, &condErr) {
		return condErr.IsUserFacing()
	}
	return false
}

// IsNotFound reports whether err is a NotFoundError or wraps one of the
// not-found sentinels.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *NotFoundError
	if As(err, &notFound) {
		return true
	}
	for _, sentinel := range []error{
		ErrTaskNotFound, ErrWorkerNotFound, ErrWorkflowNotFound, ErrExecutionNotFound,
		ErrTemplateNotFound, ErrRuleNotFound, ErrThresholdNotFound,
		ErrHandoffNotFound, ErrShareNotFound,
	} {
		if Is(err, sentinel) {
			return true
		}
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ConductorError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var condErr ConductorError
	if As(err, &condErr) {
		return condErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the ConductorError interface.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
