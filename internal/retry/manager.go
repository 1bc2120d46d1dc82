// Package retry tracks attempt counts and failure history per task.
//
// The coordinator consults a [Manager] after every failed attempt to decide
// whether a task goes back on the queue after the fixed [Policy] delay or is
// terminally failed. Each attempt's error is kept so the final failure can
// report both the last error and the full attempt history.
package retry

import (
	"slices"
	"sync"
	"time"
)

// Policy is a fixed-delay retry policy.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the wait before a failed task is re-enqueued.
	Delay time.Duration
}

// Normalize returns p with a minimum of one attempt and a non-negative delay.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// TaskState tracks attempts for a task.
type TaskState struct {
	TaskID      string   `json:"task_id"`
	Attempts    int      `json:"attempts"`
	MaxAttempts int      `json:"max_attempts"`
	LastError   string   `json:"last_error,omitempty"`
	Errors      []string `json:"errors,omitempty"` // error per failed attempt, oldest first
	Succeeded   bool     `json:"succeeded,omitempty"`
}

// Exhausted reports whether no attempts remain.
func (s TaskState) Exhausted() bool {
	return !s.Succeeded && s.Attempts >= s.MaxAttempts
}

// Manager manages retry state for tasks.
// It is thread-safe and can be used concurrently.
type Manager struct {
	mu     sync.RWMutex
	states map[string]*TaskState
}

// NewManager creates a new retry manager.
func NewManager() *Manager {
	return &Manager{
		states: make(map[string]*TaskState),
	}
}

// Track returns the state for a task, creating it with maxAttempts if it
// doesn't exist yet.
func (m *Manager) Track(taskID string, maxAttempts int) TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[taskID]
	if !exists {
		state = &TaskState{
			TaskID:      taskID,
			MaxAttempts: maxAttempts,
		}
		m.states[taskID] = state
	}
	return cloneState(state)
}

// State returns the retry state for a task.
func (m *Manager) State(taskID string) (TaskState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[taskID]
	if !ok {
		return TaskState{}, false
	}
	return cloneState(state), true
}

// ShouldRetry returns whether a task has attempts left and has not succeeded.
func (m *Manager) ShouldRetry(taskID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[taskID]
	if !exists {
		return false
	}
	return state.Attempts < state.MaxAttempts && !state.Succeeded
}

// RecordSuccess counts a successful attempt. No further retries are allowed.
func (m *Manager) RecordSuccess(taskID string) TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[taskID]
	if !exists {
		return TaskState{}
	}
	state.Attempts++
	state.Succeeded = true
	return cloneState(state)
}

// RecordFailure counts a failed attempt and keeps its error. The returned
// state tells the caller whether attempts remain.
func (m *Manager) RecordFailure(taskID, errMsg string) TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[taskID]
	if !exists {
		return TaskState{}
	}
	state.Attempts++
	state.LastError = errMsg
	state.Errors = append(state.Errors, errMsg)
	return cloneState(state)
}

// FailedTasks returns the IDs of all tasks that have exhausted their
// attempts without succeeding.
func (m *Manager) FailedTasks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var failed []string
	for taskID, state := range m.states {
		if state.Exhausted() {
			failed = append(failed, taskID)
		}
	}
	slices.Sort(failed)
	return failed
}

// RetryingTasks returns the IDs of tasks that failed at least once and are
// still eligible for another attempt.
func (m *Manager) RetryingTasks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var retrying []string
	for taskID, state := range m.states {
		if !state.Succeeded && state.Attempts > 0 && state.Attempts < state.MaxAttempts {
			retrying = append(retrying, taskID)
		}
	}
	slices.Sort(retrying)
	return retrying
}

// Forget clears the retry state for a task.
func (m *Manager) Forget(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, taskID)
}

// Len returns the number of tracked tasks.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

func cloneState(s *TaskState) TaskState {
	c := *s
	c.Errors = slices.Clone(s.Errors)
	return c
}
