package scaling

import (
	"time"

	"github.com/Iron-Ham/conductor/internal/task"
	"github.com/Iron-Ham/conductor/internal/worker"
)

// Action represents a scaling decision action.
type Action string

const (
	// ActionScaleUp indicates more workers of the type should be added.
	ActionScaleUp Action = "scale_up"

	// ActionScaleDown indicates workers of the type could be removed.
	ActionScaleDown Action = "scale_down"

	// ActionNone indicates no scaling change is needed.
	ActionNone Action = "none"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Load is the work and capacity observed for one worker type.
type Load struct {
	// Queued counts tasks waiting for dispatch, including those waiting out
	// a retry delay.
	Queued int `json:"queued"`
	// InFlight counts tasks currently executing.
	InFlight int `json:"in_flight"`
	// Workers counts active registered workers.
	Workers int `json:"workers"`
}

// Decision is the result of evaluating the policy for one worker type.
type Decision struct {
	WorkerType string `json:"worker_type"`
	Action     Action `json:"action"`

	// Delta is the number of workers to add (positive) or remove (negative).
	// Zero when Action is ActionNone.
	Delta int `json:"delta"`

	// Reason is a human-readable explanation of the decision.
	Reason string `json:"reason"`

	Load Load      `json:"load"`
	At   time.Time `json:"at"`
}

// LoadFrom groups active tasks and workers by worker type. Types with
// neither tasks nor active workers are omitted.
func LoadFrom(tasks []task.Task, workers []worker.Info) map[string]Load {
	loads := make(map[string]Load)
	for _, t := range tasks {
		l := loads[t.WorkerType]
		switch t.Status {
		case task.StatusQueued, task.StatusRetrying:
			l.Queued++
		case task.StatusRunning:
			l.InFlight++
		default:
			continue
		}
		loads[t.WorkerType] = l
	}
	for _, w := range workers {
		if !w.Active {
			continue
		}
		l := loads[string(w.Type)]
		l.Workers++
		loads[string(w.Type)] = l
	}
	return loads
}
