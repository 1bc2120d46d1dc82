package taskqueue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Iron-Ham/conductor/internal/task"
)

// Sentinel errors returned by queue operations.
var (
	ErrDuplicateTask   = errors.New("task already queued")
	ErrInvalidPriority = errors.New("invalid priority")
)

// Queue is a priority queue of tasks. All methods are safe for concurrent
// use via an internal mutex.
type Queue struct {
	mu    sync.Mutex
	bands map[task.Priority][]task.Task
	index map[string]task.Priority // taskID -> band
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{
		bands: make(map[task.Priority][]task.Task, len(task.Priorities)),
		index: make(map[string]task.Priority),
	}
}

// Push appends t to the back of its priority band.
func (q *Queue) Push(t task.Task) error {
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, int(t.Priority))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	q.bands[t.Priority] = append(q.bands[t.Priority], t)
	q.index[t.ID] = t.Priority
	return nil
}

// Pop removes and returns the oldest task in the highest non-empty band.
func (q *Queue) Pop() (task.Task, bool) {
	return q.PopNext(nil)
}

// PopNext removes and returns the oldest task in the highest non-empty band
// for which allow returns true. A nil allow accepts every band.
func (q *Queue) PopNext(allow func(task.Priority) bool) (task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range task.Priorities {
		band := q.bands[p]
		if len(band) == 0 {
			continue
		}
		if allow != nil && !allow(p) {
			continue
		}
		t := band[0]
		band[0] = task.Task{}
		q.bands[p] = band[1:]
		delete(q.index, t.ID)
		return t, true
	}
	return task.Task{}, false
}

// Remove deletes a queued task by ID. It returns the removed task and true
// if it was queued.
func (q *Queue) Remove(id string) (task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.index[id]
	if !ok {
		return task.Task{}, false
	}
	band := q.bands[p]
	for i, t := range band {
		if t.ID == id {
			q.bands[p] = append(band[:i:i], band[i+1:]...)
			delete(q.index, id)
			return t, true
		}
	}
	// index and band disagree; drop the stale index entry
	delete(q.index, id)
	return task.Task{}, false
}

// Contains reports whether a task with id is queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[id]
	return ok
}

// Len returns the total number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}

// Depth returns the number of queued tasks per priority band.
func (q *Queue) Depth() map[task.Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[task.Priority]int, len(task.Priorities))
	for _, p := range task.Priorities {
		out[p] = len(q.bands[p])
	}
	return out
}

// Snapshot returns every queued task in dispatch order.
func (q *Queue) Snapshot() []task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]task.Task, 0, len(q.index))
	for _, p := range task.Priorities {
		for _, t := range q.bands[p] {
			out = append(out, t.Clone())
		}
	}
	return out
}
