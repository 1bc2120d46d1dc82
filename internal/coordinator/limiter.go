package coordinator

import (
	"sync"

	"github.com/Iron-Ham/conductor/internal/task"
)

// slotLimiter is a non-blocking, resizable concurrency limiter.
//
// A limit of 0 means unlimited. The dispatcher never waits on a slot: a
// band without capacity is skipped until a running task releases one.
type slotLimiter struct {
	mu       sync.Mutex
	limit    int // 0 = unlimited
	acquired int
}

func newSlotLimiter(limit int) *slotLimiter {
	if limit < 0 {
		limit = 0
	}
	return &slotLimiter{limit: limit}
}

// TryAcquire takes a slot if one is free.
func (s *slotLimiter) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit > 0 && s.acquired >= s.limit {
		return false
	}
	s.acquired++
	return true
}

// Release frees a slot.
func (s *slotLimiter) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired > 0 {
		s.acquired--
	}
}

// SetLimit adjusts the capacity. Negative values are clamped to 0 (unlimited).
// Slots already held beyond a lowered limit stay held until released.
func (s *slotLimiter) SetLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		n = 0
	}
	s.limit = n
}

// Limit returns the current limit (0 = unlimited).
func (s *slotLimiter) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Acquired returns the number of held slots.
func (s *slotLimiter) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// priorityLimits holds one limiter per priority band.
type priorityLimits map[task.Priority]*slotLimiter

func newPriorityLimits(limits map[task.Priority]int) priorityLimits {
	out := make(priorityLimits, len(task.Priorities))
	for _, p := range task.Priorities {
		out[p] = newSlotLimiter(limits[p])
	}
	return out
}

// tryAcquire is shaped for taskqueue.Queue.PopNext: the queue asks for the
// highest non-empty band first, and the first band that gets a slot is the
// one popped.
func (l priorityLimits) tryAcquire(p task.Priority) bool {
	s, ok := l[p]
	if !ok {
		return true
	}
	return s.TryAcquire()
}

func (l priorityLimits) release(p task.Priority) {
	if s, ok := l[p]; ok {
		s.Release()
	}
}
