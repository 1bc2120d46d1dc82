package taskqueue

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Iron-Ham/conductor/internal/task"
)

func mk(id string, p task.Priority) task.Task {
	return task.Task{ID: id, Priority: p, WorkerType: "content", TenantID: "org1"}
}

func popAll(q *Queue) []string {
	var ids []string
	for {
		t, ok := q.Pop()
		if !ok {
			return ids
		}
		ids = append(ids, t.ID)
	}
}

func TestQueue_PriorityThenFIFO(t *testing.T) {
	q := New()
	for _, tk := range []task.Task{
		mk("low-1", task.PriorityLow),
		mk("med-1", task.PriorityMedium),
		mk("crit-1", task.PriorityCritical),
		mk("high-1", task.PriorityHigh),
		mk("med-2", task.PriorityMedium),
		mk("crit-2", task.PriorityCritical),
	} {
		if err := q.Push(tk); err != nil {
			t.Fatalf("Push(%s): %v", tk.ID, err)
		}
	}

	got := popAll(q)
	want := []string{"crit-1", "crit-2", "high-1", "med-1", "med-2", "low-1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("dispatch order = %v, want %v", got, want)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after draining", q.Len())
	}
}

func TestQueue_PushValidation(t *testing.T) {
	q := New()
	if err := q.Push(mk("a", task.PriorityHigh)); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(mk("a", task.PriorityLow)); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("duplicate push error = %v, want ErrDuplicateTask", err)
	}
	if err := q.Push(mk("b", task.Priority(42))); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("invalid priority error = %v, want ErrInvalidPriority", err)
	}
}

func TestQueue_PopNextSkipsBlockedBands(t *testing.T) {
	q := New()
	_ = q.Push(mk("crit-1", task.PriorityCritical))
	_ = q.Push(mk("low-1", task.PriorityLow))
	_ = q.Push(mk("crit-2", task.PriorityCritical))

	next, ok := q.PopNext(func(p task.Priority) bool { return p != task.PriorityCritical })
	if !ok || next.ID != "low-1" {
		t.Fatalf("PopNext = %v %v, want low-1", next.ID, ok)
	}

	if _, ok := q.PopNext(func(task.Priority) bool { return false }); ok {
		t.Error("PopNext should return false when every band is blocked")
	}

	// Blocked band kept its FIFO order
	if got := popAll(q); fmt.Sprint(got) != "[crit-1 crit-2]" {
		t.Errorf("remaining = %v", got)
	}
}

func TestQueue_Remove(t *testing.T) {
	q := New()
	_ = q.Push(mk("a", task.PriorityMedium))
	_ = q.Push(mk("b", task.PriorityMedium))
	_ = q.Push(mk("c", task.PriorityMedium))

	removed, ok := q.Remove("b")
	if !ok || removed.ID != "b" {
		t.Fatalf("Remove(b) = %v %v", removed.ID, ok)
	}
	if _, ok := q.Remove("b"); ok {
		t.Error("second Remove should miss")
	}
	if q.Contains("b") {
		t.Error("Contains(b) after removal")
	}
	if got := popAll(q); fmt.Sprint(got) != "[a c]" {
		t.Errorf("remaining = %v, want [a c]", got)
	}
}

func TestQueue_DepthAndSnapshot(t *testing.T) {
	q := New()
	_ = q.Push(mk("h", task.PriorityHigh))
	_ = q.Push(mk("l", task.PriorityLow))
	_ = q.Push(mk("h2", task.PriorityHigh))

	depth := q.Depth()
	if depth[task.PriorityHigh] != 2 || depth[task.PriorityLow] != 1 || depth[task.PriorityCritical] != 0 {
		t.Errorf("Depth() = %v", depth)
	}

	snap := q.Snapshot()
	if len(snap) != 3 || snap[0].ID != "h" || snap[2].ID != "l" {
		t.Errorf("Snapshot order = %v", snap)
	}
	if q.Len() != 3 {
		t.Error("Snapshot should not consume the queue")
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Go(func() {
			_ = q.Push(mk(fmt.Sprintf("t-%d", i), task.Priorities[i%4]))
		})
	}
	wg.Wait()

	if q.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", q.Len())
	}

	var popped sync.Map
	for range 100 {
		wg.Go(func() {
			if tk, ok := q.Pop(); ok {
				if _, dup := popped.LoadOrStore(tk.ID, true); dup {
					t.Errorf("task %s popped twice", tk.ID)
				}
			}
		})
	}
	wg.Wait()
	if q.Len() != 0 {
		t.Errorf("Len() = %d after concurrent drain", q.Len())
	}
}
