package coordinator

import (
	"testing"

	"github.com/Iron-Ham/conductor/internal/task"
)

func TestSlotLimiter_BasicAcquireRelease(t *testing.T) {
	s := newSlotLimiter(2)

	if !s.TryAcquire() || !s.TryAcquire() {
		t.Fatal("first two acquires should succeed")
	}
	if s.TryAcquire() {
		t.Error("third acquire should fail at limit 2")
	}
	if s.Acquired() != 2 {
		t.Errorf("Acquired() = %d, want 2", s.Acquired())
	}

	s.Release()
	if !s.TryAcquire() {
		t.Error("acquire after release should succeed")
	}
}

func TestSlotLimiter_UnlimitedMode(t *testing.T) {
	s := newSlotLimiter(0)
	for i := range 100 {
		if !s.TryAcquire() {
			t.Fatalf("TryAcquire %d failed in unlimited mode", i)
		}
	}
	if s.Acquired() != 100 {
		t.Errorf("Acquired() = %d, want 100", s.Acquired())
	}
}

func TestSlotLimiter_SetLimit(t *testing.T) {
	s := newSlotLimiter(1)
	s.TryAcquire()
	if s.TryAcquire() {
		t.Fatal("should be at limit")
	}

	s.SetLimit(2)
	if !s.TryAcquire() {
		t.Error("raised limit should allow another slot")
	}

	s.SetLimit(-5)
	if s.Limit() != 0 {
		t.Errorf("negative limit should clamp to 0, got %d", s.Limit())
	}
}

func TestSlotLimiter_ReleaseNeverNegative(t *testing.T) {
	s := newSlotLimiter(1)
	s.Release()
	if s.Acquired() != 0 {
		t.Errorf("Acquired() = %d, want 0", s.Acquired())
	}
}

func TestPriorityLimits(t *testing.T) {
	l := newPriorityLimits(map[task.Priority]int{task.PriorityHigh: 1})

	if !l.tryAcquire(task.PriorityHigh) {
		t.Fatal("first high slot should be free")
	}
	if l.tryAcquire(task.PriorityHigh) {
		t.Error("high band is capped at 1")
	}
	if !l.tryAcquire(task.PriorityLow) || !l.tryAcquire(task.PriorityLow) {
		t.Error("low band is unlimited")
	}

	l.release(task.PriorityHigh)
	if !l.tryAcquire(task.PriorityHigh) {
		t.Error("released high slot should be reusable")
	}
}
