package retry

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPolicy_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Policy
		want Policy
	}{
		{"valid", Policy{MaxAttempts: 3, Delay: time.Second}, Policy{MaxAttempts: 3, Delay: time.Second}},
		{"zero attempts", Policy{}, Policy{MaxAttempts: 1}},
		{"negative delay", Policy{MaxAttempts: 2, Delay: -time.Second}, Policy{MaxAttempts: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestManager_Track(t *testing.T) {
	m := NewManager()

	s := m.Track("task-1", 3)
	if s.TaskID != "task-1" || s.MaxAttempts != 3 || s.Attempts != 0 {
		t.Errorf("Track() = %+v", s)
	}

	// Existing state is returned unchanged
	m.RecordFailure("task-1", "boom")
	again := m.Track("task-1", 10)
	if again.MaxAttempts != 3 || again.Attempts != 1 {
		t.Errorf("second Track() = %+v, want existing state", again)
	}
}

func TestManager_ExhaustsAfterMaxAttempts(t *testing.T) {
	m := NewManager()
	m.Track("t", 3)

	for i := 1; i <= 3; i++ {
		if !m.ShouldRetry("t") {
			t.Fatalf("attempt %d: ShouldRetry() = false before exhausting", i)
		}
		s := m.RecordFailure("t", fmt.Sprintf("error %d", i))
		if s.Attempts != i {
			t.Fatalf("Attempts = %d, want %d", s.Attempts, i)
		}
	}

	if m.ShouldRetry("t") {
		t.Error("ShouldRetry() should be false after 3 failures")
	}
	s, _ := m.State("t")
	if !s.Exhausted() {
		t.Error("state should be exhausted")
	}
	if s.LastError != "error 3" {
		t.Errorf("LastError = %q, want error 3", s.LastError)
	}
	if len(s.Errors) != 3 || s.Errors[0] != "error 1" {
		t.Errorf("Errors = %v", s.Errors)
	}
	if got := m.FailedTasks(); len(got) != 1 || got[0] != "t" {
		t.Errorf("FailedTasks() = %v", got)
	}
}

func TestManager_SuccessStopsRetries(t *testing.T) {
	m := NewManager()
	m.Track("t", 3)
	m.RecordFailure("t", "flaky")

	if got := m.RetryingTasks(); len(got) != 1 {
		t.Errorf("RetryingTasks() = %v, want [t]", got)
	}

	s := m.RecordSuccess("t")
	if !s.Succeeded || s.Attempts != 2 {
		t.Errorf("RecordSuccess() = %+v", s)
	}
	if m.ShouldRetry("t") {
		t.Error("succeeded task should not retry")
	}
	if len(m.RetryingTasks()) != 0 || len(m.FailedTasks()) != 0 {
		t.Error("succeeded task should be neither retrying nor failed")
	}
}

func TestManager_UnknownTask(t *testing.T) {
	m := NewManager()
	if m.ShouldRetry("nope") {
		t.Error("unknown task should not retry")
	}
	if s := m.RecordFailure("nope", "x"); s.TaskID != "" {
		t.Errorf("RecordFailure on unknown task = %+v", s)
	}
	if _, ok := m.State("nope"); ok {
		t.Error("State of unknown task should miss")
	}
}

func TestManager_StateIsCopy(t *testing.T) {
	m := NewManager()
	m.Track("t", 2)
	m.RecordFailure("t", "first")

	s, _ := m.State("t")
	s.Errors[0] = "mutated"

	again, _ := m.State("t")
	if again.Errors[0] != "first" {
		t.Error("State should return a copy")
	}
}

func TestManager_Forget(t *testing.T) {
	m := NewManager()
	m.Track("a", 1)
	m.Track("b", 1)
	m.Forget("a")

	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestManager_Concurrent(t *testing.T) {
	m := NewManager()
	m.Track("shared", 1000)

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			m.RecordFailure("shared", "x")
		})
	}
	wg.Wait()

	s, _ := m.State("shared")
	if s.Attempts != 100 {
		t.Errorf("Attempts = %d, want 100", s.Attempts)
	}
}
