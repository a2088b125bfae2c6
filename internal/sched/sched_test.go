package sched

import (
	"sync"
	"testing"
	"time"
)

// waitDone blocks until ch is closed or the test times out, so a
// goroutine-gating bug (a thread parked forever) fails the test instead
// of hanging the suite.
func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for thread to finish")
	}
}

func TestPriorityPreemptionOnCreate(t *testing.T) {
	s := New(false)
	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	s.Spawn("low", PriDefault, func(self *TCB) {
		mu.Lock()
		order = append(order, "low-start")
		mu.Unlock()

		s.Spawn("high", PriDefault+10, func(self *TCB) {
			mu.Lock()
			order = append(order, "high-ran")
			mu.Unlock()
		})

		mu.Lock()
		order = append(order, "low-resumed")
		mu.Unlock()
		close(done)
	})

	waitDone(t, done)
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "low-start" || order[1] != "high-ran" || order[2] != "low-resumed" {
		t.Fatalf("unexpected order: %v", order)
	}
}

// TestRoundRobinSamePriority spawns two equal-priority threads from
// within a third (orchestrator) thread, since Scheduler.Spawn called
// from outside any scheduled thread stands in for the idle/boot
// context and blocks until the whole tree it starts drains back to
// idle -- calling it more than once concurrently from a bare test
// goroutine would race two different threads' worth of scheduler state.
func TestRoundRobinSamePriority(t *testing.T) {
	s := New(false)
	var order []string

	s.Spawn("orchestrator", PriDefault, func(self *TCB) {
		s.Spawn("a", PriDefault, func(self *TCB) {
			order = append(order, "a")
			s.Yield()
			order = append(order, "a-again")
		})
		s.Spawn("b", PriDefault, func(self *TCB) {
			order = append(order, "b")
		})
		s.Yield()
	})

	want := []string{"a", "b", "a-again"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSetPriorityLowerAfterPreemptingSpawn(t *testing.T) {
	s := New(false)
	var mu sync.Mutex
	var ran bool
	done := make(chan struct{})

	s.Spawn("raiser", PriDefault, func(self *TCB) {
		s.Spawn("higher", PriDefault+1, func(self *TCB) {
			mu.Lock()
			ran = true
			mu.Unlock()
		})
		// higher already ran to completion via the create-time
		// preemption; lowering our own priority further must not
		// panic or deadlock.
		s.SetPriority(PriDefault - 1)
		close(done)
	})

	waitDone(t, done)
	mu.Lock()
	defer mu.Unlock()
	if !ran {
		t.Fatalf("higher priority thread never ran")
	}
}

// TestReapRequiresDying relies on Spawn, called directly from the test
// goroutine (the idle/boot context), not returning until the spawned
// thread has fully exited -- so by the time it returns, tcb is already
// Dying and ready to be reaped.
func TestReapRequiresDying(t *testing.T) {
	s := New(false)
	var tcb *TCB
	s.Spawn("short", PriDefault, func(self *TCB) {
		tcb = self
	})

	if err := s.Reap(tcb); err != nil {
		t.Fatalf("Reap of exited thread failed: %v", err)
	}
}
