package timer

import (
	"testing"

	"github.com/hyunhapark/kernelcore/internal/sched"
)

// TestSleepWakesAtTick spawns a thread that sleeps for a fixed number
// of ticks, advances the logical clock past that point, and confirms
// the thread resumes and finishes -- all observed through a second
// "waker" thread spawned afterward, since the sleeping thread's own
// Unblock doesn't by itself hand it the CPU (Unblock never yields the
// caller, matching thread_unblock's contract).
func TestSleepWakesAtTick(t *testing.T) {
	s := sched.New(false)
	tm := New(s)
	woke := false

	s.Spawn("sleeper", sched.PriDefault, func(self *sched.TCB) {
		tm.Sleep(self, 5)
		woke = true
	})

	for i := 0; i < 5; i++ {
		tm.Tick()
	}

	// The sleeper is Ready but hasn't run yet (Unblock doesn't
	// preempt). Spawning any thread from this idle-context goroutine
	// drains the ready queue -- including the now-ready sleeper --
	// before returning.
	s.Spawn("waker", sched.PriDefault, func(self *sched.TCB) {})

	if !woke {
		t.Fatalf("sleeper did not resume after its wake tick elapsed")
	}
}

func TestSleepNonPositiveReturnsImmediately(t *testing.T) {
	s := sched.New(false)
	tm := New(s)
	ran := false
	s.Spawn("noop-sleep", sched.PriDefault, func(self *sched.TCB) {
		tm.Sleep(self, 0)
		ran = true
	})
	if !ran {
		t.Fatalf("Sleep(0) should return immediately without blocking")
	}
}
