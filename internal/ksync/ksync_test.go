package ksync

import (
	"testing"
	"time"

	"github.com/hyunhapark/kernelcore/internal/sched"
)

// waitSpawn runs entry as the scheduler's single top-level thread and
// waits for the whole thread tree it spawns to drain back to idle.
// Spawn, called from a non-scheduled goroutine, blocks exactly that
// long (see Scheduler.Spawn: a caller outside a scheduled thread is
// standing in for the idle/boot context, so its own Yield parks until
// idle is current again) -- so the done channel only guards against a
// scheduler bug hanging forever instead of returning.
func waitSpawn(t *testing.T, s *sched.Scheduler, name string, priority int, entry func(*sched.TCB)) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Spawn(name, priority, entry)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for thread tree to finish")
	}
}

func TestSemaphoreOrdersByPriorityNotArrival(t *testing.T) {
	s := sched.New(false)
	sem := NewSemaphore(s, 0)
	var order []string

	waitSpawn(t, s, "orchestrator", sched.PriDefault, func(self *sched.TCB) {
		s.Spawn("low", sched.PriDefault+1, func(self *sched.TCB) {
			sem.Down()
			order = append(order, "low")
		})
		s.Spawn("mid", sched.PriDefault+2, func(self *sched.TCB) {
			sem.Down()
			order = append(order, "mid")
		})
		s.Spawn("high", sched.PriDefault+3, func(self *sched.TCB) {
			sem.Down()
			order = append(order, "high")
		})

		// All three are now blocked in Down. Waking them one at a
		// time must pick the highest remaining priority each time,
		// regardless of the spawn order above (low, mid, high).
		sem.Up()
		sem.Up()
		sem.Up()
	})

	if len(order) != 3 || order[0] != "high" || order[1] != "mid" || order[2] != "low" {
		t.Fatalf("unexpected wake order: %v", order)
	}
}

func TestLockPriorityDonation(t *testing.T) {
	s := sched.New(false)
	lock := NewLock(s)
	var lowPriorityWhileHolding int
	var highRan bool

	waitSpawn(t, s, "orchestrator", sched.PriDefault, func(self *sched.TCB) {
		// low shares the orchestrator's priority, so spawning it
		// doesn't auto-preempt; an explicit yield is needed to let it
		// run and acquire the lock before this thread continues.
		s.Spawn("low", sched.PriDefault, func(self *sched.TCB) {
			lock.Acquire()
			for i := 0; i < 3; i++ {
				s.Yield()
			}
			lowPriorityWhileHolding = s.GetPriority()
			lock.Release()
		})
		s.Yield()

		// low now holds the lock and is parked in its own yield loop.
		// Spawning high preempts this thread immediately and forces
		// low to donate once high blocks on the held lock.
		s.Spawn("high", sched.PriDefault+20, func(self *sched.TCB) {
			lock.Acquire()
			highRan = true
			lock.Release()
		})
	})

	if !highRan {
		t.Fatalf("high priority waiter never acquired the lock")
	}
	if lowPriorityWhileHolding < sched.PriDefault+20 {
		t.Fatalf("low holder priority = %d, want donation to raise it to >= %d", lowPriorityWhileHolding, sched.PriDefault+20)
	}
}
