package ksync

import (
	"github.com/hyunhapark/kernelcore/internal/klog"
	"github.com/hyunhapark/kernelcore/internal/sched"
)

// Lock is a binary semaphore with priority donation (spec.md §4.3):
// Acquire on a held lock donates the waiter's priority up the holder
// chain (bounded depth, handled by sched.Scheduler.DonateTo), and
// Release recomputes the ex-holder's priority from whatever it still
// holds before waking the next waiter. Lock implements sched.Waitable
// so a TCB's HeldLocks/WaitingOn fields can reference it without
// internal/sched importing internal/ksync.
type Lock struct {
	s      *sched.Scheduler
	sem    *Semaphore
	holder *sched.TCB
}

// NewLock constructs an unheld lock bound to scheduler s.
func NewLock(s *sched.Scheduler) *Lock {
	return &Lock{s: s, sem: NewSemaphore(s, 1)}
}

// Waiters implements sched.Waitable, returning the threads currently
// blocked in Down on this lock's semaphore.
func (l *Lock) Waiters() []*sched.TCB {
	l.sem.mu.Lock()
	defer l.sem.mu.Unlock()
	var out []*sched.TCB
	for e := l.sem.waiters.Front(); e != l.sem.waiters.End(); e = e.Next() {
		out = append(out, e.Owner().(*sched.TCB))
	}
	return out
}

// Acquire blocks until the lock is free. If it is already held, the
// calling thread donates its priority to the holder (and transitively,
// to whoever the holder is itself waiting on) before blocking.
func (l *Lock) Acquire() {
	current := l.s.Current()
	if l.holder != nil && l.holder != current {
		current.WaitingOn = l
		current.DonatedTo = l.holder
		l.s.DonateTo(l.holder, current.Priority)
	}
	l.sem.Down()
	current.WaitingOn = nil
	current.DonatedTo = nil
	l.holder = current
	current.AddHeldLock(l)
}

// HeldBy reports whether t currently holds the lock.
func (l *Lock) HeldBy(t *sched.TCB) bool { return l.holder == t }

// Release hands the lock back, recomputing the releasing thread's
// priority from any locks it still holds before waking the next waiter.
// Releasing a lock the caller doesn't hold is a tier-1 invariant
// violation (spec.md §7) and panics rather than silently proceeding.
func (l *Lock) Release() {
	current := l.s.Current()
	if l.holder != current {
		klog.Panicf("ksync", map[string]interface{}{"tid": current.Tid, "lock_holder": holderTid(l.holder)},
			"release of lock not held by caller")
	}
	current.RemoveHeldLock(l)
	l.holder = nil
	l.s.RecomputeAndRequeue(current)
	l.sem.Up()
}

func holderTid(t *sched.TCB) interface{} {
	if t == nil {
		return nil
	}
	return t.Tid
}
