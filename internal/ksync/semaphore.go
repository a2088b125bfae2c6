// Package ksync implements the counting semaphore and priority-donating
// lock described in spec.md §4.3, grounded on the interface implied by
// _examples/original_source/src/threads/synch.c (not directly retrieved,
// but fully specified by thread.h's donated_for/donated_to_get/hold_list
// fields) and biscuit's sync.Mutex-embedding style seen throughout the
// biscuit-fork vm/as.go reference file.
package ksync

import (
	"sync"

	"github.com/hyunhapark/kernelcore/internal/ilist"
	"github.com/hyunhapark/kernelcore/internal/interrupt"
	"github.com/hyunhapark/kernelcore/internal/sched"
)

// Semaphore is a classic counting semaphore. Down blocks the calling
// thread when the count is zero; Up wakes the highest-priority waiter
// (not strict FIFO -- spec.md §4.3 calls this out as the one place
// priority, not arrival order, decides who runs next).
type Semaphore struct {
	s       *sched.Scheduler
	mu      sync.Mutex
	value   int
	waiters ilist.List
}

// NewSemaphore constructs a semaphore with the given initial value,
// bound to scheduler s for blocking/unblocking waiters.
func NewSemaphore(s *sched.Scheduler, value int) *Semaphore {
	sem := &Semaphore{s: s, value: value}
	sem.waiters.Init()
	return sem
}

// down mirrors sema_down's while-loop structure exactly: a thread woken
// by Up re-checks the value (another Down may have raced in ahead of
// it, once real parallelism is added) and only decrements once it
// actually observes a free slot.
func down(sem *Semaphore) {
	sem.mu.Lock()
	for sem.value == 0 {
		t := sem.s.Current()
		sem.waiters.PushBack(t.QElem(), t)
		sem.mu.Unlock()
		sem.s.Block()
		sem.mu.Lock()
	}
	sem.value--
	sem.mu.Unlock()
}

// Down decrements the semaphore, blocking if it is already zero.
func (sem *Semaphore) Down() { down(sem) }

// Up increments the semaphore and, if anyone is waiting, wakes the
// highest-priority waiter (ties broken in arrival order). Unblock
// flags yield-on-return whenever the woken thread now outranks
// whoever is running; since Up is always called from ordinary thread
// context, never from an interrupt handler, it consumes that flag
// immediately and yields right here rather than leaving a woken
// higher-priority thread waiting for the caller to get around to
// yielding on its own -- spec.md §4.3's "if the woken thread's
// priority exceeds the current thread's, the current thread yields".
func (sem *Semaphore) Up() {
	sem.mu.Lock()
	sem.value++
	var winner *ilist.Elem
	var winnerT *sched.TCB
	for e := sem.waiters.Front(); e != sem.waiters.End(); e = e.Next() {
		t := e.Owner().(*sched.TCB)
		if winner == nil || t.Priority > winnerT.Priority {
			winner = e
			winnerT = t
		}
	}
	if winner != nil {
		winner.Remove()
	}
	sem.mu.Unlock()
	if winnerT != nil {
		sem.s.Unblock(winnerT)
		if interrupt.TakeYieldOnReturn() {
			sem.s.Yield()
		}
	}
}

// Value returns the current count, for diagnostics/tests only.
func (sem *Semaphore) Value() int {
	sem.mu.Lock()
	defer sem.mu.Unlock()
	return sem.value
}
