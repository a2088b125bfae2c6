package sched

import (
	"fmt"
	"sync"

	"github.com/hyunhapark/kernelcore/internal/fixedpoint"
	"github.com/hyunhapark/kernelcore/internal/ilist"
	"github.com/hyunhapark/kernelcore/internal/interrupt"
	"github.com/hyunhapark/kernelcore/internal/klog"
)

// Scheduler holds all scheduling state: the 64 priority ready queues, the
// all-threads list, and the MLFQ load average. A hosted simulation has
// no real context switch, so "running a thread" is implemented by
// gating goroutines on a condition variable that only lets the thread
// matching Current proceed (spec.md §0 / SPEC_FULL.md's goroutine-gate
// decision). Every scheduling decision is made with mu held; a thread
// only executes user code outside the lock, between await calls.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	ready [PriMax + 1]ilist.List
	all   ilist.List

	current *TCB
	idle    *TCB
	nextTid int

	Mlfqs   bool
	LoadAvg fixedpoint.Fixed
	ticks   int64
}

// New constructs a scheduler and its idle thread. mlfqs selects the
// MLFQ scheduler (spec.md §4.4); when false, priority scheduling with
// donation (spec.md §4.3) is used exclusively.
func New(mlfqs bool) *Scheduler {
	s := &Scheduler{Mlfqs: mlfqs}
	s.cond = sync.NewCond(&s.mu)
	for p := range s.ready {
		s.ready[p].Init()
	}
	s.all.Init()
	s.idle = newTCB(0, "idle", PriMin)
	s.idle.Status = Running
	s.all.PushBack(&s.idle.allElem, s.idle)
	s.current = s.idle
	s.nextTid = 1
	return s
}

// Current returns the thread the scheduler currently considers
// running. Safe to call from any goroutine.
func (s *Scheduler) Current() *TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Spawn creates a new thread named name at the given priority and
// starts entry running in its own goroutine once scheduled (spec.md
// §4.4's thread_create). If the new thread's priority exceeds the
// caller's, the caller yields immediately so the new thread runs first
// -- matching spec.md's preemption-on-create requirement (testable
// property scenario 1).
func (s *Scheduler) Spawn(name string, priority int, entry func(*TCB)) *TCB {
	s.mu.Lock()
	t := newTCB(s.nextTid, name, priority)
	s.nextTid++
	s.all.PushBack(&t.allElem, t)
	t.Status = Ready
	s.ready[t.Priority].PushBack(&t.qelem, t)
	preempt := t.Priority > s.current.Priority
	s.mu.Unlock()

	go func() {
		s.awaitTurn(t)
		entry(t)
		s.Exit()
	}()

	if preempt {
		s.Yield()
	}
	return t
}

// awaitTurn parks the calling goroutine until the scheduler has picked
// t to run.
func (s *Scheduler) awaitTurn(t *TCB) {
	s.mu.Lock()
	for s.current != t {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// reschedule must be called with mu held. It picks the highest-priority
// ready thread (FIFO within a priority level, per spec.md §4.4), falling
// back to idle, and wakes every parked goroutine so the chosen one can
// proceed.
func (s *Scheduler) reschedule() {
	s.current.checkMagic()
	var next *TCB
	for p := PriMax; p >= PriMin; p-- {
		if !s.ready[p].Empty() {
			e := s.ready[p].Front()
			e.Remove()
			next = e.Owner().(*TCB)
			break
		}
	}
	if next == nil {
		next = s.idle
	}
	next.Status = Running
	s.current = next
	s.cond.Broadcast()
}

// Yield puts the current thread back on the ready queue at its current
// priority and reschedules, matching thread_yield.
func (s *Scheduler) Yield() {
	s.mu.Lock()
	t := s.current
	if t != s.idle {
		t.Status = Ready
		s.ready[t.Priority].PushBack(&t.qelem, t)
	}
	s.reschedule()
	s.mu.Unlock()
	s.awaitTurn(t)
}

// Block marks the current thread Blocked and reschedules away from it.
// The caller is responsible for having already enqueued the thread on
// whatever structure will later call Unblock (a semaphore's waiter
// list, the timer's sleep queue, ...) -- mirroring thread_block's
// contract that interrupts are off and the queue placement already
// happened.
func (s *Scheduler) Block() {
	s.mu.Lock()
	t := s.current
	t.Status = Blocked
	s.reschedule()
	s.mu.Unlock()
	s.awaitTurn(t)
}

// Unblock moves t from Blocked to Ready and enqueues it, without
// yielding the caller (thread_unblock never reschedules itself).
func (s *Scheduler) Unblock(t *TCB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status != Blocked {
		klog.Panicf("sched", map[string]interface{}{"tid": t.TidT()}, "unblock of non-blocked thread %d (%s, status=%s)", t.Tid, t.Name, t.Status)
	}
	t.Status = Ready
	s.ready[t.Priority].PushBack(&t.qelem, t)
	if t.Priority > s.current.Priority {
		interrupt.SetYieldOnReturn()
	}
}

// Exit marks the current thread Dying and reschedules away from it
// permanently; the calling goroutine returns right after and its stack
// unwinds, matching thread_exit's "never returns to the caller".
// TCBs are only removed from the all-threads list by Reap, once the
// process layer has observed the exit (spec.md's wait-once semantics).
func (s *Scheduler) Exit() {
	s.mu.Lock()
	t := s.current
	t.Status = Dying
	s.reschedule()
	s.mu.Unlock()
}

// Reap removes a Dying thread's TCB from the all-threads list. Called
// by usyscall's wait() once a child's exit has been observed.
func (s *Scheduler) Reap(t *TCB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status != Dying {
		return fmt.Errorf("sched: reap of thread %d (%s) not in dying state (status=%s)", t.Tid, t.Name, t.Status)
	}
	t.allElem.Remove()
	return nil
}

// SetPriority changes the current thread's base priority (spec.md's
// thread_set_priority). If no donation is in effect the change takes
// effect immediately, including requeueing and possibly yielding if a
// higher-priority thread is now ready; if this thread currently holds
// donated priority above newPriority the change is deferred until the
// donation unwinds (recorded by leaving BasePriority below Priority until
// RecomputePriority next runs).
func (s *Scheduler) SetPriority(newPriority int) {
	s.mu.Lock()
	t := s.current
	t.BasePriority = newPriority
	donated := t.RecomputePriority() > newPriority
	if !donated {
		s.setPriorityLocked(t, newPriority)
	}
	yield := !donated && t != s.idle && s.readyHasHigherLocked(t.Priority)
	s.mu.Unlock()
	if yield {
		s.Yield()
	}
}

// GetPriority returns the current thread's effective priority.
func (s *Scheduler) GetPriority() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Priority
}

func (s *Scheduler) readyHasHigherLocked(p int) bool {
	for i := PriMax; i > p; i-- {
		if !s.ready[i].Empty() {
			return true
		}
	}
	return false
}

// setPriorityLocked updates t.Priority, moving it between ready queues
// if it is currently Ready. mu must be held.
func (s *Scheduler) setPriorityLocked(t *TCB, newPriority int) {
	if t.Status == Ready {
		t.qelem.Remove()
		t.Priority = newPriority
		s.ready[t.Priority].PushBack(&t.qelem, t)
		return
	}
	t.Priority = newPriority
}

// DonateTo raises holder's effective priority to at least donor's, and
// -- if holder is itself blocked waiting on another lock -- chases the
// donation chain, capped at 8 hops (spec.md §9's bounded-depth decision,
// since pintos itself caps nested donation at a small constant depth).
// Called by internal/ksync's Lock.Acquire.
func (s *Scheduler) DonateTo(holder *TCB, priority int) {
	const maxDepth = 8
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := holder
	for depth := 0; depth < maxDepth && cur != nil; depth++ {
		if priority <= cur.Priority {
			return
		}
		s.setPriorityLocked(cur, priority)
		if cur.WaitingOn == nil {
			return
		}
		next := cur.DonatedTo
		cur = next
	}
}

// RecomputeAndRequeue restores t's priority to the recompute result
// (called by ksync after a lock release) and, if t is Ready, moves it
// to the correct queue.
func (s *Scheduler) RecomputeAndRequeue(t *TCB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPriorityLocked(t, t.RecomputePriority())
}

// Tick advances the logical clock by one and, in MLFQ mode, runs the
// per-tick/per-second/per-fourth-tick recalculations (spec.md §4.4).
// Called by internal/timer once per logical tick.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	s.ticks++
	t := s.current
	if t != s.idle {
		t.RecentCPU = fixedpoint.AddInt(t.RecentCPU, 1)
	}
	if s.Mlfqs {
		if s.ticks%TicksPerSecond == 0 {
			s.recalcLoadAvgAndRecentCPULocked()
		}
		if s.ticks%4 == 0 {
			s.recalcPrioritiesLocked()
		}
	}
	s.mu.Unlock()
}

// AllThreads returns a snapshot slice of every non-reaped TCB, for
// diagnostics; the MLFQ recalculation passes walk the all-threads list
// directly under mu instead.
func (s *Scheduler) AllThreads() []*TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*TCB
	for e := s.all.Front(); e != s.all.End(); e = e.Next() {
		out = append(out, e.Owner().(*TCB))
	}
	return out
}
