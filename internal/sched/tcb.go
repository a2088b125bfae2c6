// Package sched implements the thread control block, ready queues, and
// the priority/MLFQ scheduler described in spec.md §4.4. Grounded on
// _examples/original_source/src/threads/thread.h for the TCB field
// layout (tid, status, priority, nice, recent_cpu, donated_for,
// donated_to_get, hold_list, original_priority, awake_tick, magic) and
// on biscuit's goroutine-as-thread idiom (main.go's trap_disk/trap_cons/
// kbd_daemon goroutines gated by channel receives), generalized here
// into a scheduler condition variable gate -- see SPEC_FULL.md §0 for
// why a real context switch isn't available in a hosted simulation.
package sched

import (
	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/fixedpoint"
	"github.com/hyunhapark/kernelcore/internal/ilist"
)

// Status mirrors the thread_status enum: running/ready/blocked/dying.
type Status int

const (
	Blocked Status = iota
	Ready
	Running
	Dying
)

func (s Status) String() string {
	switch s {
	case Blocked:
		return "blocked"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Dying:
		return "dying"
	default:
		return "unknown"
	}
}

const (
	PriMin     = 0
	PriMax     = 63
	PriDefault = 31

	NiceMin     = -20
	NiceMax     = 20
	NiceDefault = 0

	// magic is stamped into every TCB and checked on context switch,
	// matching thread.h's THREAD_MAGIC stack-overflow canary. There is
	// no real stack here, so the check only guards against a TCB being
	// handed to the scheduler without going through newTCB.
	magic = 0xcd6abf4b
)

// Waitable is implemented by internal/ksync's Lock so sched can walk
// "who is waiting on what this thread holds" during priority recompute
// without importing ksync (which imports sched for *TCB).
type Waitable interface {
	Waiters() []*TCB
}

// TCB is the thread control block, spec.md §3's per-thread state.
type TCB struct {
	Tid    int
	Name   string
	Status Status

	// Priority is the effective (possibly donated) priority used for
	// ready-queue placement. BasePriority is the thread's own priority,
	// set by set_priority and unaffected by donation.
	Priority     int
	BasePriority int

	// MLFQ-only fields (spec.md §4.4); ignored when the scheduler runs
	// in strict-priority mode.
	Nice      int
	RecentCPU fixedpoint.Fixed

	// AwakeTick is owned by internal/timer: the tick at which a sleeping
	// thread should be woken. Zero when the thread isn't sleeping.
	AwakeTick int64

	// Donation bookkeeping (spec.md §4.3). DonatedTo is the thread this
	// thread has donated its priority to; WaitingOn is the lock (or any
	// Waitable) it is blocked on; HeldLocks are the locks it currently
	// holds, consulted when one of them is released to recompute the
	// holder's priority.
	DonatedTo  *TCB
	WaitingOn  Waitable
	HeldLocks  []Waitable

	// ExitCode is not written by this package or by internal/usyscall:
	// the process layer records a process's exit status on its own
	// usyscall.Process and signals waiters through Process.ExitSem, and
	// Exit signals nothing.
	ExitCode int

	magic uint32

	qelem   ilist.Elem // ready-queue / semaphore-waiter membership
	allElem ilist.Elem
}

func newTCB(tid int, name string, priority int) *TCB {
	return &TCB{
		Tid:          tid,
		Name:         name,
		Status:       Blocked,
		Priority:     priority,
		BasePriority: priority,
		Nice:         NiceDefault,
		magic:        magic,
	}
}

func (t *TCB) checkMagic() {
	if t.magic != magic {
		panic("sched: corrupt TCB (bad magic, stack overflow in original pintos terms)")
	}
}

// QElem exposes the TCB's single queue-membership link for use by
// collaborators (internal/ksync's semaphore waiter list) that need to
// enqueue a blocked thread without allocating. A thread is never on its
// ready-queue slot and a wait queue at the same time, so one Elem per
// TCB covers both uses (spec.md §9's note that the multiple embedded
// link members collapse to a single tagged slot in this port).
func (t *TCB) QElem() *ilist.Elem { return &t.qelem }

// TidT returns the thread's identifier as common.Tid_t, the typed id
// biscuit threads its Err_t-returning calls on rather than a bare int.
func (t *TCB) TidT() common.Tid_t { return common.Tid_t(t.Tid) }

// RecomputePriority restores Priority to max(BasePriority, priority of
// the highest-priority thread waiting on any lock this thread still
// holds) -- spec.md §4.3's release-time recompute. Exported so
// internal/ksync can call it after removing a released lock from
// HeldLocks.
func (t *TCB) RecomputePriority() int {
	p := t.BasePriority
	for _, lk := range t.HeldLocks {
		for _, w := range lk.Waiters() {
			if w.Priority > p {
				p = w.Priority
			}
		}
	}
	return p
}

// AddHeldLock records l as held by t (called by ksync.Lock.Acquire on
// success).
func (t *TCB) AddHeldLock(l Waitable) {
	t.HeldLocks = append(t.HeldLocks, l)
}

// RemoveHeldLock drops l from t's held set (called by ksync.Lock.Release
// before recomputing priority).
func (t *TCB) RemoveHeldLock(l Waitable) {
	for i, h := range t.HeldLocks {
		if h == l {
			t.HeldLocks = append(t.HeldLocks[:i], t.HeldLocks[i+1:]...)
			return
		}
	}
}
