package usyscall

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/klog"
	"github.com/hyunhapark/kernelcore/internal/ksync"
	"github.com/hyunhapark/kernelcore/internal/sched"
	"github.com/hyunhapark/kernelcore/internal/vm/frame"
)

// ProcessView is the collaborator interface spec.md §4.10 calls for:
// syscall bodies operate against this instead of decoding a raw trap
// frame. *Process is the only implementation; tests exercise it
// directly rather than faking the interface, since there is exactly one
// real address-space/fd-table pairing a process can have.
type ProcessView interface {
	Tid() int
	Name() string
	Memory() UserIO
	Files() *FDTable
}

// exitSignal is how Exit unwinds a process's entry goroutine without
// returning through every syscall call frame, mirroring thread_exit
// never returning to its caller. Process.run recovers exactly this type;
// anything else is a tier-1 invariant violation (spec.md §7) and is
// re-panicked, crashing the whole simulated kernel the way a real kernel
// panic would.
type exitSignal struct{ status int }

// Process is one user process: a scheduled thread, its own address
// space and fd table, and the parent/child/wait bookkeeping spec.md's
// exec/wait semantics need. Grounded on
// _examples/original_source/src/userprog/process.c's struct thread
// additions (exit_status, my_binary, open_list, child/parent semaphores)
// folded into a single Go struct instead of bolting them onto sched.TCB,
// keeping the scheduler package process-agnostic.
type Process struct {
	T      *sched.TCB
	sched  *sched.Scheduler
	Parent *Process
	AS     *AddressSpace
	Fd     *FDTable

	ExitSem *ksync.Semaphore // signaled once by Exit, observed by the parent's Wait
	LoadSem *ksync.Semaphore // signaled once exec's child has (failed to) set up its stack

	mu       sync.Mutex
	loadOK   bool
	exitCode int
	children map[int]*Process
	reaped   map[int]bool
}

// Tid, Name, Memory, Files implement ProcessView.
func (p *Process) Tid() int        { return p.T.Tid }
func (p *Process) Name() string    { return p.T.Name }
func (p *Process) Memory() UserIO  { return p.AS }
func (p *Process) Files() *FDTable { return p.Fd }

// ExitCode returns the status a process exited with, for a parentless
// root process (tests, cmd/kernel's top-level process) that has no
// Wait() to observe it through.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// NewRootProcess constructs the first process in the system (no
// parent), used by cmd/kernel to bootstrap. entry runs as the process's
// body once scheduled.
func NewRootProcess(s *sched.Scheduler, ft *frame.Table, fs *FileSystem, stackTop uintptr, name string, priority int, entry func(*Process)) *Process {
	p := &Process{
		sched:    s,
		ExitSem:  ksync.NewSemaphore(s, 0),
		LoadSem:  ksync.NewSemaphore(s, 0),
		children: make(map[int]*Process),
		reaped:   make(map[int]bool),
	}
	fd := NewFDTable(fs, nil, nil)
	p.Fd = fd
	p.AS = NewAddressSpace(ft, fd, stackTop)
	s.Spawn(name, priority, func(t *sched.TCB) {
		p.T = t
		p.run(entry)
	})
	return p
}

// run is every process's goroutine body: it recovers exitSignal (and
// only exitSignal) so a syscall-triggered exit anywhere in the call
// stack unwinds cleanly to here, then finishes the process. It
// deliberately does not call sched.Exit itself: the closure sched.Spawn
// runs already does that once this function returns (see Spawn's "entry
// then s.Exit()" body), so calling it here too would mark whatever
// thread happens to be current a second time -- by then not necessarily
// this one, since Exit's reschedule can already have handed current to
// another ready thread.
func (p *Process) run(entry func(*Process)) {
	status := -1
	func() {
		defer func() {
			if r := recover(); r != nil {
				if es, ok := r.(exitSignal); ok {
					status = es.status
					return
				}
				panic(r)
			}
		}()
		entry(p)
		status = 0
	}()
	p.finish(status)
}

// finish records a process's exit status, reclaims every frame and swap
// slot its address space still holds (spec.md §4.6's destroy(process),
// "called at process exit before the page directory is torn down"), and
// wakes whoever is waiting on it. The address space is torn down before
// ExitSem is signaled so a parent's Wait never observes a child as done
// while its pages are still counted against the frame table.
func (p *Process) finish(status int) {
	p.mu.Lock()
	p.exitCode = status
	p.mu.Unlock()
	p.AS.Destroy()
	fmt.Printf("%s: exit(%d)\n", p.T.Name, status)
	p.ExitSem.Up()
}

// Exit terminates the current process with status, matching the
// original's exit(): records the status, prints the exit line, and
// unwinds via exitSignal so nothing it called runs any further kernel
// code. It never returns.
func (p *Process) Exit(status int) {
	panic(exitSignal{status: status})
}

// Halt is a no-op in this hosted simulation: there is no hardware to
// power off, and calling os.Exit from a library would make this package
// untestable. cmd/kernel's run loop is expected to treat an explicit
// halt request (not modeled here, since nothing in spec.md's testable
// properties exercises it) as a signal to stop driving the timer.
func (p *Process) Halt() {
	klog.For("usyscall").WithField("tid", p.T.Tid).Info("halt requested")
}

// spawnChild creates a new process as a child of p, running entry on its
// own scheduled thread, and registers it in p's children map for a later
// Wait.
func (p *Process) spawnChild(name string, priority int, entry func(*Process)) *Process {
	child := &Process{
		sched:    p.sched,
		Parent:   p,
		ExitSem:  ksync.NewSemaphore(p.sched, 0),
		LoadSem:  ksync.NewSemaphore(p.sched, 0),
		children: make(map[int]*Process),
		reaped:   make(map[int]bool),
	}
	fd := NewFDTable(p.Fd.fs, p.Fd.stdout, p.Fd.stderr)
	child.Fd = fd
	child.AS = NewAddressSpace(p.AS.Frames, fd, p.AS.StackTop)

	t := p.sched.Spawn(name, priority, func(t *sched.TCB) {
		child.T = t
		child.run(entry)
	})

	p.mu.Lock()
	p.children[t.Tid] = child
	p.mu.Unlock()
	return child
}

// Exec implements spec.md §4.10's exec: copies cmdline out of user
// memory a page at a time, splits it into argv, spawns a child that
// places argv on its own stack, blocks on the child's load-completion
// semaphore, and returns the new tid or -1 if either the pointer was bad
// (exits the caller, per the general validation rule) or the child
// failed to load (a normal -1 return, not an exit).
func (p *Process) Exec(cmdlineVaddr uintptr, entry func(*Process, []string)) int {
	cmdline, err := p.AS.CopyInString(cmdlineVaddr, common.PGSIZE)
	if err != nil {
		p.Exit(-1)
	}
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		return -1
	}

	child := p.spawnChild(argv[0], sched.PriDefault, func(c *Process) {
		_, buildErr := buildArgvStack(c.AS, argv)
		c.mu.Lock()
		c.loadOK = buildErr == nil
		c.mu.Unlock()
		c.LoadSem.Up()
		if buildErr != nil {
			c.Exit(-1)
		}
		entry(c, argv)
	})

	child.LoadSem.Down()
	child.mu.Lock()
	ok := child.loadOK
	child.mu.Unlock()
	if !ok {
		return -1
	}
	return child.T.Tid
}

// Wait implements spec.md §4.10's wait: blocks on the child's exit
// semaphore and returns its exit status; a second wait on the same tid,
// or a wait on a tid that was never p's child, returns -1 (spec.md §9's
// wait-once semantics, grounded on process.c's wait()/process_wait()).
func (p *Process) Wait(tid int) int {
	p.mu.Lock()
	child, isChild := p.children[tid]
	alreadyReaped := p.reaped[tid]
	p.mu.Unlock()
	if !isChild || alreadyReaped {
		return -1
	}

	child.ExitSem.Down()
	child.mu.Lock()
	status := child.exitCode
	child.mu.Unlock()

	if err := p.sched.Reap(child.T); err != nil {
		klog.Panicf("usyscall", map[string]interface{}{"tid": tid, "err": err}, "wait observed exit but reap failed")
	}

	p.mu.Lock()
	p.reaped[tid] = true
	delete(p.children, tid)
	p.mu.Unlock()
	return status
}
