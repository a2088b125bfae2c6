// Package interrupt models spec.md §4.1: enable/disable of interrupts,
// the "yield on return" flag external handlers set instead of calling the
// scheduler directly, and the syscall-vs-kernel context distinction the
// page-fault handler needs (spec.md §4.9 step 2).
//
// A hosted simulation has no real IF flag, but the kernel-core packages
// need the same mutual-exclusion discipline spec.md §5 describes
// ("interrupt disable is the primary mutual exclusion mechanism"): a
// single global lock stands in for "interrupts off", since this kernel is
// modeled as single-CPU/uniprocessor throughout (spec.md §5).
package interrupt

import "sync"

// Level mirrors the two states get_level/set_level operate on.
type Level bool

const (
	Off Level = false
	On  Level = true
)

var (
	mu         sync.Mutex
	level      Level = On
	yieldOnRet bool
	inSyscall  bool
)

// GetLevel returns whether interrupts are currently enabled.
func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return level
}

// SetLevel sets the interrupt level directly (used to restore a level
// captured earlier by Disable).
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	setLocked(l)
}

func setLocked(l Level) {
	if l == On && level == Off {
		level = On
	} else if l == Off && level == On {
		level = Off
	}
}

// Disable turns interrupts off and returns the prior level, matching
// intr_disable's return-previous-level contract used throughout the
// original source for save/restore pairs.
func Disable() Level {
	mu.Lock()
	defer mu.Unlock()
	prev := level
	level = Off
	return prev
}

// Enable turns interrupts on.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	level = On
}

// WithDisabled runs fn with interrupts disabled, restoring the prior
// level afterward. This is the idiom spec.md §4.3/§4.7 call for around
// donation-chain walks and clock victim selection.
func WithDisabled(fn func()) {
	prev := Disable()
	defer SetLevel(prev)
	fn()
}

// SetYieldOnReturn is called by an external interrupt handler (spec.md
// §4.1) that determined a higher-priority thread is now ready; it must
// not call the scheduler directly, only flag the request.
func SetYieldOnReturn() {
	mu.Lock()
	defer mu.Unlock()
	yieldOnRet = true
}

// TakeYieldOnReturn atomically reads and clears the flag; called once
// control returns from interrupt context.
func TakeYieldOnReturn() bool {
	mu.Lock()
	defer mu.Unlock()
	v := yieldOnRet
	yieldOnRet = false
	return v
}

// EnterSyscall/ExitSyscall bracket syscall-body execution so the
// page-fault handler (spec.md §4.9 step 2) can tell a fault that
// originated inside a syscall body apart from an ordinary kernel fault.
func EnterSyscall() {
	mu.Lock()
	defer mu.Unlock()
	inSyscall = true
}

func ExitSyscall() {
	mu.Lock()
	defer mu.Unlock()
	inSyscall = false
}

// InSyscall reports whether the calling context is inside a syscall
// body.
func InSyscall() bool {
	mu.Lock()
	defer mu.Unlock()
	return inSyscall
}
