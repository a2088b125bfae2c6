// Package pagefault implements the demand-paging fault handler (spec.md
// §4.9), the glue between the supplemental page table, the frame
// table, and swap. Grounded on
// _examples/original_source/src/userprog/exception.c (page_fault's
// write-permission check, the stack-growth heuristic comparing the
// fault address to the faulting stack pointer) and the biscuit-fork
// Sys_pgfault in vm/as.go for the overall "look up, classify, install"
// shape of a Go-idiomatic fault handler.
package pagefault

import (
	"fmt"

	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/interrupt"
	"github.com/hyunhapark/kernelcore/internal/klog"
	"github.com/hyunhapark/kernelcore/internal/vm/frame"
	"github.com/hyunhapark/kernelcore/internal/vm/spt"
)

// FileSource reads a region of a backing file into buf, used to
// materialize spt.BackingFile pages. internal/usyscall's file
// descriptor table implements this; pagefault has no filesystem
// knowledge of its own (spec.md's Non-goals exclude filesystem
// internals).
type FileSource interface {
	ReadAt(fileID int, offset int64, buf []byte) (int, error)
}

// ErrUnmapped is returned for a fault on an address with no
// supplemental page table entry and no stack-growth justification --
// the caller should treat this as a segmentation violation and
// terminate the faulting process, not retry. Backed by common.EFAULT,
// the tier-2/3 return-code type the rest of the kernel core uses (spec.md
// §7), rather than a package-local sentinel.
var ErrUnmapped error = common.EFAULT

// ErrWriteToReadOnly is returned for a write fault on a page mapped
// read-only. Backed by common.EINVAL: the mapping itself is fine, the
// access against it is the invalid part.
var ErrWriteToReadOnly error = common.EINVAL

// StackGrowthSlack is how far below the faulting stack pointer an
// unmapped address may be and still be treated as legitimate stack
// growth, matching the PUSHA/PUSH convention the original's
// page_fault checks (a single push can fault 4 bytes below esp, PUSHA
// up to 32).
const StackGrowthSlack = 32

// MaxStackPages bounds how far the stack may grow downward from
// StackTop, matching the original's ambient stack size limit.
const MaxStackPages = 2048

// Handler ties the frame table, swap space, and a file source together
// to service faults against a single process's supplemental page
// table.
type Handler struct {
	Frames   *frame.Table
	Files    FileSource
	StackTop uintptr
}

// NewHandler constructs a Handler. files may be nil if the process has
// no file-backed segments to demand-page (pure in-memory test setups).
func NewHandler(ft *frame.Table, files FileSource, stackTop uintptr) *Handler {
	return &Handler{Frames: ft, Files: files, StackTop: stackTop}
}

// Handle services a fault at vaddr against tbl. write reports whether
// the faulting access was a write; esp is the faulting stack pointer
// (0 if the fault did not occur in user-syscall context, in which case
// stack growth is never inferred -- spec.md §4.9 step 2's
// syscall-vs-kernel distinction).
func (h *Handler) Handle(tbl *spt.Table, vaddr uintptr, write bool, esp uintptr) error {
	page := uintptr(common.Rounddown(int(vaddr), common.PGSIZE))
	entry := tbl.Lookup(page)

	if entry == nil {
		if !h.isStackGrowth(tbl, page, esp) {
			return ErrUnmapped
		}
		var ok bool
		entry, ok = tbl.Map(page, spt.BackingZero, spt.SegStack, true)
		if !ok {
			klog.Panicf("pagefault", nil, "stack growth map raced with an existing entry at %#x", page)
		}
	}

	if write && !entry.Writable {
		return ErrWriteToReadOnly
	}
	if entry.Present {
		// Already resolved (e.g. by an earlier fault on the same page).
		return nil
	}

	fte, err := h.Frames.Alloc(entry, tbl)
	if err != nil {
		return fmt.Errorf("pagefault: %w", err)
	}

	if err := h.materialize(fte, entry); err != nil {
		h.Frames.Free(fte)
		tbl.Destroy(page)
		return fmt.Errorf("pagefault: materialize: %w", err)
	}

	fte.Touch()
	if write {
		fte.MarkDirty()
	}
	tbl.MarkPresent(entry)
	return nil
}

func (h *Handler) materialize(fte *frame.FTE, entry *spt.SPTE) error {
	switch entry.Backing {
	case spt.BackingZero:
		// fte.Page is already zero-filled by frame.Table.Alloc.
		return nil
	case spt.BackingFile:
		if h.Files == nil {
			return fmt.Errorf("no file source configured")
		}
		n, err := h.Files.ReadAt(entry.File.FileID, entry.File.Offset, fte.Page[:entry.File.ReadBytes])
		if err != nil {
			return err
		}
		for i := n; i < len(fte.Page); i++ {
			fte.Page[i] = 0
		}
		return nil
	case spt.BackingSwap:
		return h.swapIn(fte, entry)
	default:
		return fmt.Errorf("unrecognized backing kind %v", entry.Backing)
	}
}

// swapIn reads entry's swap slot into fte.Page and releases the slot,
// matching the original's "swap_in always frees the slot" contract.
func (h *Handler) swapIn(fte *frame.FTE, entry *spt.SPTE) error {
	sp := h.Frames.SwapSpace()
	if err := sp.Load(entry.Swap.Slot, fte.Page); err != nil {
		return err
	}
	sp.FreeSlot(entry.Swap.Slot)
	return nil
}

// isStackGrowth applies the heuristic from the original's page_fault:
// an unmapped address is treated as stack growth only if it's within
// StackGrowthSlack bytes below the faulting esp (or at/above esp) and
// within MaxStackPages of the stack's top.
func (h *Handler) isStackGrowth(tbl *spt.Table, page uintptr, esp uintptr) bool {
	if esp == 0 {
		return false
	}
	if !interrupt.InSyscall() {
		// A nonzero esp only means anything when the fault happened
		// while copying a user buffer inside a syscall body (spec.md
		// §4.9 step 2); any other caller passing esp != 0 is a bug.
		klog.Panicf("pagefault", nil, "stack-growth esp hint supplied outside syscall context")
	}
	if page > h.StackTop {
		return false
	}
	if int64(esp)-int64(page) > StackGrowthSlack+common.PGSIZE {
		return false
	}
	depth := (int64(h.StackTop) - int64(page)) / common.PGSIZE
	return depth < MaxStackPages
}
