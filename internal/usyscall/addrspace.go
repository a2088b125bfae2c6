// Package usyscall models the collaborator interface spec.md §4.10
// describes: syscall bodies expressed as Go methods against a process's
// address space and file table, instead of a raw x86 trap frame decode
// (common.TFSIZE in biscuit). Grounded on
// _examples/original_source/src/userprog/syscall.c (the
// halt/exit/exec/wait/create/remove/open/close/read/write/seek/tell/
// filesize set, strlbond/str_over_boundary's page-by-page string copy,
// user_vtop's per-page buffer translation) and biscuit's userio_i /
// fakeubuf_t idea of a small interface letting kernel code move bytes
// to/from "user" memory uniformly.
package usyscall

import (
	"encoding/binary"

	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/vm/frame"
	"github.com/hyunhapark/kernelcore/internal/vm/pagefault"
	"github.com/hyunhapark/kernelcore/internal/vm/spt"
)

// ErrBadPointer is returned for any user pointer or buffer that fails
// validation: above PhysBase, unmapped, or a write through a read-only
// mapping. Every syscall treats this the same way spec.md §4.10
// prescribes -- the calling process exits with status -1. Backed by
// common.EFAULT rather than a package-local sentinel, matching the
// tier-2/3 common.Err_t return-code idiom the rest of the kernel core
// uses (spec.md §7).
var ErrBadPointer error = common.EFAULT

// ErrStringTooLong is returned when a NUL-terminated user string exceeds
// the caller-supplied bound (mirrors strlbond's size cap). Backed by
// common.ENAMETOOLONG.
var ErrStringTooLong error = common.ENAMETOOLONG

// UserIO is the seam biscuit's fakeubuf_t/userio_i occupy: moving bytes
// between kernel buffers and a process's user address space, re-deriving
// the mapping on every page crossing so a demand-paged page in the
// middle of a transfer is faulted in rather than read through a stale
// translation.
type UserIO interface {
	CopyOut(dst []byte, vaddr uintptr) error
	CopyIn(vaddr uintptr, src []byte) error
	CopyInString(vaddr uintptr, maxLen int) (string, error)
}

// AddressSpace is one process's virtual memory: its supplemental page
// table, the frame table it shares with every other process (there is
// one physical memory), and the page-fault handler used to resolve
// not-yet-resident pages encountered while translating a user pointer.
type AddressSpace struct {
	Table    *spt.Table
	Frames   *frame.Table
	Handler  *pagefault.Handler
	StackTop uintptr
}

// NewAddressSpace constructs an address space and maps the single
// initial stack page the original's setup_stack installs before any
// argument is placed on it.
func NewAddressSpace(ft *frame.Table, files pagefault.FileSource, stackTop uintptr) *AddressSpace {
	tbl := spt.New()
	as := &AddressSpace{
		Table:    tbl,
		Frames:   ft,
		Handler:  pagefault.NewHandler(ft, files, stackTop),
		StackTop: stackTop,
	}
	tbl.Map(stackTop-common.PGSIZE, spt.BackingZero, spt.SegStack, true)
	return as
}

// Destroy releases every resource this address space still references:
// each resident page's frame goes back to the shared frame pool, and
// each evicted (non-resident) page's swap slot goes back to the swap
// bitmap, before the supplemental page table itself is cleared.
// Mirrors spec.md §4.6's destroy(process) -- "releases all entries;
// called at process exit before the page directory is torn down" --
// and is the piece that makes the frame-table reference-count invariant
// (spec.md §8) hold once a process exits rather than leaking its pages
// forever.
func (as *AddressSpace) Destroy() {
	for _, e := range as.Table.Entries() {
		switch {
		case e.Present:
			if fte := as.Frames.Resident(e); fte != nil {
				as.Frames.Free(fte)
			}
		case e.Backing == spt.BackingSwap:
			as.Frames.SwapSpace().FreeSlot(e.Swap.Slot)
		}
	}
	as.Table.DestroyAll()
}

// translatePage returns the resident byte slice backing vaddr's page,
// starting at vaddr's in-page offset, faulting the page in if it is
// mapped but not yet resident. It does not infer stack growth for an
// address with no supplemental page table entry at all: stack growth is
// a property of the hardware-triggered page_fault handler reacting to a
// real stack pointer, not of a syscall copying an argument buffer
// (user_vtop in the original never grows the stack either).
func (as *AddressSpace) translatePage(vaddr uintptr, write bool) ([]byte, error) {
	if vaddr >= common.PhysBase {
		return nil, ErrBadPointer
	}
	entry := as.Table.Lookup(vaddr)
	if entry == nil {
		return nil, ErrBadPointer
	}
	if write && !entry.Writable {
		return nil, ErrBadPointer
	}
	if !entry.Present {
		if err := as.Handler.Handle(as.Table, vaddr, write, 0); err != nil {
			return nil, ErrBadPointer
		}
	}
	fte := as.Frames.Resident(entry)
	if fte == nil {
		return nil, ErrBadPointer
	}
	fte.Touch()
	if write {
		fte.MarkDirty()
	}
	off := int(vaddr) & common.PGOFFSET
	return fte.Page[off:], nil
}

// CopyOut reads len(dst) bytes starting at vaddr into dst, translating
// one page at a time and re-translating after each crossing (spec.md
// §4.10's "re-translation after each page crossing" requirement).
func (as *AddressSpace) CopyOut(dst []byte, vaddr uintptr) error {
	remaining := dst
	addr := vaddr
	for len(remaining) > 0 {
		chunk, err := as.translatePage(addr, false)
		if err != nil {
			return err
		}
		n := len(remaining)
		if n > len(chunk) {
			n = len(chunk)
		}
		copy(remaining[:n], chunk[:n])
		remaining = remaining[n:]
		addr += uintptr(n)
	}
	return nil
}

// CopyIn writes src into the user address space starting at vaddr, with
// the same page-by-page translation CopyOut uses.
func (as *AddressSpace) CopyIn(vaddr uintptr, src []byte) error {
	remaining := src
	addr := vaddr
	for len(remaining) > 0 {
		chunk, err := as.translatePage(addr, true)
		if err != nil {
			return err
		}
		n := len(remaining)
		if n > len(chunk) {
			n = len(chunk)
		}
		copy(chunk[:n], remaining[:n])
		remaining = remaining[n:]
		addr += uintptr(n)
	}
	return nil
}

// CopyInString reads a NUL-terminated string starting at vaddr, up to
// maxLen bytes, exactly mirroring strlbond/str_over_boundary's
// page-by-page scan for the terminator instead of assuming the whole
// string lies in one page.
func (as *AddressSpace) CopyInString(vaddr uintptr, maxLen int) (string, error) {
	buf := make([]byte, 0, 64)
	addr := vaddr
	for len(buf) < maxLen {
		chunk, err := as.translatePage(addr, false)
		if err != nil {
			return "", err
		}
		pageRemain := common.PGSIZE - (int(addr) & common.PGOFFSET)
		if pageRemain > len(chunk) {
			pageRemain = len(chunk)
		}
		for i := 0; i < pageRemain; i++ {
			if chunk[i] == 0 {
				return string(buf), nil
			}
			if len(buf) >= maxLen {
				return "", ErrStringTooLong
			}
			buf = append(buf, chunk[i])
		}
		addr += uintptr(pageRemain)
	}
	return "", ErrStringTooLong
}

// buildArgvStack writes argv's strings and a NUL-terminated pointer
// array onto the process's single pre-mapped stack page, pointers in
// argv[0]-first order (spec.md §9's resolved ambiguity: the original's
// kernel-vs-user pointer arithmetic bug is not reproduced). Returns the
// address of the pointer array (argv itself). Fails with ErrBadPointer
// if argv overflows the single pre-mapped page, which exec reports as a
// load failure rather than a segfaulting child.
func buildArgvStack(as *AddressSpace, argv []string) (uintptr, error) {
	sp := as.StackTop
	ptrs := make([]uintptr, len(argv))
	for i, a := range argv {
		b := append([]byte(a), 0)
		sp -= uintptr(len(b))
		if err := as.CopyIn(sp, b); err != nil {
			return 0, err
		}
		ptrs[i] = sp
	}
	sp &^= 3 // word-align, matching the original's push of a uint32 array

	argvBase := sp - uintptr(4*(len(ptrs)+1))
	word := make([]byte, 4)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(word, uint32(p))
		if err := as.CopyIn(argvBase+uintptr(4*i), word); err != nil {
			return 0, err
		}
	}
	binary.LittleEndian.PutUint32(word, 0)
	if err := as.CopyIn(argvBase+uintptr(4*len(ptrs)), word); err != nil {
		return 0, err
	}
	return argvBase, nil
}
