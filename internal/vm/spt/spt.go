// Package spt implements the supplemental page table: per-process
// records of what backs each virtual page that isn't yet resident,
// queried by the page-fault handler to decide how to materialize a
// frame (spec.md §4.6, §3 SPTE). Grounded on
// _examples/original_source/src/vm/page.h (struct spte, the
// BACKING_TYPE_{NONE,FILE,SWAP,ZERO} tagged union, SEGTYPE_{CODE,DATA,
// STACK,FILE}) and the biscuit-fork vm/as.go Vminfo_t/Vmregion_t style
// (capitalized constructors, per-process map guarded by the address
// space lock).
package spt

import (
	"sync"

	"github.com/hyunhapark/kernelcore/internal/common"
)

// BackingKind tags what currently backs a not-yet-resident page.
type BackingKind int

const (
	BackingNone BackingKind = iota
	BackingFile
	BackingSwap
	BackingZero
)

// SegmentKind records which part of the address space a page belongs
// to, used by the frame table's eviction classification (spec.md §4.7):
// code/file-backed pages are discarded on eviction if clean, data/stack
// pages are always written to swap.
type SegmentKind int

const (
	SegCode SegmentKind = iota
	SegData
	SegStack
	SegFile
)

// FileBacking describes the on-disk file region a page is demand-paged
// from (BackingFile), mirroring struct spte's file/ofs/read_bytes/
// zero_bytes fields.
type FileBacking struct {
	FileID    int
	Offset    int64
	ReadBytes int
}

// SwapBacking records the swap slot a page was evicted to (BackingSwap).
type SwapBacking struct {
	Slot int
}

// SPTE is one supplemental page table entry: everything needed to
// materialize vaddr's frame the first time it's touched, without a
// frame having been allocated for it yet.
type SPTE struct {
	Vaddr    uintptr
	Backing  BackingKind
	Segment  SegmentKind
	Writable bool

	File FileBacking
	Swap SwapBacking

	// Present is true once a frame has been installed for this page;
	// the page-fault handler uses this to recognize a fault on a page
	// that is already resident and returns success without allocating
	// another frame.
	Present bool
}

// Table is one process's supplemental page table: a map keyed by
// page-aligned virtual address. A plain map gives the O(1) average
// lookup spec.md requires; no pack library specializes page-table
// storage.
type Table struct {
	mu      sync.Mutex
	entries map[uintptr]*SPTE
}

// New constructs an empty table.
func New() *Table {
	return &Table{entries: make(map[uintptr]*SPTE)}
}

// pageOf rounds addr down to its containing page, matching the
// pg_round_down used throughout the original before any spte lookup.
func pageOf(addr uintptr) uintptr {
	return uintptr(common.Rounddown(int(addr), common.PGSIZE))
}

// Map installs an SPTE for vaddr's page (spec.md's spte_map). Returns
// false if an entry already exists there (overlapping mappings are a
// caller bug, not a runtime condition to recover from).
func (t *Table) Map(vaddr uintptr, backing BackingKind, seg SegmentKind, writable bool) (*SPTE, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	page := pageOf(vaddr)
	if _, exists := t.entries[page]; exists {
		return nil, false
	}
	e := &SPTE{Vaddr: page, Backing: backing, Segment: seg, Writable: writable}
	t.entries[page] = e
	return e, true
}

// Lookup returns the SPTE covering vaddr's page, or nil if none exists
// (an address truly unmapped, as opposed to mapped-but-not-resident).
func (t *Table) Lookup(vaddr uintptr) *SPTE {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[pageOf(vaddr)]
}

// Destroy removes vaddr's page's entry, matching spte_destroy; called
// by the page-fault handler to drop an entry whose page could not be
// materialized. Process exit clears the table with DestroyAll instead.
func (t *Table) Destroy(vaddr uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, pageOf(vaddr))
}

// MarkPresent flags an SPTE as resident once the page-fault handler has
// installed a frame for it.
func (t *Table) MarkPresent(e *SPTE) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Present = true
}

// MarkNotPresent clears Present without touching Backing, used when a
// clean page is simply discarded (its original backing -- file or zero
// -- can re-create it on the next fault, so there's nothing to write
// anywhere).
func (t *Table) MarkNotPresent(e *SPTE) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Present = false
}

// MarkEvicted rewrites an SPTE to reflect eviction to swap, clearing
// Present so the next access re-faults through Lookup.
func (t *Table) MarkEvicted(e *SPTE, slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Backing = BackingSwap
	e.Swap = SwapBacking{Slot: slot}
	e.Present = false
}

// Len returns the number of tracked entries, for diagnostics/tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a snapshot of every live SPTE. Used by the process
// layer's exit-time teardown (spec.md §4.6's destroy(process)) to walk
// every entry exactly once while releasing the frames and swap slots
// they reference.
func (t *Table) Entries() []*SPTE {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*SPTE, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// DestroyAll removes every entry, matching spte_destroy_all: called
// once at process exit, after the frames and swap slots reachable
// through Entries have already been released.
func (t *Table) DestroyAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[uintptr]*SPTE)
}
