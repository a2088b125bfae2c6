// Package frame implements the frame table and clock (second-chance)
// eviction policy (spec.md §4.7), the largest single VM component.
// Grounded on _examples/original_source/src/vm/frame.c/frame.h (struct
// fte, fte_reference for the accessed-bit second chance, frame_alloc's
// evict-on-exhaustion path) and vm/clock.c, reimplemented here over
// internal/ilist.Circular instead of a hand-rolled ring.
package frame

import (
	"fmt"
	"sync"

	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/ilist"
	"github.com/hyunhapark/kernelcore/internal/interrupt"
	"github.com/hyunhapark/kernelcore/internal/klog"
	"github.com/hyunhapark/kernelcore/internal/vm/spt"
	"github.com/hyunhapark/kernelcore/internal/vm/swap"
)

// FTE is one frame table entry: a resident physical page and enough
// back-reference to evict it (spec.md §3).
type FTE struct {
	Frame int
	Page  []byte // common.PGSIZE bytes of "physical" memory

	Owner *spt.SPTE // the supplemental entry this frame currently backs
	Table *spt.Table

	// Accessed/Dirty stand in for hardware MMU bits; there is no real
	// page table here, so collaborators (the page-fault handler, the
	// syscall read/write path) call Touch/MarkDirty explicitly at the
	// points a real CPU would set these bits.
	Accessed bool
	Dirty    bool

	ce ilist.CElem
}

// PhysAddr returns the simulated physical address backing this frame:
// its index in the frame table scaled by the page size, matching how
// biscuit derives a Pa_t from a frame number.
func (f *FTE) PhysAddr() common.Pa_t {
	return common.Pa_t(f.Frame * common.PGSIZE)
}

// Table is the frame table: every resident frame plus the clock hand
// used to pick an eviction victim.
type Table struct {
	mu    sync.Mutex
	pages [][]byte
	free  []bool
	byIdx map[int]*FTE
	ring  ilist.Circular
	swap  *swap.Space
}

// New constructs a frame table of frameCount physical frames, backed by
// sp for evicted pages.
func New(frameCount int, sp *swap.Space) *Table {
	t := &Table{
		pages: make([][]byte, frameCount),
		free:  make([]bool, frameCount),
		byIdx: make(map[int]*FTE),
		swap:  sp,
	}
	for i := range t.pages {
		t.pages[i] = make([]byte, common.PGSIZE)
		t.free[i] = true
	}
	return t
}

// Alloc reserves a frame for owner (evicting one via the clock
// algorithm if none is free) and returns it zero-filled.
func (t *Table) Alloc(owner *spt.SPTE, tbl *spt.Table) (*FTE, error) {
	var fte *FTE
	interrupt.WithDisabled(func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		idx := t.findFreeLocked()
		if idx < 0 {
			idx = t.evictLocked()
			if idx < 0 {
				return
			}
		}
		t.free[idx] = false
		for i := range t.pages[idx] {
			t.pages[idx][i] = 0
		}
		fte = &FTE{Frame: idx, Page: t.pages[idx], Owner: owner, Table: tbl}
		t.byIdx[idx] = fte
		t.ring.PushBack(&fte.ce, fte)
	})
	if fte == nil {
		return nil, fmt.Errorf("frame: out of frames and nothing evictable")
	}
	return fte, nil
}

func (t *Table) findFreeLocked() int {
	for i, f := range t.free {
		if f {
			return i
		}
	}
	return -1
}

// evictLocked runs the clock algorithm: give every frame with its
// accessed bit set one more pass (clearing the bit) before taking the
// first one found already clear (spec.md §4.7's second-chance policy).
// mu must be held; interrupts must already be disabled.
func (t *Table) evictLocked() int {
	n := t.ring.Len()
	if n == 0 {
		return -1
	}
	for i := 0; i < 2*n+1; i++ {
		victim := t.ring.Hand().(*FTE)
		if victim.Accessed {
			victim.Accessed = false
			t.ring.Advance()
			continue
		}
		t.ring.PopHand()
		t.writeBackLocked(victim)
		idx := victim.Frame
		delete(t.byIdx, idx)
		return idx
	}
	klog.Panicf("frame", nil, "clock algorithm failed to find a victim after %d steps", 2*n+1)
	return -1
}

// writeBackLocked classifies the victim and either discards it (clean,
// re-creatable from its original backing) or writes it to swap
// (dirty, or backed by nothing re-creatable) before it's reused.
func (t *Table) writeBackLocked(victim *FTE) {
	discard := !victim.Dirty && (victim.Owner.Segment == spt.SegCode || victim.Owner.Segment == spt.SegFile)
	if discard {
		victim.Table.MarkNotPresent(victim.Owner)
		return
	}
	slot := t.swap.GetSlot()
	if slot < 0 {
		klog.Panicf("frame", map[string]interface{}{"pa": victim.PhysAddr()}, "swap space exhausted evicting frame %d", victim.Frame)
	}
	if err := t.swap.Store(slot, victim.Page); err != nil {
		klog.Panicf("frame", map[string]interface{}{"err": err, "pa": victim.PhysAddr()}, "swap store failed during eviction")
	}
	victim.Table.MarkEvicted(victim.Owner, slot)
}

// Free releases a frame the caller is done with outright (e.g. a
// process exiting), without writing it back anywhere.
func (t *Table) Free(f *FTE) {
	interrupt.WithDisabled(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.ring.Remove(&f.ce)
		delete(t.byIdx, f.Frame)
		t.free[f.Frame] = true
	})
}

// Touch marks f as accessed, standing in for the hardware reference bit
// a real page-table walk would set.
func (f *FTE) Touch() { f.Accessed = true }

// MarkDirty marks f as modified, standing in for the hardware dirty
// bit.
func (f *FTE) MarkDirty() { f.Dirty = true }

// Resident returns the frame currently backing owner, or nil if owner's
// page isn't mapped to a frame right now. Grounded on frame_for_addr's
// "search the frame list for a match" idiom in the original; used by
// internal/usyscall's buffer translation to recover the byte slice
// behind a page the fault handler has already installed.
func (t *Table) Resident(owner *spt.SPTE) *FTE {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.byIdx {
		if f.Owner == owner {
			return f
		}
	}
	return nil
}

// SwapSpace returns the swap space this table evicts into, so
// collaborators (internal/vm/pagefault's swap-in path) can load a page
// back without the frame table needing its own Load wrapper.
func (t *Table) SwapSpace() *swap.Space { return t.swap }

// Len reports the number of currently resident frames, for diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byIdx)
}
