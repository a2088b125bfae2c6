package frame

import (
	"testing"

	"github.com/hyunhapark/kernelcore/internal/blockdev"
	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/vm/spt"
	"github.com/hyunhapark/kernelcore/internal/vm/swap"
)

func newSwap() *swap.Space {
	dev := blockdev.NewMemory(common.SectorsPerPage * 8)
	return swap.New(dev)
}

func TestAllocUsesFreeFramesFirst(t *testing.T) {
	ft := New(2, newSwap())
	tbl := spt.New()
	e1, _ := tbl.Map(0x1000, spt.BackingZero, spt.SegStack, true)
	e2, _ := tbl.Map(0x2000, spt.BackingZero, spt.SegStack, true)

	f1, err := ft.Alloc(e1, tbl)
	if err != nil {
		t.Fatalf("Alloc 1: %v", err)
	}
	f2, err := ft.Alloc(e2, tbl)
	if err != nil {
		t.Fatalf("Alloc 2: %v", err)
	}
	if f1.Frame == f2.Frame {
		t.Fatalf("two allocations returned the same frame")
	}
	if ft.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ft.Len())
	}
}

func TestClockGivesAccessedFramesASecondChance(t *testing.T) {
	ft := New(2, newSwap())
	tbl := spt.New()
	eA, _ := tbl.Map(0x1000, spt.BackingZero, spt.SegStack, true)
	eB, _ := tbl.Map(0x2000, spt.BackingZero, spt.SegStack, true)
	eC, _ := tbl.Map(0x3000, spt.BackingZero, spt.SegStack, true)

	fA, _ := ft.Alloc(eA, tbl)
	_, _ = ft.Alloc(eB, tbl)

	// Mark the first frame accessed so the clock must skip over it at
	// least once before picking a victim.
	fA.Touch()

	fC, err := ft.Alloc(eC, tbl)
	if err != nil {
		t.Fatalf("Alloc after eviction: %v", err)
	}
	if fC.Owner != eC {
		t.Fatalf("newly allocated frame should back the new entry")
	}
	if ft.Len() != 2 {
		t.Fatalf("Len() after eviction = %d, want 2 (still at capacity)", ft.Len())
	}
	// fA's accessed bit should have been cleared by its reprieve.
	if fA.Accessed {
		t.Fatalf("surviving frame's accessed bit should be cleared by the second-chance pass")
	}
}

func TestDirtyVictimGoesToSwap(t *testing.T) {
	ft := New(1, newSwap())
	tbl := spt.New()
	eA, _ := tbl.Map(0x1000, spt.BackingZero, spt.SegStack, true)
	eB, _ := tbl.Map(0x2000, spt.BackingZero, spt.SegStack, true)

	fA, _ := ft.Alloc(eA, tbl)
	fA.MarkDirty()
	copy(fA.Page, []byte("hello"))

	if _, err := ft.Alloc(eB, tbl); err != nil {
		t.Fatalf("Alloc after eviction: %v", err)
	}
	if eA.Backing != spt.BackingSwap {
		t.Fatalf("dirty stack page should be evicted to swap, got backing=%v", eA.Backing)
	}
	if eA.Present {
		t.Fatalf("evicted entry should no longer be marked present")
	}
}

func TestFreeReturnsFrameToPool(t *testing.T) {
	ft := New(1, newSwap())
	tbl := spt.New()
	eA, _ := tbl.Map(0x1000, spt.BackingZero, spt.SegStack, true)
	fA, _ := ft.Alloc(eA, tbl)
	ft.Free(fA)
	if ft.Len() != 0 {
		t.Fatalf("Len() after Free = %d, want 0", ft.Len())
	}

	eB, _ := tbl.Map(0x2000, spt.BackingZero, spt.SegStack, true)
	if _, err := ft.Alloc(eB, tbl); err != nil {
		t.Fatalf("Alloc after Free should reuse the freed frame without error: %v", err)
	}
}
