package pagefault

import (
	"bytes"
	"testing"

	"github.com/hyunhapark/kernelcore/internal/blockdev"
	"github.com/hyunhapark/kernelcore/internal/common"
	"github.com/hyunhapark/kernelcore/internal/interrupt"
	"github.com/hyunhapark/kernelcore/internal/vm/frame"
	"github.com/hyunhapark/kernelcore/internal/vm/spt"
	"github.com/hyunhapark/kernelcore/internal/vm/swap"
)

func newHandler(frames int) (*Handler, *spt.Table) {
	dev := blockdev.NewMemory(common.SectorsPerPage * 8)
	ft := frame.New(frames, swap.New(dev))
	tbl := spt.New()
	return NewHandler(ft, nil, 0x80000000), tbl
}

func TestHandleZeroBackedFault(t *testing.T) {
	h, tbl := newHandler(4)
	tbl.Map(0x1000, spt.BackingZero, spt.SegStack, true)

	if err := h.Handle(tbl, 0x1003, false, 0); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	e := tbl.Lookup(0x1000)
	if !e.Present {
		t.Fatalf("entry should be present after a successful fault")
	}
}

func TestHandleUnmappedFaultsWithoutStackHint(t *testing.T) {
	h, tbl := newHandler(4)
	if err := h.Handle(tbl, 0x9999, false, 0); err != ErrUnmapped {
		t.Fatalf("Handle = %v, want ErrUnmapped", err)
	}
}

func TestHandleWriteToReadOnly(t *testing.T) {
	h, tbl := newHandler(4)
	tbl.Map(0x1000, spt.BackingZero, spt.SegCode, false)
	if err := h.Handle(tbl, 0x1000, true, 0); err != ErrWriteToReadOnly {
		t.Fatalf("Handle = %v, want ErrWriteToReadOnly", err)
	}
}

func TestHandleSwapRoundTrip(t *testing.T) {
	h, tbl := newHandler(4)
	e, _ := tbl.Map(0x1000, spt.BackingZero, spt.SegStack, true)
	if err := h.Handle(tbl, 0x1000, false, 0); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// Simulate an earlier eviction by hand: stash a known pattern into
	// swap and rewrite the entry as swap-backed, not present.
	slot := h.Frames.SwapSpace().GetSlot()
	page := bytes.Repeat([]byte{0x42}, common.PGSIZE)
	if err := h.Frames.SwapSpace().Store(slot, page); err != nil {
		t.Fatalf("Store: %v", err)
	}
	tbl.MarkEvicted(e, slot)

	if err := h.Handle(tbl, 0x1044, false, 0); err != nil {
		t.Fatalf("Handle after swap-in: %v", err)
	}
	if !e.Present {
		t.Fatalf("entry should be present again after swap-in")
	}
}

func TestStackGrowthRequiresSyscallContext(t *testing.T) {
	h, tbl := newHandler(4)
	interrupt.EnterSyscall()
	defer interrupt.ExitSyscall()

	esp := h.StackTop - 4
	if err := h.Handle(tbl, h.StackTop-common.PGSIZE, false, esp); err != nil {
		t.Fatalf("stack growth should succeed: %v", err)
	}
}
