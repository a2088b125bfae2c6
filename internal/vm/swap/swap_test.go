package swap

import (
	"bytes"
	"testing"

	"github.com/hyunhapark/kernelcore/internal/blockdev"
	"github.com/hyunhapark/kernelcore/internal/common"
)

func TestGetFreeSlotRoundTrip(t *testing.T) {
	dev := blockdev.NewMemory(common.SectorsPerPage * 4)
	sp := New(dev)
	if got := sp.FreeSlots(); got != 4 {
		t.Fatalf("FreeSlots = %d, want 4", got)
	}

	slot := sp.GetSlot()
	if slot < 0 {
		t.Fatalf("GetSlot should succeed with free slots available")
	}
	page := bytes.Repeat([]byte{0x5a}, common.PGSIZE)
	if err := sp.Store(slot, page); err != nil {
		t.Fatalf("Store: %v", err)
	}

	back := make([]byte, common.PGSIZE)
	if err := sp.Load(slot, back); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(back, page) {
		t.Fatalf("loaded page does not match stored page")
	}

	sp.FreeSlot(slot)
	if got := sp.FreeSlots(); got != 4 {
		t.Fatalf("FreeSlots after FreeSlot = %d, want 4", got)
	}
}

func TestGetSlotExhaustion(t *testing.T) {
	dev := blockdev.NewMemory(common.SectorsPerPage)
	sp := New(dev)
	if sp.GetSlot() < 0 {
		t.Fatalf("first GetSlot should succeed")
	}
	if sp.GetSlot() != -1 {
		t.Fatalf("GetSlot should return -1 once exhausted")
	}
}
