// Package swap implements the swap slot allocator and the page-sized
// read/write path over a block device (spec.md §4.8). Grounded on
// _examples/original_source/src/vm/swap.c/swap.h (a bitmap of free
// slots, each slot common.SectorsPerPage sectors wide). The bitmap has
// its own lock; Store and Load take no lock, so slot allocation never
// waits on device I/O, and Space does not serialize device access.
package swap

import (
	"fmt"
	"sync"

	"github.com/hyunhapark/kernelcore/internal/blockdev"
	"github.com/hyunhapark/kernelcore/internal/common"
)

// Space manages the free-slot bitmap over dev. A []bool bitmap is the
// stdlib-only, no-library answer here: no pack dependency offers a
// bitset, and a slice of bool is the simplest correct representation
// for the size this runs at (thousands of slots, not millions).
type Space struct {
	dev  blockdev.Device
	mu   sync.Mutex
	free []bool // true = free
}

// New constructs a swap Space covering every whole page-sized slot dev
// has room for.
func New(dev blockdev.Device) *Space {
	slots := dev.SectorCount() / common.SectorsPerPage
	sp := &Space{dev: dev, free: make([]bool, slots)}
	for i := range sp.free {
		sp.free[i] = true
	}
	return sp
}

// GetSlot reserves and returns the index of a free slot, or -1 if the
// swap space is exhausted (spec.md: callers treat this as ENOSPC, a
// recoverable condition, not a tier-1 panic).
func (sp *Space) GetSlot() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for i, f := range sp.free {
		if f {
			sp.free[i] = false
			return i
		}
	}
	return -1
}

// FreeSlot releases slot back to the pool.
func (sp *Space) FreeSlot(slot int) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if slot < 0 || slot >= len(sp.free) {
		return
	}
	sp.free[slot] = true
}

// Store writes a full page's worth of data to slot, one sector at a
// time.
func (sp *Space) Store(slot int, page []byte) error {
	if len(page) != common.PGSIZE {
		return fmt.Errorf("swap: page must be %d bytes, got %d", common.PGSIZE, len(page))
	}
	base := int64(slot) * common.SectorsPerPage
	for i := 0; i < common.SectorsPerPage; i++ {
		off := i * common.SectorSize
		if err := sp.dev.Write(base+int64(i), page[off:off+common.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// Load reads slot's page back into page.
func (sp *Space) Load(slot int, page []byte) error {
	if len(page) != common.PGSIZE {
		return fmt.Errorf("swap: page must be %d bytes, got %d", common.PGSIZE, len(page))
	}
	base := int64(slot) * common.SectorsPerPage
	for i := 0; i < common.SectorsPerPage; i++ {
		off := i * common.SectorSize
		if err := sp.dev.Read(base+int64(i), page[off:off+common.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// FreeSlots reports how many slots remain unused, for diagnostics.
func (sp *Space) FreeSlots() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	n := 0
	for _, f := range sp.free {
		if f {
			n++
		}
	}
	return n
}
