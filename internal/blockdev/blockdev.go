// Package blockdev abstracts the sector-addressable storage device that
// internal/vm/swap pages out to. Non-goals exclude real device driver
// code (spec.md's Non-goals list), so this package generalizes
// biscuit's disk collaborator (main.go's trap_disk goroutine reading
// completions off a channel) down to the minimal interface swap needs,
// backed here by an in-memory implementation for the hosted simulation.
package blockdev

import (
	"fmt"

	"github.com/hyunhapark/kernelcore/internal/common"
)

// Device is a sector-addressable block device. Sector size is fixed at
// common.SectorSize, matching the original's BLOCK_SECTOR_SIZE.
type Device interface {
	Read(sector int64, buf []byte) error
	Write(sector int64, buf []byte) error
	SectorCount() int64
}

// Memory is an in-memory Device, standing in for the swap partition a
// real kernel would address directly; sized in sectors at construction.
type Memory struct {
	sectors [][common.SectorSize]byte
}

// NewMemory constructs a zero-filled in-memory device with the given
// sector count.
func NewMemory(sectorCount int64) *Memory {
	return &Memory{sectors: make([][common.SectorSize]byte, sectorCount)}
}

func (m *Memory) SectorCount() int64 { return int64(len(m.sectors)) }

func (m *Memory) Read(sector int64, buf []byte) error {
	if err := m.checkBounds(sector, buf); err != nil {
		return err
	}
	copy(buf, m.sectors[sector][:])
	return nil
}

func (m *Memory) Write(sector int64, buf []byte) error {
	if err := m.checkBounds(sector, buf); err != nil {
		return err
	}
	copy(m.sectors[sector][:], buf)
	return nil
}

func (m *Memory) checkBounds(sector int64, buf []byte) error {
	if sector < 0 || sector >= int64(len(m.sectors)) {
		return fmt.Errorf("blockdev: sector %d out of range [0,%d)", sector, len(m.sectors))
	}
	if len(buf) != common.SectorSize {
		return fmt.Errorf("blockdev: buffer length %d != sector size %d", len(buf), common.SectorSize)
	}
	return nil
}
