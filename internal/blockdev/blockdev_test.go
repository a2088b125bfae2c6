package blockdev

import (
	"bytes"
	"testing"

	"github.com/hyunhapark/kernelcore/internal/common"
)

func TestMemoryReadWrite(t *testing.T) {
	dev := NewMemory(4)
	want := bytes.Repeat([]byte{0xab}, common.SectorSize)
	if err := dev.Write(2, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, common.SectorSize)
	if err := dev.Read(2, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back mismatch")
	}
	// Unwritten sectors stay zero.
	zero := make([]byte, common.SectorSize)
	if err := dev.Read(0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, zero) {
		t.Fatalf("unwritten sector should be zero")
	}
}

func TestMemoryBounds(t *testing.T) {
	dev := NewMemory(1)
	buf := make([]byte, common.SectorSize)
	if err := dev.Read(1, buf); err == nil {
		t.Fatalf("expected out-of-range error")
	}
	if err := dev.Write(-1, buf); err == nil {
		t.Fatalf("expected out-of-range error")
	}
	if err := dev.Read(0, make([]byte, 1)); err == nil {
		t.Fatalf("expected wrong-size buffer error")
	}
}
