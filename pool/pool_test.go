package pool_test

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/pool"
)

func TestArenaAllocatesAlignedAndBounded(t *testing.T) {
	a := pool.NewArena(64 * 1024)
	stack, err := a.Alloc("stack", 4097)
	if err != nil {
		t.Fatal(err)
	}
	heap, err := a.Alloc("heap", 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(stack) != 4097 || cap(stack) != 4097 {
		t.Errorf("stack len/cap = %d/%d", len(stack), cap(stack))
	}
	if uintptr(unsafe.Pointer(&heap[0]))%16 != 0 {
		t.Error("heap allocation not 16-byte aligned")
	}
	if _, err := a.Alloc("huge", 1<<20); !errors.Is(err, api.ErrResourceExhausted) {
		t.Fatalf("err = %v, want ErrResourceExhausted", err)
	}
}

func TestPartitionBounds(t *testing.T) {
	region := pool.AlignedBytes(4 * 128)
	p, err := pool.NewPartition(region, 4, 128)
	if err != nil {
		t.Fatal(err)
	}
	if p.Offset(3) != 384 {
		t.Errorf("Offset(3) = %d", p.Offset(3))
	}
	if p.Contains(api.BufferDescriptor{Offset: 512}) {
		t.Error("offset past the last buffer accepted")
	}
	if p.Contains(api.BufferDescriptor{Offset: 10}) {
		t.Error("unaligned offset accepted")
	}
	if _, err := p.Bytes(api.BufferDescriptor{Offset: 128, Len: 129}); err == nil {
		t.Error("oversized descriptor accepted")
	}
	if _, err := pool.NewPartition(region, 5, 128); !errors.Is(err, api.ErrRegionTooSmall) {
		t.Errorf("err = %v, want ErrRegionTooSmall", err)
	}
}
