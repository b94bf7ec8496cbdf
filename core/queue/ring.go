// File: core/queue/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ring is a descriptor ring laid over a shared metadata region:
//
//	0   tail   uint32  next slot the producer writes
//	4   head   uint32  next slot the consumer reads
//	8   size   uint32  slot count, written at init for the peer to check
//	12  (reserved)
//	16  slots  [size]{offset uint64; len uint32; _ uint32}
//
// Indexes wrap modulo size. One slot is never filled, so tail == head means
// empty and tail+1 == head means full without a separate count. Only the
// producer stores tail and only the consumer stores head.

package queue

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-mp/api"
)

const (
	headerSize = 16
	slotSize   = 16
)

// RingRegionSize returns the metadata bytes needed for a ring of entries slots.
func RingRegionSize(entries int) int {
	return headerSize + entries*slotSize
}

// Ring implements api.DescriptorRing over shared memory.
type Ring struct {
	mem  []byte
	size uint32
	tail *uint32
	head *uint32
}

var _ api.DescriptorRing = (*Ring)(nil)

// NewRing binds a ring of entries slots to mem. With reset the header is
// zeroed and the slot count published; otherwise the published count must
// match entries.
func NewRing(mem []byte, entries int, reset bool) (*Ring, error) {
	if entries < 2 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "ring needs at least two slots").
			WithContext("entries", entries)
	}
	if len(mem) < RingRegionSize(entries) {
		return nil, api.Wrap(api.ErrCodeInvalidArgument, api.ErrRegionTooSmall, "ring metadata region too small").
			WithContext("need", RingRegionSize(entries)).WithContext("have", len(mem))
	}
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "ring metadata region not 8-byte aligned")
	}
	r := &Ring{
		mem:  mem,
		size: uint32(entries),
		tail: (*uint32)(unsafe.Pointer(&mem[0])),
		head: (*uint32)(unsafe.Pointer(&mem[4])),
	}
	sizeWord := (*uint32)(unsafe.Pointer(&mem[8]))
	if reset {
		atomic.StoreUint32(r.tail, 0)
		atomic.StoreUint32(r.head, 0)
		atomic.StoreUint32(sizeWord, r.size)
		return r, nil
	}
	if got := atomic.LoadUint32(sizeWord); got != r.size {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "ring slot count does not match peer layout").
			WithContext("published", got).WithContext("expected", r.size)
	}
	return r, nil
}

// Enqueue publishes d at the tail.
func (r *Ring) Enqueue(d api.BufferDescriptor) error {
	tail := atomic.LoadUint32(r.tail)
	head := atomic.LoadUint32(r.head)
	if (tail+1)%r.size == head {
		return api.ErrQueueFull
	}
	slot := r.slot(tail)
	binary.LittleEndian.PutUint64(slot[0:8], d.Offset)
	binary.LittleEndian.PutUint32(slot[8:12], d.Len)
	atomic.StoreUint32(r.tail, (tail+1)%r.size)
	return nil
}

// Dequeue takes the descriptor at the head.
func (r *Ring) Dequeue() (api.BufferDescriptor, error) {
	head := atomic.LoadUint32(r.head)
	tail := atomic.LoadUint32(r.tail)
	if head == tail {
		return api.BufferDescriptor{}, api.ErrQueueEmpty
	}
	slot := r.slot(head)
	d := api.BufferDescriptor{
		Offset: binary.LittleEndian.Uint64(slot[0:8]),
		Len:    binary.LittleEndian.Uint32(slot[8:12]),
	}
	atomic.StoreUint32(r.head, (head+1)%r.size)
	return d, nil
}

// Len returns the number of queued descriptors.
func (r *Ring) Len() int {
	tail := atomic.LoadUint32(r.tail)
	head := atomic.LoadUint32(r.head)
	return int((tail + r.size - head) % r.size)
}

// Cap returns the usable slot count, one less than the slot count.
func (r *Ring) Cap() int { return int(r.size) - 1 }

// Full reports whether Enqueue would fail.
func (r *Ring) Full() bool {
	return (atomic.LoadUint32(r.tail)+1)%r.size == atomic.LoadUint32(r.head)
}

// Empty reports whether Dequeue would fail.
func (r *Ring) Empty() bool {
	return atomic.LoadUint32(r.tail) == atomic.LoadUint32(r.head)
}

func (r *Ring) String() string {
	return fmt.Sprintf("ring{len=%d cap=%d}", r.Len(), r.Cap())
}

func (r *Ring) slot(i uint32) []byte {
	off := headerSize + int(i)*slotSize
	return r.mem[off : off+slotSize]
}
