// Package api
// Author: momentics@gmail.com
//
// Shared-memory descriptor rings exchanged with peer domains.

package api

// BufferDescriptor names one buffer of a data pool region.
type BufferDescriptor struct {
	// Offset is the byte offset of the buffer inside its data region.
	Offset uint64
	// Len is the number of meaningful bytes.
	Len uint32
}

// DescriptorRing is a single-producer/single-consumer ring of descriptors.
// One slot is never used so that full and empty stay distinguishable.
type DescriptorRing interface {
	// Enqueue adds a descriptor, returns ErrQueueFull at capacity.
	Enqueue(d BufferDescriptor) error
	// Dequeue removes the oldest descriptor, returns ErrQueueEmpty.
	Dequeue() (BufferDescriptor, error)
	// Len returns current number of descriptors.
	Len() int
	// Cap returns the number of usable slots.
	Cap() int
	Full() bool
	Empty() bool
}
