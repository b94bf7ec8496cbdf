// File: core/queue/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Queue pairs a free ring and an active ring with the data region their
// descriptors point into. Whoever fills buffers takes them from free and
// publishes them on active; whoever drains active hands them back to free.
// Nothing here signals the peer: notification is a separate, explicit step
// taken by the side that produced new work.

package queue

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/pool"
)

// Regions are the three shared areas one queue binds to.
type Regions struct {
	Free   []byte
	Active []byte
	Data   []byte
}

// Queue is one direction of a buffer exchange with a peer domain.
type Queue struct {
	name   string
	free   *Ring
	active *Ring
	data   *pool.Partition
}

// New binds a queue of entries slots with bufSize byte buffers to regs.
// The side that owns initialization passes reset; the peer attaches later
// with reset false.
func New(name string, regs Regions, entries, bufSize int, reset bool) (*Queue, error) {
	free, err := NewRing(regs.Free, entries, reset)
	if err != nil {
		return nil, fmt.Errorf("queue %s: free ring: %w", name, err)
	}
	active, err := NewRing(regs.Active, entries, reset)
	if err != nil {
		return nil, fmt.Errorf("queue %s: active ring: %w", name, err)
	}
	data, err := pool.NewPartition(regs.Data, entries, bufSize)
	if err != nil {
		return nil, fmt.Errorf("queue %s: data region: %w", name, err)
	}
	return &Queue{name: name, free: free, active: active, data: data}, nil
}

// Format resets both ring headers of regs, as a loader zero-filling the
// regions would, so that either side can attach without reset.
func Format(regs Regions, entries int) error {
	if _, err := NewRing(regs.Free, entries, true); err != nil {
		return fmt.Errorf("format free ring: %w", err)
	}
	if _, err := NewRing(regs.Active, entries, true); err != nil {
		return fmt.Errorf("format active ring: %w", err)
	}
	return nil
}

// Name returns the queue label.
func (q *Queue) Name() string { return q.name }

// Populate fills the free ring with every buffer it can hold, which is one
// less than the pool size. It returns the number enqueued.
func (q *Queue) Populate() (int, error) {
	n := 0
	for i := 0; i < q.data.Count(); i++ {
		err := q.EnqueueFree(q.data.Offset(i), uint32(q.data.BufferSize()))
		if errors.Is(err, api.ErrQueueFull) {
			break
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// EnqueueFree hands an empty buffer to the filling side.
func (q *Queue) EnqueueFree(offset uint64, length uint32) error {
	return q.enqueue(q.free, api.BufferDescriptor{Offset: offset, Len: length})
}

// DequeueFree takes an empty buffer to fill.
func (q *Queue) DequeueFree() (api.BufferDescriptor, error) {
	return q.free.Dequeue()
}

// EnqueueActive publishes a filled buffer to the draining side.
func (q *Queue) EnqueueActive(offset uint64, length uint32) error {
	return q.enqueue(q.active, api.BufferDescriptor{Offset: offset, Len: length})
}

// DequeueActive takes the oldest filled buffer.
func (q *Queue) DequeueActive() (api.BufferDescriptor, error) {
	return q.active.Dequeue()
}

// Buffer returns the whole buffer a descriptor starts at, for filling.
func (q *Queue) Buffer(d api.BufferDescriptor) ([]byte, error) {
	return q.data.Slot(d.Offset)
}

// Bytes returns the filled part of a buffer.
func (q *Queue) Bytes(d api.BufferDescriptor) ([]byte, error) {
	return q.data.Bytes(d)
}

// BufferSize returns the size of every data buffer.
func (q *Queue) BufferSize() int { return q.data.BufferSize() }

// FreeRing exposes the free ring.
func (q *Queue) FreeRing() *Ring { return q.free }

// ActiveRing exposes the active ring.
func (q *Queue) ActiveRing() *Ring { return q.active }

// Full reports whether no more filled buffers can be published.
func (q *Queue) Full() bool { return q.active.Full() }

// Empty reports whether every buffer sits unused in the free ring.
func (q *Queue) Empty() bool { return q.free.Full() }

// Stats is the debug view of the queue.
func (q *Queue) Stats() map[string]any {
	return map[string]any{
		"free":     q.free.Len(),
		"active":   q.active.Len(),
		"capacity": q.free.Cap(),
	}
}

func (q *Queue) enqueue(r *Ring, d api.BufferDescriptor) error {
	if !q.data.Contains(d) {
		return api.Wrap(api.ErrCodeInvalidArgument, api.ErrInvalidArgument, "descriptor outside data region").
			WithContext("queue", q.name).WithContext("offset", d.Offset).WithContext("len", d.Len)
	}
	return r.Enqueue(d)
}
