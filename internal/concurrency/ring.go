// File: internal/concurrency/ring.go
// Package concurrency implements the bounded local rings used between the
// two execution contexts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RingBuffer holds data the event context has pulled out of shared queues
// until the interpreter context consumes it. One side only appends, the
// other only removes. Counters are free-running and masked on access.

package concurrency

import (
	"math/bits"
	"sync/atomic"
)

// RingBuffer is a single-producer, single-consumer ring of power-of-two size.
type RingBuffer[T any] struct {
	data []T
	mask uint64
	head atomic.Uint64 // consumer
	_    [64]byte
	tail atomic.Uint64 // producer
	_    [64]byte
}

// NewRingBuffer allocates a ring, rounding size up to a power of two.
func NewRingBuffer[T any](size uint64) *RingBuffer[T] {
	if size < 2 {
		size = 1
	} else {
		size = 1 << bits.Len64(size-1)
	}
	return &RingBuffer[T]{
		data: make([]T, size),
		mask: size - 1,
	}
}

// Enqueue appends item; returns false if full.
func (r *RingBuffer[T]) Enqueue(item T) bool {
	return r.EnqueueSlice([]T{item}) == 1
}

// EnqueueSlice appends as many leading items as fit and returns their count.
func (r *RingBuffer[T]) EnqueueSlice(items []T) int {
	tail := r.tail.Load()
	n := min(len(items), len(r.data)-int(tail-r.head.Load()))
	if n <= 0 {
		return 0
	}
	start := int(tail & r.mask)
	done := copy(r.data[start:], items[:n])
	copy(r.data, items[done:n])
	r.tail.Store(tail + uint64(n))
	return n
}

// Dequeue removes the oldest item; ok is false if empty.
func (r *RingBuffer[T]) Dequeue() (item T, ok bool) {
	var one [1]T
	if r.DequeueSlice(one[:]) == 0 {
		return item, false
	}
	return one[0], true
}

// DequeueSlice moves up to len(dst) of the oldest items into dst and
// returns their count. Vacated slots are zeroed.
func (r *RingBuffer[T]) DequeueSlice(dst []T) int {
	head := r.head.Load()
	n := min(len(dst), int(r.tail.Load()-head))
	if n <= 0 {
		return 0
	}
	start := int(head & r.mask)
	end := min(start+n, len(r.data))
	done := copy(dst, r.data[start:end])
	clear(r.data[start:end])
	copy(dst[done:n], r.data[:n-done])
	clear(r.data[:n-done])
	r.head.Store(head + uint64(n))
	return n
}

// Len returns the number of items currently held.
func (r *RingBuffer[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Free returns the number of items that can still be enqueued.
func (r *RingBuffer[T]) Free() int {
	return len(r.data) - r.Len()
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.data)
}
