// File: pool/arena.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Arena is a bump allocator over one fixed slab. Allocations live as long
// as the arena; nothing is ever freed or resized. The interpreter stack and
// heap are carved from it at start-of-day.

package pool

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/momentics/hioload-mp/api"
)

// arenaAlign keeps every allocation word-aligned for atomic access.
const arenaAlign = 16

// Arena hands out non-overlapping fixed-size regions of one slab.
type Arena struct {
	mu    sync.Mutex
	slab  []byte
	used  int
	names []string
}

// NewArena allocates a slab of size bytes.
func NewArena(size int) *Arena {
	return &Arena{slab: AlignedBytes(size)}
}

// Alloc carves size bytes off the arena.
func (a *Arena) Alloc(name string, size int) ([]byte, error) {
	if size <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "arena allocation size must be positive").
			WithContext("name", name).WithContext("size", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	start := (a.used + arenaAlign - 1) &^ (arenaAlign - 1)
	if start+size > len(a.slab) {
		return nil, api.Wrap(api.ErrCodeResourceExhausted, api.ErrResourceExhausted,
			fmt.Sprintf("arena exhausted allocating %q", name)).
			WithContext("size", size).WithContext("free", len(a.slab)-start)
	}
	a.used = start + size
	a.names = append(a.names, name)
	return a.slab[start : start+size : start+size], nil
}

// Used returns the number of bytes handed out, alignment included.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Size returns the slab size.
func (a *Arena) Size() int { return len(a.slab) }

// Stats returns the allocation view for debug probes.
func (a *Arena) Stats() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"size":   len(a.slab),
		"used":   a.used,
		"allocs": append([]string(nil), a.names...),
	}
}

// AlignedBytes returns a zeroed 8-byte aligned slice of exactly n bytes.
func AlignedBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}
