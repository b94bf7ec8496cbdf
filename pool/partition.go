// File: pool/partition.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Partition statically splits a shared data region into count buffers of
// size bytes. Buffers are named by their byte offset, which is what the
// descriptor rings carry across the domain boundary.

package pool

import (
	"github.com/momentics/hioload-mp/api"
)

// Partition is a fixed N×B view of a data region.
type Partition struct {
	region []byte
	count  int
	size   int
}

// NewPartition validates that region can hold count buffers of size bytes.
func NewPartition(region []byte, count, size int) (*Partition, error) {
	if count <= 0 || size <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "partition needs positive count and size").
			WithContext("count", count).WithContext("size", size)
	}
	if need := count * size; len(region) < need {
		return nil, api.Wrap(api.ErrCodeInvalidArgument, api.ErrRegionTooSmall, "data region too small for partition").
			WithContext("need", need).WithContext("have", len(region))
	}
	return &Partition{region: region, count: count, size: size}, nil
}

// Count returns the number of buffers.
func (p *Partition) Count() int { return p.count }

// BufferSize returns the size of every buffer.
func (p *Partition) BufferSize() int { return p.size }

// Offset returns the offset of buffer i.
func (p *Partition) Offset(i int) uint64 {
	return uint64(i * p.size)
}

// Contains reports whether d lies inside one buffer of the partition.
func (p *Partition) Contains(d api.BufferDescriptor) bool {
	if d.Offset%uint64(p.size) != 0 {
		return false
	}
	return d.Offset/uint64(p.size) < uint64(p.count) && int(d.Len) <= p.size
}

// Slot returns the whole buffer that starts at off.
func (p *Partition) Slot(off uint64) ([]byte, error) {
	d := api.BufferDescriptor{Offset: off}
	if !p.Contains(d) {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "offset outside partition").
			WithContext("offset", off)
	}
	return p.region[off : off+uint64(p.size) : off+uint64(p.size)], nil
}

// Bytes returns the meaningful bytes named by d.
func (p *Partition) Bytes(d api.BufferDescriptor) ([]byte, error) {
	slot, err := p.Slot(d.Offset)
	if err != nil {
		return nil, err
	}
	if int(d.Len) > len(slot) {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "descriptor length exceeds buffer size").
			WithContext("len", d.Len)
	}
	return slot[:d.Len], nil
}
