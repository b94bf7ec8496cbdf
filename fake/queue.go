// Package fake
// Author: momentics <momentics@gmail.com>
//
// Shared queue regions backed by ordinary memory.

package fake

import (
	"github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/pool"
)

// Regions allocates and formats the three regions of one queue.
func Regions(entries, bufSize int) (queue.Regions, error) {
	regs := queue.Regions{
		Free:   pool.AlignedBytes(queue.RingRegionSize(entries)),
		Active: pool.AlignedBytes(queue.RingRegionSize(entries)),
		Data:   pool.AlignedBytes(entries * bufSize),
	}
	if err := queue.Format(regs, entries); err != nil {
		return queue.Regions{}, err
	}
	return regs, nil
}

// QueuePair returns two handles on the same freshly formatted queue: local
// for the domain under test and remote for the simulated peer.
func QueuePair(name string, entries, bufSize int) (local, remote *queue.Queue, err error) {
	regs, err := Regions(entries, bufSize)
	if err != nil {
		return nil, nil, err
	}
	if local, err = queue.New(name, regs, entries, bufSize, false); err != nil {
		return nil, nil, err
	}
	if remote, err = queue.New(name+".peer", regs, entries, bufSize, false); err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}
