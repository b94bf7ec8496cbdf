//go:build !linux
// +build !linux

// internal/shm/mmap_other.go
// Author: momentics <momentics@gmail.com>
//
// Fallback regions are word-aligned heap slices.

package shm

import "github.com/momentics/hioload-mp/pool"

func mapShared(size int) ([]byte, bool, error) {
	return pool.AlignedBytes(size), false, nil
}

func unmapShared([]byte) error { return nil }
