//go:build linux
// +build linux

// internal/shm/mmap_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux regions are anonymous shared mappings, page aligned.

package shm

import (
	"golang.org/x/sys/unix"
)

func mapShared(size int) ([]byte, bool, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func unmapShared(data []byte) error {
	return unix.Munmap(data)
}
