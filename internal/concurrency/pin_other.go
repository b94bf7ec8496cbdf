//go:build !linux

// File: internal/concurrency/pin_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "runtime"

// PinCurrentThread locks the goroutine to its thread; affinity is not
// available on this platform.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	return nil
}

// UnpinCurrentThread unlocks the thread.
func UnpinCurrentThread() {
	runtime.UnlockOSThread()
}
