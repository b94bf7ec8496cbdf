// File: internal/normalize/normalizer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Index normalization for CPU pinning requests coming from configuration.

package normalize

import (
	"runtime"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mp.normalize")

// CPUIndex validates a requested CPU against the online CPU count.
// Negative requests mean "unpinned" and pass through as -1; requests at or
// beyond maxCPUs are logged and also mapped to -1.
func CPUIndex(requested, maxCPUs int) int {
	if requested < 0 {
		return -1
	}
	if maxCPUs < 1 || requested >= maxCPUs {
		log.Warningf("cpu %d outside [0, %d), leaving loop unpinned", requested, maxCPUs)
		return -1
	}
	return requested
}

// LocalCPU normalizes requested against this machine.
func LocalCPU(requested int) int {
	return CPUIndex(requested, runtime.NumCPU())
}
