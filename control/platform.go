// control/platform.go
// Author: momentics <momentics@gmail.com>
//
// Platform probes shared by every deployment.

package control

import (
	"runtime"
)

// RegisterPlatformProbes sets process-level debug metrics.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.goroutines", func() any {
		return runtime.NumGoroutine()
	})
	dp.RegisterProbe("platform.os", func() any {
		return runtime.GOOS + "/" + runtime.GOARCH
	})
}
