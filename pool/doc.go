// Package pool
// Author: momentics <momentics@gmail.com>
//
// Fixed memory layer for hioload-mp. Arena carves the process-lifetime
// regions (interpreter stack and heap); Partition splits a shared data
// region into the N×B buffers referenced by descriptor rings. Nothing here
// grows after start-of-day.
package pool
