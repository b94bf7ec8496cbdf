// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Operation codes.

package protocol

import "fmt"

// Op identifies a storage command.
type Op uint8

const (
	OpOpen Op = iota + 1
	OpClose
	OpPread
	OpPwrite
	OpStat
	OpRename
	OpUnlink
	OpMkdir
	OpRmdir
	OpFsync
	OpOpendir
	OpReaddir
	OpSeekdir
	OpTelldir
	OpRewinddir
	OpClosedir
)

var opNames = map[Op]string{
	OpOpen:      "open",
	OpClose:     "close",
	OpPread:     "pread",
	OpPwrite:    "pwrite",
	OpStat:      "stat",
	OpRename:    "rename",
	OpUnlink:    "unlink",
	OpMkdir:     "mkdir",
	OpRmdir:     "rmdir",
	OpFsync:     "fsync",
	OpOpendir:   "opendir",
	OpReaddir:   "readdir",
	OpSeekdir:   "seekdir",
	OpTelldir:   "telldir",
	OpRewinddir: "rewinddir",
	OpClosedir:  "closedir",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	_, ok := opNames[o]
	return ok
}

// I2C transfer status codes.
const (
	I2CSuccess int32 = iota
	I2CNoDevice
	I2CNack
	I2CBadRequest
)

// Timer protected-call labels. SetTimeout takes a relative deadline in
// nanoseconds in Regs[0]; GetTime answers with nanoseconds since the timer
// started in Regs[0].
const (
	TimerGetTime uint64 = iota + 1
	TimerSetTimeout
)

// Framebuffer region header: little-endian width, height and bytes per
// pixel, followed by the pixels at FrameHeaderSize.
const FrameHeaderSize = 16
