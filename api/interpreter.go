// File: api/interpreter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The interpreter collaborator and the host calls it may use. Host calls
// may suspend the interpreter context; they must never be invoked from the
// event context.

package api

import "time"

// Console is the serial stdin/stdout pair.
type Console interface {
	// ReadByte blocks until one input byte is available.
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
}

// Timer provides time-based wakeups.
type Timer interface {
	Sleep(d time.Duration) error
	Now() (time.Duration, error)
}

// Bus performs one write-then-read transaction against a bus device.
type Bus interface {
	Transfer(addr uint16, write []byte, readLen int) ([]byte, error)
}

// Display hands a frame to the framebuffer owner and waits for it to be taken.
type Display interface {
	Send(pixels []byte, width, height int) error
}

// RunMode selects between interactive and single-shot execution.
type RunMode string

const (
	ModeREPL RunMode = "repl"
	ModeExec RunMode = "exec"
)

// Env is everything the interpreter gets at initialization.
// Bus and Display are nil when the deployment does not wire them.
type Env struct {
	Console Console
	Storage Storage
	Timer   Timer
	Bus     Bus
	Display Display
	// Heap is the fixed arena the interpreter may use for its own state.
	Heap []byte
	Mode RunMode
	// Script is the storage path executed in ModeExec.
	Script string
}

// Interpreter is the synchronous script engine hosted in the interpreter
// context. Run returns when the session ends; a returned error or a panic
// is an uncaught failure.
type Interpreter interface {
	Init(env Env) error
	Run() error
	Deinit()
}
