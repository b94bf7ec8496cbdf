// File: internal/concurrency/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cooperative execution contexts. A Context is a goroutine that only runs
// while it holds the baton; Switch hands the baton over an unbuffered
// channel and parks the caller until some later Switch names it again.
// The handoff is the only synchronization: whatever one context wrote
// before switching is visible to the next one.

package concurrency

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mp.concurrency")

// MinStackSize is the smallest stack arena Derive accepts.
const MinStackSize = 4 * 1024

var (
	// ErrStackTooSmall is returned by Derive for arenas below MinStackSize.
	ErrStackTooSmall = errors.New("context stack below minimum size")
	// ErrNilEntry is returned by Derive without an entry point.
	ErrNilEntry = errors.New("context entry point is nil")
)

// ContextState tracks the lifecycle of one context.
//
//	Uninitialized → Runnable        [Derive]
//	Runnable      → Running         [first Switch to it]
//	Running       ⇄ Suspended       [Switch away / Switch to it]
//	Running       → Terminated      [Exit]
type ContextState int32

const (
	StateUninitialized ContextState = iota
	StateRunnable
	StateRunning
	StateSuspended
	StateTerminated
)

func (s ContextState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Context is one independently suspendable flow of control.
type Context struct {
	name   string
	stack  []byte
	entry  func()
	resume chan struct{}
	state  atomic.Int32
}

// Name returns the label given at creation.
func (c *Context) Name() string { return c.name }

// Stack returns the fixed arena bound to the context. It is never resized.
func (c *Context) Stack() []byte { return c.stack }

// State returns the lifecycle state.
func (c *Context) State() ContextState { return ContextState(c.state.Load()) }

// Coop owns a set of contexts sharing one baton. Exactly one of them is
// running at any instant.
type Coop struct {
	active   atomic.Pointer[Context]
	switches atomic.Uint64
	cpu      atomic.Int32 // pin target of derived contexts, plus one
}

// NewCoop adopts the calling flow of control as the root context.
func NewCoop(rootName string) *Coop {
	root := &Context{name: rootName, resume: make(chan struct{})}
	root.state.Store(int32(StateRunning))
	c := &Coop{}
	c.active.Store(root)
	return c
}

// Current returns the context making the call.
func (c *Coop) Current() *Context {
	return c.active.Load()
}

// SetCPU pins the threads of contexts derived from now on to cpu. A
// negative cpu leaves them unpinned. The root context is not affected.
func (c *Coop) SetCPU(cpu int) {
	c.cpu.Store(int32(max(cpu, -1) + 1))
}

// CPU returns the pin target of derived contexts, -1 when unpinned.
func (c *Coop) CPU() int { return int(c.cpu.Load()) - 1 }

// Switches returns the number of completed handoffs.
func (c *Coop) Switches() uint64 {
	return c.switches.Load()
}

// Derive creates a context that starts executing entry on its first Switch.
// entry must end with Exit; returning any other way is fatal.
func (c *Coop) Derive(name string, stack []byte, entry func()) (*Context, error) {
	if entry == nil {
		return nil, ErrNilEntry
	}
	if len(stack) < MinStackSize {
		return nil, fmt.Errorf("%w: %d < %d", ErrStackTooSmall, len(stack), MinStackSize)
	}
	ctx := &Context{
		name:   name,
		stack:  stack,
		entry:  entry,
		resume: make(chan struct{}),
	}
	ctx.state.Store(int32(StateRunnable))
	return ctx, nil
}

// Switch suspends the calling context and resumes to. It returns only when
// another Switch names the caller again.
func (c *Coop) Switch(to *Context) {
	from := c.active.Load()
	if to == from {
		return
	}
	c.handoff(from, to, StateSuspended)
	<-from.resume
}

// Exit terminates the calling context and resumes to. The caller must
// return from its entry point right after Exit without touching shared
// state.
func (c *Coop) Exit(to *Context) {
	from := c.active.Load()
	if to == from {
		panic(fmt.Sprintf("concurrency: context %q cannot exit into itself", from.name))
	}
	c.handoff(from, to, StateTerminated)
}

func (c *Coop) handoff(from, to *Context, fromState ContextState) {
	switch to.State() {
	case StateTerminated:
		panic(fmt.Sprintf("concurrency: switch to terminated context %q", to.name))
	case StateUninitialized:
		panic(fmt.Sprintf("concurrency: switch to uninitialized context %q", to.name))
	}
	from.state.Store(int32(fromState))
	c.active.Store(to)
	c.switches.Add(1)
	if ContextState(to.state.Swap(int32(StateRunning))) == StateRunnable {
		go c.trampoline(to)
		return
	}
	to.resume <- struct{}{}
}

func (c *Coop) trampoline(ctx *Context) {
	if cpu := c.CPU(); cpu >= 0 {
		if err := PinCurrentThread(cpu); err != nil {
			log.Warningf("context %s: %v", ctx.name, err)
		} else {
			defer UnpinCurrentThread()
		}
	}
	ctx.entry()
	if ctx.State() != StateTerminated {
		panic(fmt.Sprintf("concurrency: entry of context %q returned without Exit", ctx.name))
	}
}
