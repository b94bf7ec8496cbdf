// File: core/sched/sched.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler owns the two execution contexts, the pending-event set and the
// awaited-source register. The event context is the sole writer of "set"
// transitions; the interpreter context is the sole writer of "clear"
// transitions and of the awaited register. Only one context runs at a time,
// so none of this needs a lock. The atomics exist so that debug probes on
// other goroutines read whole words.

package sched

import (
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/internal/concurrency"
)

var log = commonlog.GetLogger("mp.sched")

// InvariantError reports a scheduler protocol violation. It is raised as a
// panic and must never be recovered by interpreter code.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("sched: invariant violated in %s: %s", e.Op, e.Detail)
}

// Scheduler is the shared state reachable from both contexts.
type Scheduler struct {
	coop    *concurrency.Coop
	event   *concurrency.Context
	interp  *concurrency.Context
	pending atomic.Uint32
	awaited atomic.Uint32
	wakeups atomic.Uint64
}

// New adopts the calling flow of control as the event context.
func New() *Scheduler {
	coop := concurrency.NewCoop("event")
	return &Scheduler{
		coop:  coop,
		event: coop.Current(),
	}
}

// PinInterpreter pins the interpreter context's thread to cpu once it
// starts; -1 leaves it unpinned. Call it before Start.
func (s *Scheduler) PinInterpreter(cpu int) {
	s.coop.SetCPU(cpu)
}

// Start binds the interpreter context to stack and entry and switches to it.
// It returns once the interpreter first awaits or exits.
func (s *Scheduler) Start(stack []byte, entry func()) error {
	if s.interp != nil {
		s.fail("start", "interpreter context already derived")
	}
	s.mustRun("start", s.event)
	ctx, err := s.coop.Derive("interpreter", stack, entry)
	if err != nil {
		return fmt.Errorf("derive interpreter context: %w", err)
	}
	s.interp = ctx
	log.Debugf("interpreter context derived with %d byte stack", len(stack))
	s.coop.Switch(s.interp)
	return nil
}

// Await blocks the interpreter context until src is pending and consumes it.
// It is the only legal suspension point for interpreter code.
func (s *Scheduler) Await(src api.EventSource) {
	if !src.Single() {
		s.fail("await", fmt.Sprintf("%v is not a single event source", src))
	}
	s.mustRun("await", s.interp)
	if aw := api.EventSource(s.awaited.Load()); aw != api.SourceNone {
		s.fail("await", fmt.Sprintf("already awaiting %v", aw))
	}
	if s.Pending().Has(src) {
		s.clear(src)
		return
	}
	s.awaited.Store(uint32(src))
	s.coop.Switch(s.event)
	if !s.Pending().Has(src) {
		s.fail("await", fmt.Sprintf("resumed while %v is not pending", src))
	}
	s.awaited.Store(uint32(api.SourceNone))
	s.clear(src)
}

// Raise marks src pending. Raising an already pending source is a no-op.
func (s *Scheduler) Raise(src api.EventSource) {
	if src == api.SourceNone {
		return
	}
	if src&^api.SourceAll != 0 {
		s.fail("raise", fmt.Sprintf("unknown source bits %#x", uint32(src)))
	}
	s.mustRun("raise", s.event)
	for {
		old := s.pending.Load()
		if s.pending.CompareAndSwap(old, old|uint32(src)) {
			return
		}
	}
}

// Wake resumes the interpreter if the source it awaits is now pending.
// This is the only switch from the event context into the interpreter.
func (s *Scheduler) Wake() bool {
	s.mustRun("wake", s.event)
	aw := api.EventSource(s.awaited.Load())
	if aw == api.SourceNone || !s.Pending().Has(aw) {
		return false
	}
	s.wakeups.Add(1)
	s.coop.Switch(s.interp)
	return true
}

// Exit ends the interpreter context for good and returns to the event
// context. The caller must return from its entry point immediately.
func (s *Scheduler) Exit() {
	s.mustRun("exit", s.interp)
	if aw := api.EventSource(s.awaited.Load()); aw != api.SourceNone {
		s.fail("exit", fmt.Sprintf("exiting while awaiting %v", aw))
	}
	log.Info("interpreter context terminated")
	s.coop.Exit(s.event)
}

// Pending returns the current pending-event set.
func (s *Scheduler) Pending() api.EventSource {
	return api.EventSource(s.pending.Load())
}

// Awaited returns the source the interpreter is blocked on, or SourceNone.
func (s *Scheduler) Awaited() api.EventSource {
	return api.EventSource(s.awaited.Load())
}

// Wakeups returns the number of switches made by Wake.
func (s *Scheduler) Wakeups() uint64 {
	return s.wakeups.Load()
}

// Switches returns the total number of context handoffs.
func (s *Scheduler) Switches() uint64 {
	return s.coop.Switches()
}

// InInterpreter reports whether the interpreter context holds the baton.
func (s *Scheduler) InInterpreter() bool {
	return s.interp != nil && s.coop.Current() == s.interp
}

// InterpreterState returns the lifecycle state of the interpreter context.
func (s *Scheduler) InterpreterState() concurrency.ContextState {
	if s.interp == nil {
		return concurrency.StateUninitialized
	}
	return s.interp.State()
}

// Snapshot is the debug view of the scheduler.
func (s *Scheduler) Snapshot() map[string]any {
	return map[string]any{
		"pending":     s.Pending().String(),
		"awaited":     s.Awaited().String(),
		"interpreter": s.InterpreterState().String(),
		"wakeups":     s.Wakeups(),
		"switches":    s.Switches(),
	}
}

func (s *Scheduler) clear(src api.EventSource) {
	for {
		old := s.pending.Load()
		if s.pending.CompareAndSwap(old, old&^uint32(src)) {
			return
		}
	}
}

func (s *Scheduler) mustRun(op string, want *concurrency.Context) {
	if want == nil {
		s.fail(op, "interpreter context not started")
	}
	if cur := s.coop.Current(); cur != want {
		s.fail(op, fmt.Sprintf("called from %s context, want %s", cur.Name(), want.Name()))
	}
}

func (s *Scheduler) fail(op, detail string) {
	err := &InvariantError{Op: op, Detail: detail}
	log.Critical(err.Error())
	panic(err)
}
