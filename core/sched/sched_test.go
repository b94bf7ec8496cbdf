package sched_test

import (
	"testing"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/sched"
	"github.com/momentics/hioload-mp/internal/concurrency"
)

var allSources = []api.EventSource{
	api.SourceSerial, api.SourceTimer, api.SourceStorage, api.SourceFramebuffer, api.SourceI2C,
}

func start(t *testing.T, s *sched.Scheduler, body func()) {
	t.Helper()
	err := s.Start(make([]byte, concurrency.MinStackSize), func() {
		body()
		s.Exit()
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAwaitPendingReturnsWithoutSwitch(t *testing.T) {
	for _, src := range allSources {
		s := sched.New()
		s.Raise(src | api.SourceTimer)
		var before, after uint64
		var left api.EventSource
		start(t, s, func() {
			before = s.Switches()
			s.Await(src)
			after = s.Switches()
			left = s.Pending()
		})
		if before != after {
			t.Errorf("%v: await switched contexts (%d -> %d)", src, before, after)
		}
		want := api.SourceTimer &^ src
		if left != want {
			t.Errorf("%v: pending after await = %v, want %v", src, left, want)
		}
		if s.Wakeups() != 0 {
			t.Errorf("%v: wakeups = %d", src, s.Wakeups())
		}
	}
}

func TestAwaitBlocksUntilSourceRaised(t *testing.T) {
	for _, src := range allSources {
		s := sched.New()
		resumed := false
		var pendingOnResume, awaitedOnResume api.EventSource
		start(t, s, func() {
			s.Await(src)
			resumed = true
			pendingOnResume = s.Pending()
			awaitedOnResume = s.Awaited()
		})
		if resumed {
			t.Fatalf("%v: await returned before the source was raised", src)
		}
		if s.Awaited() != src {
			t.Fatalf("%v: awaited = %v", src, s.Awaited())
		}

		for _, other := range allSources {
			if other == src {
				continue
			}
			s.Raise(other)
			if s.Wake() {
				t.Errorf("%v: raising %v woke the interpreter", src, other)
			}
		}
		if resumed {
			t.Fatalf("%v: resumed on a foreign source", src)
		}

		s.Raise(src)
		if !s.Wake() {
			t.Fatalf("%v: wake did not switch", src)
		}
		if !resumed {
			t.Fatalf("%v: interpreter not resumed", src)
		}
		if pendingOnResume.Has(src) {
			t.Errorf("%v: bit still set on resume", src)
		}
		if awaitedOnResume != api.SourceNone {
			t.Errorf("%v: awaited on resume = %v", src, awaitedOnResume)
		}
		if s.Wakeups() != 1 {
			t.Errorf("%v: wakeups = %d, want 1", src, s.Wakeups())
		}
		if want := api.SourceAll &^ src; s.Pending() != want {
			t.Errorf("%v: foreign sources not kept pending: %v", src, s.Pending())
		}
	}
}

func TestStorageWakeKeepsTimerPending(t *testing.T) {
	s := sched.New()
	var gotStorage, gotTimer bool
	start(t, s, func() {
		s.Await(api.SourceStorage)
		gotStorage = true
		if !s.Pending().Has(api.SourceTimer) {
			t.Error("timer bit lost on storage wakeup")
		}
		s.Await(api.SourceTimer)
		gotTimer = true
	})

	s.Raise(api.SourceTimer)
	if s.Wake() {
		t.Fatal("timer woke an interpreter awaiting storage")
	}
	s.Raise(api.SourceStorage)
	if !s.Wake() {
		t.Fatal("storage did not wake the interpreter")
	}
	if !gotStorage || !gotTimer {
		t.Fatalf("storage=%v timer=%v", gotStorage, gotTimer)
	}
	if s.Wakeups() != 1 {
		t.Errorf("wakeups = %d, want 1", s.Wakeups())
	}
	if s.Pending() != api.SourceNone {
		t.Errorf("pending = %v, want none", s.Pending())
	}
	if s.InterpreterState() != concurrency.StateTerminated {
		t.Errorf("interpreter state = %v", s.InterpreterState())
	}
}

func TestRepeatedRaiseIsConsumedOnce(t *testing.T) {
	s := sched.New()
	s.Raise(api.SourceSerial)
	s.Raise(api.SourceSerial)
	first, second := false, false
	start(t, s, func() {
		s.Await(api.SourceSerial)
		first = true
		s.Await(api.SourceSerial)
		second = true
	})
	if !first {
		t.Fatal("first await blocked although serial was pending")
	}
	if second {
		t.Fatal("second await consumed a double-counted bit")
	}
	if s.Awaited() != api.SourceSerial {
		t.Fatalf("awaited = %v", s.Awaited())
	}
	s.Raise(api.SourceSerial)
	s.Wake()
	if !second {
		t.Error("second await not satisfied")
	}
}

func expectInvariant(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if _, ok := r.(*sched.InvariantError); !ok {
			t.Fatalf("recovered %v (%T), want *sched.InvariantError", r, r)
		}
	}()
	fn()
}

func TestAwaitOutsideInterpreterIsFatal(t *testing.T) {
	s := sched.New()
	expectInvariant(t, func() { s.Await(api.SourceSerial) })

	start(t, s, func() { s.Await(api.SourceTimer) })
	expectInvariant(t, func() { s.Await(api.SourceSerial) })
}

func TestAwaitRejectsCompositeSource(t *testing.T) {
	s := sched.New()
	expectInvariant(t, func() { s.Await(api.SourceSerial | api.SourceTimer) })
	expectInvariant(t, func() { s.Await(api.SourceNone) })
}

func TestWakeWithoutAwaiterIsNoop(t *testing.T) {
	s := sched.New()
	start(t, s, func() {})
	s.Raise(api.SourceSerial)
	if s.Wake() {
		t.Error("wake switched into a terminated interpreter")
	}
	if s.Pending() != api.SourceSerial {
		t.Errorf("pending = %v", s.Pending())
	}
}
