package hostcall_test

import (
	"testing"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/core/sched"
	"github.com/momentics/hioload-mp/fake"
	"github.com/momentics/hioload-mp/internal/concurrency"
)

// interp starts body in the interpreter context. It returns once body
// first suspends or finishes.
func interp(t *testing.T, s *sched.Scheduler, body func()) *bool {
	t.Helper()
	finished := new(bool)
	err := s.Start(make([]byte, concurrency.MinStackSize), func() {
		body()
		*finished = true
		s.Exit()
	})
	if err != nil {
		t.Fatal(err)
	}
	return finished
}

// deliver plays one notification for src in the event context.
func deliver(s *sched.Scheduler, src api.EventSource, before ...func()) bool {
	for _, h := range before {
		h()
	}
	s.Raise(src)
	return s.Wake()
}

func pair(t *testing.T, name string, entries, size int) (local, remote *queue.Queue) {
	t.Helper()
	local, remote, err := fake.QueuePair(name, entries, size)
	if err != nil {
		t.Fatal(err)
	}
	return local, remote
}

func populate(t *testing.T, qs ...*queue.Queue) {
	t.Helper()
	for _, q := range qs {
		if _, err := q.Populate(); err != nil {
			t.Fatal(err)
		}
	}
}
