// File: hostcall/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package hostcall

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
	"github.com/momentics/hioload-mp/core/sched"
)

// Timer talks to the timer driver over protected calls on one channel.
type Timer struct {
	sched *sched.Scheduler
	k     api.Caller
	ch    api.Channel
}

var _ api.Timer = (*Timer)(nil)

// NewTimer returns a timer client on ch.
func NewTimer(s *sched.Scheduler, k api.Caller, ch api.Channel) *Timer {
	return &Timer{sched: s, k: k, ch: ch}
}

// Now returns the time elapsed since the timer driver started.
func (t *Timer) Now() (time.Duration, error) {
	reply, err := t.k.PPCall(t.ch, api.Message{Label: protocol.TimerGetTime})
	if err != nil {
		return 0, fmt.Errorf("timer: get time: %w", err)
	}
	return time.Duration(reply.Regs[0]), nil
}

// Sleep suspends the interpreter for at least d. A timer event left
// pending by an earlier timeout does not cut the sleep short.
func (t *Timer) Sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	now, err := t.Now()
	if err != nil {
		return err
	}
	deadline := now + d
	for now < deadline {
		msg := api.Message{Label: protocol.TimerSetTimeout}
		msg.Regs[0] = uint64(deadline - now)
		reply, err := t.k.PPCall(t.ch, msg)
		if err != nil {
			return fmt.Errorf("timer: set timeout: %w", err)
		}
		if reply.Regs[0] != 0 {
			log.Errorf("timer: timeout of %s refused with status %d", deadline-now, reply.Regs[0])
			return api.Wrap(api.ErrCodeResourceExhausted, api.ErrResourceExhausted, "timer refused timeout").
				WithContext("status", reply.Regs[0]).
				WithContext("timeout", deadline-now)
		}
		t.sched.Await(api.SourceTimer)
		if now, err = t.Now(); err != nil {
			return err
		}
	}
	return nil
}
