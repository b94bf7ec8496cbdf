// File: peer/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package peer

import (
	"sync"
	"time"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
)

// Timer is the timer driver domain. Clients read the clock and arm
// one-shot timeouts through protected calls; a timeout fires as a
// notification on the channel it was armed from.
type Timer struct {
	k     api.Kernel
	start time.Time

	mu     sync.Mutex
	armed  map[api.Channel]*time.Timer
	closed bool
}

var (
	_ api.ProtectionDomain = (*Timer)(nil)
	_ api.ProtectedServer  = (*Timer)(nil)
)

// NewTimer returns a timer driver.
func NewTimer() *Timer {
	return &Timer{armed: make(map[api.Channel]*time.Timer)}
}

// Init starts the clock.
func (t *Timer) Init(k api.Kernel) error {
	t.k = k
	t.start = time.Now()
	return nil
}

// Notified is unused; clients only make protected calls.
func (t *Timer) Notified(ch api.Channel) {
	log.Debugf("timer: ignoring notification on channel %d", ch)
}

// Protected serves GetTime and SetTimeout. A new timeout on a channel
// replaces the one armed before.
func (t *Timer) Protected(ch api.Channel, msg api.Message) api.Message {
	switch msg.Label {
	case protocol.TimerGetTime:
		return api.Message{Label: msg.Label, Regs: [4]uint64{uint64(time.Since(t.start))}}
	case protocol.TimerSetTimeout:
		d := time.Duration(msg.Regs[0])
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return api.Message{Label: msg.Label, Regs: [4]uint64{1}}
		}
		if prev, ok := t.armed[ch]; ok {
			prev.Stop()
		}
		t.armed[ch] = time.AfterFunc(d, func() { t.k.Notify(ch) })
		return api.Message{Label: msg.Label}
	}
	log.Warningf("timer: unknown label %d on channel %d", msg.Label, ch)
	return api.Message{Label: msg.Label, Regs: [4]uint64{1}}
}

// Close cancels every armed timeout.
func (t *Timer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for ch, tm := range t.armed {
		tm.Stop()
		delete(t.armed, ch)
	}
	return nil
}
