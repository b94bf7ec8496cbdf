// File: core/demux/demux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Demux is the notification entry point of the interpreter domain. Every
// notification runs the same pipeline in the event context:
//
//	before hooks → table lookup → wake interpreter → after hooks
//
// Before hooks drain inbound queues (serial RX, storage completions) so
// that the interpreter sees their data when it resumes. After hooks run
// even when nothing woke, since output backlogs must keep moving.

package demux

import (
	"github.com/tliron/commonlog"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	"github.com/momentics/hioload-mp/core/sched"
)

var log = commonlog.GetLogger("mp.demux")

// Hook is housekeeping run around dispatch.
type Hook func()

// Demux routes channel notifications into the scheduler's pending set.
type Demux struct {
	table   *Table
	sched   *sched.Scheduler
	metrics *control.MetricsRegistry
	before  []Hook
	after   []Hook
}

// New returns a demux over table. metrics may be nil.
func New(table *Table, s *sched.Scheduler, metrics *control.MetricsRegistry) *Demux {
	return &Demux{table: table, sched: s, metrics: metrics}
}

// BeforeDispatch appends a hook run ahead of the table lookup.
func (d *Demux) BeforeDispatch(h Hook) {
	d.before = append(d.before, h)
}

// AfterDispatch appends a hook run after the wake decision.
func (d *Demux) AfterDispatch(h Hook) {
	d.after = append(d.after, h)
}

// Table returns the channel table.
func (d *Demux) Table() *Table { return d.table }

// Notified handles one notification on ch.
func (d *Demux) Notified(ch api.Channel) {
	d.metrics.Add(control.MetricNotifications, 1)
	for _, h := range d.before {
		h()
	}

	src, known := d.table.Lookup(ch)
	switch {
	case !known:
		log.Errorf("unexpected notification received from channel: 0x%x", uint32(ch))
		d.metrics.Add(control.MetricUnexpectedChannels, 1)
	case src == api.SourceNone:
		d.metrics.Add(control.MetricIgnoredChannels, 1)
	default:
		d.sched.Raise(src)
	}

	if d.sched.Wake() {
		d.metrics.Add(control.MetricWakeups, 1)
	}

	for _, h := range d.after {
		h()
	}
}
