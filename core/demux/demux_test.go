package demux_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	"github.com/momentics/hioload-mp/core/demux"
	"github.com/momentics/hioload-mp/core/sched"
	"github.com/momentics/hioload-mp/internal/concurrency"
)

const (
	chSerialRX api.Channel = 0
	chSerialTX api.Channel = 1
	chTimer    api.Channel = 2
	chStorage  api.Channel = 3
)

func newTable(t *testing.T) *demux.Table {
	t.Helper()
	tbl := demux.NewTable()
	for ch, src := range map[api.Channel]api.EventSource{
		chSerialRX: api.SourceSerial,
		chTimer:    api.SourceTimer,
		chStorage:  api.SourceStorage,
	} {
		if err := tbl.Map(ch, src); err != nil {
			t.Fatal(err)
		}
	}
	if err := tbl.Ignore(chSerialTX); err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestTableRejectsBadEntries(t *testing.T) {
	tbl := newTable(t)
	if err := tbl.Map(chTimer, api.SourceI2C); !errors.Is(err, api.ErrAlreadyExists) {
		t.Errorf("duplicate map: %v", err)
	}
	if err := tbl.Ignore(chSerialRX); !errors.Is(err, api.ErrAlreadyExists) {
		t.Errorf("ignore of mapped channel: %v", err)
	}
	if err := tbl.Map(9, api.SourceSerial|api.SourceTimer); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("composite source: %v", err)
	}
	if err := tbl.Map(api.MaxChannels, api.SourceI2C); !errors.Is(err, api.ErrInvalidChannel) {
		t.Errorf("out of range channel: %v", err)
	}
	want := []api.Channel{chSerialRX, chSerialTX, chTimer, chStorage}
	if got := tbl.Channels(); !reflect.DeepEqual(got, want) {
		t.Errorf("channels = %v, want %v", got, want)
	}
}

func TestUnknownChannelLeavesStateUntouched(t *testing.T) {
	s := sched.New()
	m := control.NewMetricsRegistry()
	d := demux.New(newTable(t), s, m)
	s.Raise(api.SourceTimer)
	for i := 0; i < 3; i++ {
		d.Notified(42)
	}
	if s.Pending() != api.SourceTimer {
		t.Errorf("pending = %v", s.Pending())
	}
	if got := m.Counter(control.MetricUnexpectedChannels); got != 3 {
		t.Errorf("unexpected counter = %d", got)
	}
	if s.Wakeups() != 0 {
		t.Errorf("wakeups = %d", s.Wakeups())
	}
}

func TestIgnoredChannelRunsHousekeepingOnly(t *testing.T) {
	s := sched.New()
	m := control.NewMetricsRegistry()
	d := demux.New(newTable(t), s, m)
	var before, after int
	d.BeforeDispatch(func() { before++ })
	d.AfterDispatch(func() { after++ })
	d.Notified(chSerialTX)
	if s.Pending() != api.SourceNone {
		t.Errorf("pending = %v", s.Pending())
	}
	if before != 1 || after != 1 {
		t.Errorf("hooks ran before=%d after=%d", before, after)
	}
	if m.Counter(control.MetricIgnoredChannels) != 1 || m.Counter(control.MetricUnexpectedChannels) != 0 {
		t.Errorf("metrics = %v", m.GetSnapshot())
	}
}

func TestRepeatedNotificationConsumedOnce(t *testing.T) {
	s := sched.New()
	d := demux.New(newTable(t), s, nil)
	d.Notified(chSerialRX)
	d.Notified(chSerialRX)
	var second api.EventSource
	err := s.Start(make([]byte, concurrency.MinStackSize), func() {
		s.Await(api.SourceSerial)
		second = s.Pending()
		s.Exit()
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.Has(api.SourceSerial) {
		t.Error("second serial notification left a pending bit behind")
	}
}

func TestOrderBeforeWakeAfter(t *testing.T) {
	s := sched.New()
	d := demux.New(newTable(t), s, nil)
	var trace []string
	d.BeforeDispatch(func() { trace = append(trace, "before") })
	d.AfterDispatch(func() { trace = append(trace, "after") })
	err := s.Start(make([]byte, concurrency.MinStackSize), func() {
		s.Await(api.SourceStorage)
		trace = append(trace, "interpreter")
		s.Await(api.SourceStorage)
		s.Exit()
	})
	if err != nil {
		t.Fatal(err)
	}
	d.Notified(chStorage)
	want := []string{"before", "interpreter", "after"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestAfterHooksRunWithoutWake(t *testing.T) {
	s := sched.New()
	d := demux.New(newTable(t), s, nil)
	after := 0
	d.AfterDispatch(func() { after++ })
	err := s.Start(make([]byte, concurrency.MinStackSize), func() {
		s.Await(api.SourceStorage)
		s.Exit()
	})
	if err != nil {
		t.Fatal(err)
	}
	d.Notified(chTimer)
	d.Notified(0x3f)
	if after != 2 {
		t.Errorf("after hooks ran %d times, want 2", after)
	}
	if s.Wakeups() != 0 {
		t.Errorf("wakeups = %d", s.Wakeups())
	}
}

func TestStorageWakeKeepsTimerPending(t *testing.T) {
	s := sched.New()
	m := control.NewMetricsRegistry()
	d := demux.New(newTable(t), s, m)
	var pendingOnResume api.EventSource
	resumed := false
	err := s.Start(make([]byte, concurrency.MinStackSize), func() {
		s.Await(api.SourceStorage)
		resumed = true
		pendingOnResume = s.Pending()
		s.Await(api.SourceI2C)
		s.Exit()
	})
	if err != nil {
		t.Fatal(err)
	}
	d.Notified(chTimer)
	if resumed {
		t.Fatal("timer notification woke a storage await")
	}
	d.Notified(chStorage)
	if !resumed {
		t.Fatal("storage notification did not wake the interpreter")
	}
	if pendingOnResume != api.SourceTimer {
		t.Errorf("pending on resume = %v, want timer", pendingOnResume)
	}
	if m.Counter(control.MetricWakeups) != 1 {
		t.Errorf("wakeups metric = %d", m.Counter(control.MetricWakeups))
	}
}
