package peer_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
	"github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/fake"
	"github.com/momentics/hioload-mp/peer"
)

func TestTimerGetTimeAndTimeout(t *testing.T) {
	k := fake.NewKernel("timer")
	fired := make(chan api.Channel, 1)
	k.OnNotify = func(ch api.Channel) { fired <- ch }
	tm := peer.NewTimer()
	if err := tm.Init(k); err != nil {
		t.Fatal(err)
	}
	defer tm.Close()

	a := tm.Protected(0, api.Message{Label: protocol.TimerGetTime})
	time.Sleep(2 * time.Millisecond)
	b := tm.Protected(0, api.Message{Label: protocol.TimerGetTime})
	if b.Regs[0] <= a.Regs[0] {
		t.Errorf("clock did not advance: %d then %d", a.Regs[0], b.Regs[0])
	}

	// The second timeout replaces the first.
	tm.Protected(3, api.Message{Label: protocol.TimerSetTimeout, Regs: [4]uint64{uint64(time.Hour)}})
	reply := tm.Protected(3, api.Message{Label: protocol.TimerSetTimeout, Regs: [4]uint64{uint64(time.Millisecond)}})
	if reply.Regs[0] != 0 {
		t.Fatalf("set timeout failed: %+v", reply)
	}
	select {
	case ch := <-fired:
		if ch != 3 {
			t.Errorf("timeout fired on channel %d", ch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}

	if r := tm.Protected(0, api.Message{Label: 99}); r.Regs[0] == 0 {
		t.Error("unknown label accepted")
	}
	tm.Close()
	if r := tm.Protected(0, api.Message{Label: protocol.TimerSetTimeout}); r.Regs[0] == 0 {
		t.Error("timeout armed after Close")
	}
}

func TestMemoryDevice(t *testing.T) {
	m := peer.NewMemory(4)
	if _, err := m.Transfer([]byte{2, 0xaa, 0xbb, 0xcc}, 0); err != nil {
		t.Fatal(err)
	}
	got, err := m.Transfer([]byte{1}, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0xaa, 0xbb, 0xcc}
	if string(got) != string(want) {
		t.Errorf("read = % x, want % x", got, want)
	}
	if _, err := peer.NewMemory(0).Transfer(nil, 1); !errors.Is(err, peer.ErrNack) {
		t.Errorf("empty device error = %v", err)
	}
}

func sendI2C(t *testing.T, q *queue.Queue, r protocol.I2CRequest) {
	t.Helper()
	d, err := q.DequeueFree()
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := q.Buffer(d)
	n, err := protocol.EncodeInto(buf, &r)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.EnqueueActive(d.Offset, uint32(n)); err != nil {
		t.Fatal(err)
	}
}

func TestBusAnswersRequests(t *testing.T) {
	reqL, reqR, err := fake.QueuePair("i2c.req", 8, 256)
	if err != nil {
		t.Fatal(err)
	}
	respL, respR, err := fake.QueuePair("i2c.resp", 8, 256)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range []*queue.Queue{reqL, respL} {
		if _, err := q.Populate(); err != nil {
			t.Fatal(err)
		}
	}
	k := fake.NewKernel("i2c")
	bus := peer.NewBus(reqR, respR, 0)
	if err := bus.Init(k); err != nil {
		t.Fatal(err)
	}
	if err := bus.Attach(0x50, peer.NewMemory(16)); err != nil {
		t.Fatal(err)
	}
	if err := bus.Attach(0x50, peer.NewMemory(16)); !errors.Is(err, api.ErrAlreadyExists) {
		t.Errorf("duplicate attach = %v", err)
	}

	sendI2C(t, reqL, protocol.I2CRequest{ID: 1, Addr: 0x50, Write: []byte{0, 'h', 'i'}})
	sendI2C(t, reqL, protocol.I2CRequest{ID: 2, Addr: 0x50, Write: []byte{0}, ReadLen: 2})
	sendI2C(t, reqL, protocol.I2CRequest{ID: 3, Addr: 0x51, ReadLen: 1})
	sendI2C(t, reqL, protocol.I2CRequest{ID: 4, Addr: 0x50, ReadLen: 1 << 20})
	bus.Notified(0)

	want := map[uint64]int32{1: protocol.I2CSuccess, 2: protocol.I2CSuccess, 3: protocol.I2CNoDevice, 4: protocol.I2CBadRequest}
	for i := 0; i < len(want); i++ {
		d, err := respL.DequeueActive()
		if err != nil {
			t.Fatalf("response %d: %v", i, err)
		}
		b, _ := respL.Bytes(d)
		r, err := protocol.DecodeI2CResponse(b)
		if err != nil {
			t.Fatal(err)
		}
		if r.Status != want[r.ID] {
			t.Errorf("request %d status = %d, want %d", r.ID, r.Status, want[r.ID])
		}
		if r.ID == 2 && string(r.Read) != "hi" {
			t.Errorf("read back %q", r.Read)
		}
	}
	if k.Count(0) != 1 {
		t.Errorf("bus notified %d times", k.Count(0))
	}
	if bus.Transfers() != 3 {
		t.Errorf("transfers = %d", bus.Transfers())
	}
}

func TestFrameSinkCopiesAndAcks(t *testing.T) {
	region := make([]byte, protocol.FrameHeaderSize+2*2*3)
	binary.LittleEndian.PutUint32(region[0:], 2)
	binary.LittleEndian.PutUint32(region[4:], 2)
	binary.LittleEndian.PutUint32(region[8:], 3)
	for i := protocol.FrameHeaderSize; i < len(region); i++ {
		region[i] = byte(i)
	}
	var got []peer.Frame
	k := fake.NewKernel("fb")
	sink := peer.NewFrameSink(region, 0, func(f peer.Frame) { got = append(got, f) })
	if err := sink.Init(k); err != nil {
		t.Fatal(err)
	}
	sink.Notified(0)
	if len(got) != 1 || got[0].Width != 2 || got[0].BytesPerPixel != 3 || len(got[0].Pixels) != 12 {
		t.Fatalf("frames = %+v", got)
	}
	region[protocol.FrameHeaderSize] = 0xff
	if got[0].Pixels[0] == 0xff {
		t.Error("frame aliases the shared region")
	}

	// An oversized header is dropped but still acknowledged.
	binary.LittleEndian.PutUint32(region[0:], 100)
	sink.Notified(0)
	if sink.Frames() != 1 {
		t.Errorf("frames = %d", sink.Frames())
	}
	if k.Count(0) != 2 {
		t.Errorf("acks = %d", k.Count(0))
	}
}
