package hostcall_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
	"github.com/momentics/hioload-mp/core/sched"
	"github.com/momentics/hioload-mp/fake"
	"github.com/momentics/hioload-mp/hostcall"
)

const chFB api.Channel = 4

func TestSendFrame(t *testing.T) {
	s := sched.New()
	k := fake.NewKernel("mp")
	region := make([]byte, protocol.FrameHeaderSize+4*3*2)
	fb, err := hostcall.NewFramebuffer(s, k, chFB, region, 4, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	pixels := bytes.Repeat([]byte{0xab}, 2*2*2)
	var sendErr error
	finished := interp(t, s, func() { sendErr = fb.Send(pixels, 2, 2) })
	if *finished || s.Awaited() != api.SourceFramebuffer || k.Count(chFB) != 1 {
		t.Fatalf("send did not wait for the owner: awaited=%v", s.Awaited())
	}
	if w, h := binary.LittleEndian.Uint32(region[0:]), binary.LittleEndian.Uint32(region[4:]); w != 2 || h != 2 {
		t.Errorf("header %dx%d", w, h)
	}
	if !bytes.Equal(region[protocol.FrameHeaderSize:protocol.FrameHeaderSize+len(pixels)], pixels) {
		t.Error("pixels not copied")
	}
	deliver(s, api.SourceFramebuffer)
	if !*finished || sendErr != nil || fb.Frames() != 1 {
		t.Errorf("finished=%v err=%v frames=%d", *finished, sendErr, fb.Frames())
	}
}

func TestFramebufferValidation(t *testing.T) {
	s := sched.New()
	k := fake.NewKernel("mp")
	if _, err := hostcall.NewFramebuffer(s, k, chFB, make([]byte, 8), 4, 4, 2); !errors.Is(err, api.ErrRegionTooSmall) {
		t.Errorf("small region: %v", err)
	}
	fb, err := hostcall.NewFramebuffer(s, k, chFB, make([]byte, 1024), 4, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := fb.Send(make([]byte, 10), 8, 1); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("oversized frame: %v", err)
	}
	if err := fb.Send(make([]byte, 3), 1, 1); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("short pixels: %v", err)
	}
}
