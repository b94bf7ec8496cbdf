// File: peer/framebuffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package peer

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
)

// Frame is one picture taken from the framebuffer region.
type Frame struct {
	Width, Height, BytesPerPixel int
	Pixels                       []byte
}

// FrameSink is the display owner. It copies each frame out of the shared
// region, hands it to the consumer and acknowledges on the same channel.
type FrameSink struct {
	region  []byte
	ch      api.Channel
	consume func(Frame)
	k       api.Kernel
	frames  atomic.Uint64
}

var _ api.ProtectionDomain = (*FrameSink)(nil)

// NewFrameSink reads frames from region. consume may be nil.
func NewFrameSink(region []byte, ch api.Channel, consume func(Frame)) *FrameSink {
	return &FrameSink{region: region, ch: ch, consume: consume}
}

// Init records the kernel handle.
func (f *FrameSink) Init(k api.Kernel) error {
	f.k = k
	return nil
}

// Notified takes the current frame.
func (f *FrameSink) Notified(ch api.Channel) {
	if ch != f.ch {
		log.Warningf("framebuffer: notification on unknown channel %d", ch)
		return
	}
	w := int(binary.LittleEndian.Uint32(f.region[0:]))
	h := int(binary.LittleEndian.Uint32(f.region[4:]))
	bpp := int(binary.LittleEndian.Uint32(f.region[8:]))
	size := w * h * bpp
	if size < 0 || protocol.FrameHeaderSize+size > len(f.region) {
		log.Errorf("framebuffer: bad frame header %dx%dx%d", w, h, bpp)
	} else {
		frame := Frame{Width: w, Height: h, BytesPerPixel: bpp}
		frame.Pixels = append([]byte(nil), f.region[protocol.FrameHeaderSize:protocol.FrameHeaderSize+size]...)
		f.frames.Add(1)
		if f.consume != nil {
			f.consume(frame)
		} else {
			log.Debugf("framebuffer: frame %dx%d", w, h)
		}
	}
	f.k.Notify(f.ch)
}

// Frames returns the number of frames taken.
func (f *FrameSink) Frames() uint64 { return f.frames.Load() }
