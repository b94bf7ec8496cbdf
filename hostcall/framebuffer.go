// File: hostcall/framebuffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package hostcall

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
	"github.com/momentics/hioload-mp/core/sched"
)

// Framebuffer hands frames to the display owner through one shared region.
type Framebuffer struct {
	sched         *sched.Scheduler
	k             api.Notifier
	ch            api.Channel
	region        []byte
	width, height int
	bpp           int
	frames        uint64
}

var _ api.Display = (*Framebuffer)(nil)

// NewFramebuffer binds a display of the given geometry to region.
func NewFramebuffer(s *sched.Scheduler, k api.Notifier, ch api.Channel, region []byte, width, height, bpp int) (*Framebuffer, error) {
	if need := protocol.FrameHeaderSize + width*height*bpp; len(region) < need {
		return nil, fmt.Errorf("%w: framebuffer needs %d bytes, region has %d", api.ErrRegionTooSmall, need, len(region))
	}
	return &Framebuffer{sched: s, k: k, ch: ch, region: region, width: width, height: height, bpp: bpp}, nil
}

// Send copies a width×height frame into the region, signals the owner and
// waits until it has taken the frame.
func (f *Framebuffer) Send(pixels []byte, width, height int) error {
	if width <= 0 || height <= 0 || width > f.width || height > f.height {
		return fmt.Errorf("%w: frame %dx%d exceeds %dx%d", api.ErrInvalidArgument, width, height, f.width, f.height)
	}
	if len(pixels) != width*height*f.bpp {
		return fmt.Errorf("%w: %d pixel bytes for %dx%dx%d", api.ErrInvalidArgument, len(pixels), width, height, f.bpp)
	}
	binary.LittleEndian.PutUint32(f.region[0:], uint32(width))
	binary.LittleEndian.PutUint32(f.region[4:], uint32(height))
	binary.LittleEndian.PutUint32(f.region[8:], uint32(f.bpp))
	copy(f.region[protocol.FrameHeaderSize:], pixels)
	f.frames++
	f.k.Notify(f.ch)
	f.sched.Await(api.SourceFramebuffer)
	return nil
}

// Geometry returns the maximum frame size and bytes per pixel.
func (f *Framebuffer) Geometry() (width, height, bpp int) {
	return f.width, f.height, f.bpp
}

// Frames returns the number of frames sent.
func (f *Framebuffer) Frames() uint64 { return f.frames }
