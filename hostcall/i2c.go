// File: hostcall/i2c.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// I2C client. Unlike storage there is no event-context housekeeping: the
// interpreter drains the response queue itself each time it resumes.

package hostcall

import (
	"fmt"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
	mpq "github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/core/sched"
)

// I2CStatusError is returned when the bus driver rejects a transfer.
type I2CStatusError struct {
	Addr   uint16
	Status int32
}

func (e *I2CStatusError) Error() string {
	switch e.Status {
	case protocol.I2CNoDevice:
		return fmt.Sprintf("i2c 0x%02x: no device", e.Addr)
	case protocol.I2CNack:
		return fmt.Sprintf("i2c 0x%02x: nack", e.Addr)
	case protocol.I2CBadRequest:
		return fmt.Sprintf("i2c 0x%02x: bad request", e.Addr)
	}
	return fmt.Sprintf("i2c 0x%02x: status %d", e.Addr, e.Status)
}

// I2C implements api.Bus over the request/response queues.
type I2C struct {
	sched  *sched.Scheduler
	k      api.Notifier
	ch     api.Channel
	req    *mpq.Queue
	resp   *mpq.Queue
	nextID uint64
}

var _ api.Bus = (*I2C)(nil)

// NewI2C returns a bus client signalling the driver on ch.
func NewI2C(s *sched.Scheduler, k api.Notifier, ch api.Channel, req, resp *mpq.Queue) *I2C {
	return &I2C{sched: s, k: k, ch: ch, req: req, resp: resp}
}

// Transfer writes write to addr, then reads readLen bytes back.
func (b *I2C) Transfer(addr uint16, write []byte, readLen int) ([]byte, error) {
	if readLen < 0 || readLen > protocol.MaxPayload(b.resp.BufferSize()) {
		return nil, fmt.Errorf("%w: read length %d", api.ErrInvalidArgument, readLen)
	}
	d, err := b.req.DequeueFree()
	if err != nil {
		return nil, api.Wrap(api.ErrCodeResourceExhausted, api.ErrResourceExhausted, "no free i2c request buffer")
	}
	b.nextID++
	id := b.nextID
	buf, err := b.req.Buffer(d)
	if err == nil {
		var n int
		if n, err = protocol.EncodeInto(buf, &protocol.I2CRequest{ID: id, Addr: addr, Write: write, ReadLen: readLen}); err == nil {
			err = b.req.EnqueueActive(d.Offset, uint32(n))
		}
	}
	if err != nil {
		if rerr := b.req.EnqueueFree(d.Offset, uint32(b.req.BufferSize())); rerr != nil {
			log.Errorf("i2c: return request buffer: %v", rerr)
		}
		return nil, err
	}
	b.k.Notify(b.ch)

	for {
		if r := b.drain(id); r != nil {
			if r.Status != protocol.I2CSuccess {
				return nil, &I2CStatusError{Addr: addr, Status: r.Status}
			}
			return r.Read, nil
		}
		b.sched.Await(api.SourceI2C)
	}
}

// drain consumes responses until the one for id shows up.
func (b *I2C) drain(id uint64) *protocol.I2CResponse {
	for {
		d, err := b.resp.DequeueActive()
		if err != nil {
			return nil
		}
		var r *protocol.I2CResponse
		if data, err := b.resp.Bytes(d); err == nil {
			r, err = protocol.DecodeI2CResponse(data)
			if err != nil {
				log.Errorf("i2c: %v", err)
			}
		}
		if err := b.resp.EnqueueFree(d.Offset, uint32(b.resp.BufferSize())); err != nil {
			log.Errorf("i2c: recycle response buffer: %v", err)
		}
		if r != nil && r.ID == id {
			return r
		}
		if r != nil {
			log.Warningf("i2c: dropping stale response %d", r.ID)
		}
	}
}
