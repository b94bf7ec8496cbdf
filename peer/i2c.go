// File: peer/i2c.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package peer

import (
	"errors"
	"sync"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
	"github.com/momentics/hioload-mp/core/queue"
)

// ErrNack is returned by a Device that refuses a transfer.
var ErrNack = errors.New("i2c nack")

// Device is one addressable bus target.
type Device interface {
	Transfer(write []byte, readLen int) ([]byte, error)
}

// Memory is a register-file device: the first written byte selects the
// register pointer, further written bytes are stored from it, and reads
// continue from the pointer. The pointer wraps at the end of the file.
type Memory struct {
	mu   sync.Mutex
	regs []byte
	ptr  int
}

// NewMemory returns a device with size registers.
func NewMemory(size int) *Memory {
	return &Memory{regs: make([]byte, size)}
}

// Transfer implements Device.
func (m *Memory) Transfer(write []byte, readLen int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.regs) == 0 {
		return nil, ErrNack
	}
	if len(write) > 0 {
		m.ptr = int(write[0]) % len(m.regs)
		for _, b := range write[1:] {
			m.regs[m.ptr] = b
			m.ptr = (m.ptr + 1) % len(m.regs)
		}
	}
	out := make([]byte, readLen)
	for i := range out {
		out[i] = m.regs[m.ptr]
		m.ptr = (m.ptr + 1) % len(m.regs)
	}
	return out, nil
}

// Bus is the i2c driver domain.
type Bus struct {
	req, resp *queue.Queue
	ch        api.Channel
	k         api.Kernel

	mu        sync.Mutex
	devices   map[uint16]Device
	transfers uint64
}

var _ api.ProtectionDomain = (*Bus)(nil)

// NewBus returns a bus answering on ch.
func NewBus(req, resp *queue.Queue, ch api.Channel) *Bus {
	return &Bus{req: req, resp: resp, ch: ch, devices: make(map[uint16]Device)}
}

// Attach places dev at addr.
func (b *Bus) Attach(addr uint16, dev Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[addr]; ok {
		return api.ErrAlreadyExists
	}
	b.devices[addr] = dev
	return nil
}

// Init records the kernel handle.
func (b *Bus) Init(k api.Kernel) error {
	b.k = k
	return nil
}

// Notified runs every queued request.
func (b *Bus) Notified(ch api.Channel) {
	if ch != b.ch {
		log.Warningf("i2c: notification on unknown channel %d", ch)
		return
	}
	answered := false
	for {
		d, err := b.req.DequeueActive()
		if err != nil {
			break
		}
		var r *protocol.I2CRequest
		if data, err := b.req.Bytes(d); err == nil {
			if r, err = protocol.DecodeI2CRequest(data); err != nil {
				log.Errorf("i2c: %v", err)
			}
		}
		if err := b.req.EnqueueFree(d.Offset, uint32(b.req.BufferSize())); err != nil {
			log.Errorf("i2c: recycle request: %v", err)
		}
		if r == nil {
			continue
		}
		if b.respond(b.execute(r)) {
			answered = true
		}
	}
	if answered {
		b.k.Notify(b.ch)
	}
}

func (b *Bus) execute(r *protocol.I2CRequest) *protocol.I2CResponse {
	out := &protocol.I2CResponse{ID: r.ID}
	if r.ReadLen < 0 || r.ReadLen > protocol.MaxPayload(b.resp.BufferSize()) {
		out.Status = protocol.I2CBadRequest
		return out
	}
	b.mu.Lock()
	dev, ok := b.devices[r.Addr]
	b.transfers++
	b.mu.Unlock()
	if !ok {
		out.Status = protocol.I2CNoDevice
		return out
	}
	read, err := dev.Transfer(r.Write, r.ReadLen)
	if err != nil {
		out.Status = protocol.I2CNack
		return out
	}
	out.Read = read
	return out
}

func (b *Bus) respond(r *protocol.I2CResponse) bool {
	d, err := b.resp.DequeueFree()
	if err != nil {
		log.Errorf("i2c: no free response buffer for request %d", r.ID)
		return false
	}
	buf, err := b.resp.Buffer(d)
	if err != nil {
		log.Errorf("i2c: %v", err)
		return false
	}
	n, err := protocol.EncodeInto(buf, r)
	if err == nil {
		err = b.resp.EnqueueActive(d.Offset, uint32(n))
	}
	if err != nil {
		log.Errorf("i2c: respond %d: %v", r.ID, err)
		return false
	}
	return true
}

// Transfers returns the number of requests executed.
func (b *Bus) Transfers() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transfers
}
