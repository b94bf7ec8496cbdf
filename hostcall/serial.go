// File: hostcall/serial.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package hostcall

import (
	"github.com/eapache/queue"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	mpq "github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/core/sched"
	"github.com/momentics/hioload-mp/internal/concurrency"
)

// SerialConfig wires a console to its queues.
type SerialConfig struct {
	RX, TX *mpq.Queue
	// RXChannel is signalled after RX buffers are handed back to the driver.
	RXChannel api.Channel
	// TXChannel is signalled after TX buffers are published.
	TXChannel api.Channel
	// Backlog bounds the bytes Write may hold while TX buffers are in flight.
	Backlog int
}

// Serial is the interpreter console over the serial RX/TX queues.
type Serial struct {
	sched   *sched.Scheduler
	k       api.Notifier
	cfg     SerialConfig
	metrics *control.MetricsRegistry

	input *concurrency.RingBuffer[byte]

	// TX chunks not yet copied into a TX buffer. Head chunk may be
	// partially sent; sent counts its consumed prefix.
	backlog      *queue.Queue
	backlogBytes int
	sent         int
}

var _ api.Console = (*Serial)(nil)

// NewSerial returns a console. The input ring holds at least two RX buffers.
func NewSerial(s *sched.Scheduler, k api.Notifier, cfg SerialConfig, metrics *control.MetricsRegistry) *Serial {
	return &Serial{
		sched:   s,
		k:       k,
		cfg:     cfg,
		metrics: metrics,
		input:   concurrency.NewRingBuffer[byte](uint64(2 * cfg.RX.BufferSize())),
		backlog: queue.New(),
	}
}

// ProcessRX moves received bytes from the RX active ring into the input
// ring and recycles the buffers. It runs as a demux hook in the event
// context, and from ReadByte once the input ring is empty.
func (s *Serial) ProcessRX() {
	returned := 0
	for s.input.Free() >= s.cfg.RX.BufferSize() {
		d, err := s.cfg.RX.DequeueActive()
		if err != nil {
			break
		}
		if b, err := s.cfg.RX.Bytes(d); err == nil {
			s.input.EnqueueSlice(b)
			s.metrics.Add(control.MetricSerialRxBytes, int64(len(b)))
		} else {
			log.Errorf("serial rx: %v", err)
		}
		if err := s.cfg.RX.EnqueueFree(d.Offset, uint32(s.cfg.RX.BufferSize())); err != nil {
			log.Errorf("serial rx: recycle buffer: %v", err)
			continue
		}
		returned++
	}
	if returned > 0 {
		s.k.Notify(s.cfg.RXChannel)
	}
}

// Buffered returns the number of input bytes ready for ReadByte.
func (s *Serial) Buffered() int { return s.input.Len() }

// ReadByte returns the next input byte, suspending until one arrives.
// Buffers ProcessRX left on the RX active ring for lack of room are read
// before suspending: the driver has already signalled for them.
func (s *Serial) ReadByte() (byte, error) {
	for {
		if b, ok := s.input.Dequeue(); ok {
			return b, nil
		}
		s.ProcessRX()
		if s.input.Len() > 0 {
			continue
		}
		s.sched.Await(api.SourceSerial)
	}
}

// Write queues p for transmission and pushes as much as the TX free ring
// allows. Bytes that fit neither a TX buffer nor the backlog bound are
// refused with ErrResourceExhausted; the returned count says how many
// were taken.
func (s *Serial) Write(p []byte) (int, error) {
	taken := 0
	for taken < len(p) {
		room := s.cfg.Backlog - s.backlogBytes
		if room <= 0 {
			break
		}
		n := min(room, len(p)-taken)
		s.backlog.Add(append([]byte(nil), p[taken:taken+n]...))
		s.backlogBytes += n
		taken += n
		s.FlushTX()
	}
	if taken < len(p) {
		return taken, api.Wrap(api.ErrCodeResourceExhausted, api.ErrResourceExhausted, "serial tx backlog full").
			WithContext("backlog", s.backlogBytes).WithContext("dropped", len(p)-taken)
	}
	return taken, nil
}

// FlushTX copies backlog into free TX buffers and signals the driver. It
// runs from either context.
func (s *Serial) FlushTX() {
	published := false
	for s.backlog.Length() > 0 {
		d, err := s.cfg.TX.DequeueFree()
		if err != nil {
			break
		}
		buf, err := s.cfg.TX.Buffer(d)
		if err != nil {
			log.Errorf("serial tx: %v", err)
			continue
		}
		filled := 0
		for filled < len(buf) && s.backlog.Length() > 0 {
			chunk := s.backlog.Peek().([]byte)
			c := copy(buf[filled:], chunk[s.sent:])
			filled += c
			s.sent += c
			if s.sent == len(chunk) {
				s.backlog.Remove()
				s.sent = 0
			}
		}
		if err := s.cfg.TX.EnqueueActive(d.Offset, uint32(filled)); err != nil {
			log.Errorf("serial tx: publish buffer: %v", err)
			break
		}
		s.backlogBytes -= filled
		s.metrics.Add(control.MetricSerialTxBytes, int64(filled))
		published = true
	}
	s.metrics.Set(control.MetricSerialTxBacklog, s.backlogBytes)
	if published {
		s.k.Notify(s.cfg.TXChannel)
	}
}

// Backlog returns the bytes waiting for a TX buffer.
func (s *Serial) Backlog() int { return s.backlogBytes }
