// File: peer/serial.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Serial driver. A reader goroutine fills RX buffers from the input stream
// and is the sole producer of the RX active ring; the domain loop drains
// the TX active ring into the output stream.

package peer

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/queue"
)

// SerialChannels are the driver's own channel numbers.
type SerialChannels struct {
	RX api.Channel
	TX api.Channel
}

// Serial is the serial driver domain.
type Serial struct {
	rx, tx *queue.Queue
	ch     SerialChannels
	in     io.Reader
	out    io.Writer

	k       api.Kernel
	rxFreed chan struct{}
	stop    chan struct{}
	once    sync.Once

	// mu keeps the reader off the RX rings once Close has returned.
	mu     sync.RWMutex
	closed bool

	rxBytes atomic.Uint64
	txBytes atomic.Uint64
}

var _ api.ProtectionDomain = (*Serial)(nil)

// NewSerial returns a driver reading in and writing out. in may be nil
// for an output-only console.
func NewSerial(rx, tx *queue.Queue, ch SerialChannels, in io.Reader, out io.Writer) *Serial {
	return &Serial{
		rx:      rx,
		tx:      tx,
		ch:      ch,
		in:      in,
		out:     out,
		rxFreed: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Init starts the reader goroutine.
func (s *Serial) Init(k api.Kernel) error {
	s.k = k
	if s.in != nil {
		go s.readLoop()
	}
	return nil
}

// Notified handles RX buffer returns and TX publications.
func (s *Serial) Notified(ch api.Channel) {
	switch ch {
	case s.ch.RX:
		select {
		case s.rxFreed <- struct{}{}:
		default:
		}
	case s.ch.TX:
		s.drainTX()
	default:
		log.Warningf("serial: notification on unknown channel %d", ch)
	}
}

func (s *Serial) drainTX() {
	drained := false
	for {
		d, err := s.tx.DequeueActive()
		if err != nil {
			break
		}
		if b, err := s.tx.Bytes(d); err == nil {
			if _, err := s.out.Write(b); err != nil {
				log.Errorf("serial: write: %v", err)
			}
			s.txBytes.Add(uint64(len(b)))
		} else {
			log.Errorf("serial tx: %v", err)
		}
		if err := s.tx.EnqueueFree(d.Offset, uint32(s.tx.BufferSize())); err != nil {
			log.Errorf("serial tx: recycle: %v", err)
		}
		drained = true
	}
	if drained {
		s.k.Notify(s.ch.TX)
	}
}

func (s *Serial) readLoop() {
	buf := make([]byte, s.rx.BufferSize())
	for {
		n, err := s.in.Read(buf)
		if n > 0 && !s.publish(buf[:n]) {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				log.Errorf("serial: read: %v", err)
			}
			return
		}
	}
}

// publish copies p into one RX buffer, waiting for the interpreter to
// return one if none is free. It reports false once the driver stops.
func (s *Serial) publish(p []byte) bool {
	for {
		ok, done := s.tryPublish(p)
		if done {
			return ok
		}
		select {
		case <-s.rxFreed:
		case <-s.stop:
			return false
		}
	}
}

// tryPublish reports done=false when no RX buffer is free.
func (s *Serial) tryPublish(p []byte) (ok, done bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, true
	}
	d, err := s.rx.DequeueFree()
	if err != nil {
		return false, false
	}
	buf, err := s.rx.Buffer(d)
	if err != nil {
		log.Errorf("serial rx: %v", err)
		return false, true
	}
	n := copy(buf, p)
	if err := s.rx.EnqueueActive(d.Offset, uint32(n)); err != nil {
		log.Errorf("serial rx: publish: %v", err)
		return false, true
	}
	s.rxBytes.Add(uint64(n))
	s.k.Notify(s.ch.RX)
	return true, true
}

// Stats reports byte counters.
func (s *Serial) Stats() map[string]any {
	return map[string]any{"rx_bytes": s.rxBytes.Load(), "tx_bytes": s.txBytes.Load()}
}

// Close stops the reader. A reader blocked inside Read only notices once
// the input stream returns, so Close does not wait for it, but after Close
// the reader no longer touches the RX rings.
func (s *Serial) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
