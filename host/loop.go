// File: host/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loop delivers notifications to one protection domain. Signals set a bit
// per channel; a second signal on a channel whose bit is still set is
// absorbed, the way binary notifications behave on a microkernel. Init
// runs on the loop goroutine before the first delivery, and deliveries
// happen in ascending channel order within one batch.

package host

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/internal/concurrency"
)

// FaultError reports a panic raised by a domain handler.
type FaultError struct {
	Domain string
	Value  any
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("host: domain %s faulted: %v", e.Domain, e.Value)
}

// Loop is the notification pump of one domain.
type Loop struct {
	name      string
	pd        api.ProtectionDomain
	cpu       int
	pending   atomic.Uint64 // one bit per channel
	wake      chan struct{} // capacity 1
	exec      sync.Mutex    // serializes Init, Notified and Protected
	running   atomic.Bool
	ready     chan struct{} // closed once Init returned
	delivered atomic.Uint64
	absorbed  atomic.Uint64
}

// NewLoop creates a loop for pd. cpu < 0 leaves the loop unpinned.
func NewLoop(name string, pd api.ProtectionDomain, cpu int) *Loop {
	return &Loop{
		name:  name,
		pd:    pd,
		cpu:   cpu,
		wake:  make(chan struct{}, 1),
		ready: make(chan struct{}),
	}
}

// Name returns the domain name.
func (l *Loop) Name() string { return l.name }

// Signal marks ch pending. It never blocks and is safe from any goroutine.
func (l *Loop) Signal(ch api.Channel) {
	bit := uint64(1) << ch
	for {
		old := l.pending.Load()
		if old&bit != 0 {
			l.absorbed.Add(1)
			return
		}
		if l.pending.CompareAndSwap(old, old|bit) {
			break
		}
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Delivered returns the number of Notified calls made.
func (l *Loop) Delivered() uint64 { return l.delivered.Load() }

// Absorbed returns the number of signals merged into an undelivered one.
func (l *Loop) Absorbed() uint64 { return l.absorbed.Load() }

// Ready is closed once Init has returned successfully.
func (l *Loop) Ready() <-chan struct{} { return l.ready }

// Run initializes the domain and delivers notifications until ctx ends.
// A handler panic stops the loop with a *FaultError.
func (l *Loop) Run(ctx context.Context, k api.Kernel) (err error) {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("host: loop %s already running", l.name)
	}
	if l.cpu >= 0 {
		if err := concurrency.PinCurrentThread(l.cpu); err != nil {
			log.Warningf("domain %s: %v", l.name, err)
		} else {
			defer concurrency.UnpinCurrentThread()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Criticalf("domain %s faulted: %v", l.name, r)
			err = &FaultError{Domain: l.name, Value: r}
		}
	}()

	l.exec.Lock()
	err = l.pd.Init(k)
	l.exec.Unlock()
	if err != nil {
		return fmt.Errorf("host: init %s: %w", l.name, err)
	}
	close(l.ready)
	log.Debugf("domain %s initialised", l.name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
		set := l.pending.Swap(0)
		for set != 0 {
			ch := api.Channel(bits.TrailingZeros64(set))
			set &^= uint64(1) << ch
			l.exec.Lock()
			l.pd.Notified(ch)
			l.exec.Unlock()
			l.delivered.Add(1)
		}
	}
}

func (l *Loop) protected(ch api.Channel, msg api.Message) (api.Message, error) {
	srv, ok := l.pd.(api.ProtectedServer)
	if !ok {
		return api.Message{}, fmt.Errorf("%w: domain %s accepts no protected calls", api.ErrNotSupported, l.name)
	}
	l.exec.Lock()
	defer l.exec.Unlock()
	return srv.Protected(ch, msg), nil
}
