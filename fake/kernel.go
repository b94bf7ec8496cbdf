// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the host contracts.

package fake

import (
	"sync"

	"github.com/momentics/hioload-mp/api"
)

// Kernel is a fake api.Kernel that records notifications and answers
// protected calls through OnCall.
type Kernel struct {
	mu       sync.Mutex
	name     string
	notified []api.Channel

	// OnNotify, if set, runs after a notification is recorded.
	OnNotify func(ch api.Channel)
	// OnCall answers PPCall. Without it every call fails with ErrNotSupported.
	OnCall func(ch api.Channel, msg api.Message) (api.Message, error)
}

var _ api.Kernel = (*Kernel)(nil)

// NewKernel creates a fake kernel for domain name.
func NewKernel(name string) *Kernel {
	return &Kernel{name: name}
}

// Name implements api.Kernel.
func (k *Kernel) Name() string { return k.name }

// Notify records ch.
func (k *Kernel) Notify(ch api.Channel) {
	k.mu.Lock()
	k.notified = append(k.notified, ch)
	fn := k.OnNotify
	k.mu.Unlock()
	if fn != nil {
		fn(ch)
	}
}

// PPCall forwards to OnCall.
func (k *Kernel) PPCall(ch api.Channel, msg api.Message) (api.Message, error) {
	k.mu.Lock()
	fn := k.OnCall
	k.mu.Unlock()
	if fn == nil {
		return api.Message{}, api.ErrNotSupported
	}
	return fn(ch, msg)
}

// Notifications returns every channel notified so far, in order.
func (k *Kernel) Notifications() []api.Channel {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]api.Channel(nil), k.notified...)
}

// Count returns how many times ch was notified.
func (k *Kernel) Count(ch api.Channel) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, c := range k.notified {
		if c == ch {
			n++
		}
	}
	return n
}

// Reset forgets recorded notifications.
func (k *Kernel) Reset() {
	k.mu.Lock()
	k.notified = nil
	k.mu.Unlock()
}
