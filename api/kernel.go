// File: api/kernel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contracts between a protection domain and the host runtime that delivers
// its notifications. The host calls Init once, then Notified once per
// asynchronous notification, always from the same flow of control.

package api

// Channel is the opaque identifier of a peer link as seen by one domain.
type Channel uint32

// MaxChannels bounds channel identifiers; valid channels are [0, MaxChannels).
const MaxChannels = 63

// Valid reports whether ch is inside the host's channel space.
func (ch Channel) Valid() bool {
	return ch < MaxChannels
}

// Message is the payload of a protected procedure call.
type Message struct {
	Label uint64
	Regs  [4]uint64
}

// Notifier signals the peer at the other end of a channel.
// Signals carry no data and coalesce while undelivered.
type Notifier interface {
	Notify(ch Channel)
}

// Caller performs a synchronous protected procedure call into a peer.
type Caller interface {
	PPCall(ch Channel, msg Message) (Message, error)
}

// Kernel is the handle a domain receives from the host at Init.
type Kernel interface {
	Notifier
	Caller
	// Name returns the name the domain was registered under.
	Name() string
}

// ProtectionDomain is an event-driven component hosted by the runtime.
type ProtectionDomain interface {
	// Init is invoked once before any notification.
	Init(k Kernel) error
	// Notified is invoked once per delivered notification.
	Notified(ch Channel)
}

// ProtectedServer is implemented by domains that accept protected calls.
type ProtectedServer interface {
	Protected(ch Channel, msg Message) Message
}
