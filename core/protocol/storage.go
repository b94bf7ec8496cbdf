// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Storage command and completion messages.

package protocol

import "github.com/momentics/hioload-mp/api"

// Command is one storage request. Fields unused by Op are left zero.
type Command struct {
	ID      uint64        `cbor:"1,keyasint"`
	Op      Op            `cbor:"2,keyasint"`
	Path    string        `cbor:"3,keyasint,omitempty"`
	NewPath string        `cbor:"4,keyasint,omitempty"`
	FD      api.FD        `cbor:"5,keyasint,omitempty"`
	Flags   api.OpenFlags `cbor:"6,keyasint,omitempty"`
	Offset  int64         `cbor:"7,keyasint,omitempty"`
	Count   int           `cbor:"8,keyasint,omitempty"`
	Data    []byte        `cbor:"9,keyasint,omitempty"`
}

// Completion answers the Command with the same ID.
type Completion struct {
	ID     uint64       `cbor:"1,keyasint"`
	Status api.FSStatus `cbor:"2,keyasint"`
	FD     api.FD       `cbor:"3,keyasint,omitempty"`
	Count  int          `cbor:"4,keyasint,omitempty"`
	Data   []byte       `cbor:"5,keyasint,omitempty"`
	Name   string       `cbor:"6,keyasint,omitempty"`
	Loc    int64        `cbor:"7,keyasint,omitempty"`
	Stat   *api.Stat    `cbor:"8,keyasint,omitempty"`
}

// Overhead is the room reserved in a buffer for a message's framing, so a
// payload of BufferSize-Overhead bytes always fits.
const Overhead = 128

// MaxPayload returns the largest Data slice that fits a buffer of size.
func MaxPayload(bufSize int) int {
	if bufSize <= Overhead {
		return 0
	}
	return bufSize - Overhead
}
