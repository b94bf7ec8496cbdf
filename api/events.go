// File: api/events.go
// Package api defines core event types for hioload-mp.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "strings"

// EventSource is a logical source of external occurrences. Each source
// occupies exactly one bit so that a set of sources fits in one word.
type EventSource uint32

const (
	SourceNone        EventSource = 0
	SourceSerial      EventSource = 1 << 0
	SourceTimer       EventSource = 1 << 1
	SourceStorage     EventSource = 1 << 2
	SourceFramebuffer EventSource = 1 << 3
	SourceI2C         EventSource = 1 << 4

	// SourceAll is the union of every known source.
	SourceAll = SourceSerial | SourceTimer | SourceStorage | SourceFramebuffer | SourceI2C
)

var sourceNames = [...]struct {
	src  EventSource
	name string
}{
	{SourceSerial, "serial"},
	{SourceTimer, "timer"},
	{SourceStorage, "storage"},
	{SourceFramebuffer, "framebuffer"},
	{SourceI2C, "i2c"},
}

// Single reports whether s names exactly one known source.
func (s EventSource) Single() bool {
	return s != SourceNone && s&^SourceAll == 0 && s&(s-1) == 0
}

// Has reports whether every bit of o is present in s.
func (s EventSource) Has(o EventSource) bool {
	return o != SourceNone && s&o == o
}

// String renders the set as "serial|timer", or "none".
func (s EventSource) String() string {
	if s == SourceNone {
		return "none"
	}
	var parts []string
	for _, n := range sourceNames {
		if s&n.src != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := s &^ SourceAll; rest != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}

// ParseEventSource maps a source name back to its bit.
func ParseEventSource(name string) (EventSource, bool) {
	if name == "none" {
		return SourceNone, true
	}
	for _, n := range sourceNames {
		if n.name == name {
			return n.src, true
		}
	}
	return SourceNone, false
}
