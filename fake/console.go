// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted console.

package fake

import (
	"bytes"
	"io"
	"sync"

	"github.com/momentics/hioload-mp/api"
)

// Console feeds Input one byte at a time and records everything written.
// ReadByte reports io.EOF once Input is used up.
type Console struct {
	mu    sync.Mutex
	Input []byte
	out   bytes.Buffer
}

var _ api.Console = (*Console)(nil)

// NewConsole returns a console with the given pending input.
func NewConsole(input string) *Console {
	return &Console{Input: []byte(input)}
}

// ReadByte implements api.Console.
func (c *Console) ReadByte() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Input) == 0 {
		return 0, io.EOF
	}
	b := c.Input[0]
	c.Input = c.Input[1:]
	return b, nil
}

// Write implements api.Console.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

// Output returns everything written so far.
func (c *Console) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}
