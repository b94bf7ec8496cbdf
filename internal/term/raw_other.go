//go:build !linux

// File: internal/term/raw_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package term

import "errors"

var errUnsupported = errors.New("term: raw mode not supported on this platform")

// MakeRaw is not available on this platform.
func MakeRaw(fd int) (func() error, error) { return nil, errUnsupported }

// IsTerminal always reports false on this platform.
func IsTerminal(fd int) bool { return false }
