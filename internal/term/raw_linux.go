//go:build linux

// File: internal/term/raw_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package term

import (
	"golang.org/x/sys/unix"
)

// MakeRaw puts the terminal on fd into byte-at-a-time mode and returns a
// function that restores the previous settings. The line editor does its
// own echo, so ECHO and ICANON go. ISIG goes too: Ctrl-C and Ctrl-D reach
// the interpreter as bytes. Output processing stays on so "\n" still
// returns the carriage.
func MakeRaw(fd int) (restore func() error, err error) {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	raw := *old
	raw.Iflag &^= unix.ICRNL | unix.INLCR | unix.IGNCR | unix.IXON
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}
	return func() error { return unix.IoctlSetTermios(fd, unix.TCSETS, old) }, nil
}

// IsTerminal reports whether fd refers to a terminal.
func IsTerminal(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	return err == nil
}
