// File: repl/line.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package repl

import (
	"errors"
	"io"

	"github.com/momentics/hioload-mp/api"
)

// Control bytes understood by the line editor.
const (
	keyInterrupt = 0x03 // Ctrl-C
	keyEOF       = 0x04 // Ctrl-D
	keyBackspace = 0x08
	keyDelete    = 0x7f
	keyBell      = 0x07
)

var errInterrupted = errors.New("interrupted")

// lineEditor reads one line at a time from the console into a fixed
// buffer carved from the interpreter heap, echoing as it goes.
type lineEditor struct {
	con    api.Console
	buf    []byte
	n      int
	lastCR bool
}

func newLineEditor(con api.Console, buf []byte) *lineEditor {
	return &lineEditor{con: con, buf: buf}
}

// readLine prints prompt and collects bytes up to CR or LF. Ctrl-C drops
// the line and reports errInterrupted; Ctrl-D on an empty line reports
// io.EOF. Bytes past the buffer are refused with a bell.
func (e *lineEditor) readLine(prompt string) (string, error) {
	e.n = 0
	e.echo([]byte(prompt))
	for {
		b, err := e.con.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' && e.lastCR {
			e.lastCR = false
			continue
		}
		e.lastCR = b == '\r'
		switch {
		case b == '\r' || b == '\n':
			e.echo([]byte("\n"))
			return string(e.buf[:e.n]), nil
		case b == keyInterrupt:
			e.echo([]byte("^C\n"))
			return "", errInterrupted
		case b == keyEOF:
			if e.n == 0 {
				return "", io.EOF
			}
		case b == keyBackspace || b == keyDelete:
			if e.n > 0 {
				e.n--
				e.echo([]byte("\b \b"))
			}
		case b < 0x20:
			// Other control bytes are dropped.
		case e.n == len(e.buf):
			e.echo([]byte{keyBell})
		default:
			e.buf[e.n] = b
			e.n++
			e.echo([]byte{b})
		}
	}
}

func (e *lineEditor) echo(p []byte) {
	if _, err := e.con.Write(p); err != nil {
		log.Debugf("echo: %v", err)
	}
}
