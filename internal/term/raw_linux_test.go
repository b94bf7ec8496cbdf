//go:build linux

package term_test

import (
	"os"
	"testing"

	"github.com/momentics/hioload-mp/internal/term"
)

func TestPipeIsNotATerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	if term.IsTerminal(int(r.Fd())) {
		t.Error("pipe reported as terminal")
	}
	if _, err := term.MakeRaw(int(r.Fd())); err == nil {
		t.Error("MakeRaw on a pipe succeeded")
	}
}
