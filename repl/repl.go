// File: repl/repl.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A small line-oriented command interpreter hosted in the interpreter
// context. Everything it does goes through the host calls in api.Env, so
// every wait for input, storage or time suspends the context.

package repl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/momentics/hioload-mp/api"
)

var log = commonlog.GetLogger("mp.repl")

// Prompt is printed before every interactive line.
const Prompt = ">>> "

// MaxLine bounds an input line. The line buffer comes out of the heap.
const MaxLine = 512

var (
	ErrNoConsole = errors.New("repl: no console")
	errExit      = errors.New("exit")
)

// Interpreter implements api.Interpreter.
type Interpreter struct {
	env      api.Env
	ed       *lineEditor
	commands map[string]*command
	depth    int
}

var _ api.Interpreter = (*Interpreter)(nil)

// New returns an interpreter with the built-in command set.
func New() *Interpreter {
	in := &Interpreter{commands: make(map[string]*command)}
	for _, c := range builtins() {
		in.commands[c.name] = c
	}
	return in
}

// Init binds the interpreter to env for one session.
func (in *Interpreter) Init(env api.Env) error {
	if env.Console == nil {
		return ErrNoConsole
	}
	size := min(len(env.Heap), MaxLine)
	if size < 16 {
		return api.NewError(api.ErrCodeResourceExhausted, "heap too small for the line buffer").
			WithContext("heap", len(env.Heap))
	}
	in.env = env
	in.ed = newLineEditor(env.Console, env.Heap[:size:size])
	in.depth = 0
	return nil
}

// Run executes the configured script in exec mode, or reads and runs
// lines until Ctrl-D or exit otherwise.
func (in *Interpreter) Run() error {
	if in.env.Mode == api.ModeExec {
		err := in.runScript(in.env.Script)
		if errors.Is(err, errExit) {
			return nil
		}
		return err
	}
	in.printf("hioload-mp; \"help\" lists commands, Ctrl-D exits\n")
	for {
		line, err := in.ed.readLine(Prompt)
		switch {
		case errors.Is(err, io.EOF):
			in.printf("\n")
			return nil
		case errors.Is(err, errInterrupted):
			continue
		case err != nil:
			return err
		}
		err = in.execute(line)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			in.printf("error: %v\n", err)
		}
	}
}

// Deinit drops the session state.
func (in *Interpreter) Deinit() {
	in.env = api.Env{}
	in.ed = nil
}

// execute runs one command line. Blank lines and # comments do nothing.
func (in *Interpreter) execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	name, rest, _ := strings.Cut(line, " ")
	c, ok := in.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	args := strings.Fields(rest)
	if c.text {
		// The last argument keeps its inner spacing.
		args = splitText(rest, c.min)
	}
	if len(args) < c.min || (c.max >= 0 && len(args) > c.max) {
		return fmt.Errorf("usage: %s %s", c.name, c.usage)
	}
	return c.run(in, args)
}

// splitText returns n leading fields of s followed by the remainder.
func splitText(s string, n int) []string {
	var out []string
	s = strings.TrimLeft(s, " ")
	for i := 0; i < n-1 && s != ""; i++ {
		var field string
		field, s, _ = strings.Cut(s, " ")
		out = append(out, field)
		s = strings.TrimLeft(s, " ")
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// maxScriptDepth bounds nested run commands.
const maxScriptDepth = 8

// runScript executes a file from storage line by line. The first failing
// line stops the script.
func (in *Interpreter) runScript(path string) error {
	if in.depth >= maxScriptDepth {
		return fmt.Errorf("%s: scripts nested too deep", path)
	}
	data, err := in.readFile(path)
	if err != nil {
		return err
	}
	in.depth++
	defer func() { in.depth-- }()
	log.Infof("running %s", path)
	for i, line := range strings.Split(string(data), "\n") {
		if err := in.execute(line); err != nil {
			if errors.Is(err, errExit) {
				return err
			}
			return fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
	}
	return nil
}

func (in *Interpreter) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(in.env.Console, format, args...); err != nil {
		log.Warningf("console: %v", err)
	}
}
