// File: core/boot/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package boot

import (
	"fmt"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	"github.com/momentics/hioload-mp/core/sched"
)

// entry is the interpreter context. Each pass initializes the interpreter
// over a cleared heap, runs one session and tears it down. REPL mode then
// starts over within the restart budget; exec mode stops after one pass.
func (c *Component) entry() {
	c.say(MsgInitialising)
	for {
		c.metrics.Add(control.MetricInterpreterRuns, 1)
		if err := c.session(); err != nil {
			c.lastErr = err
			c.metrics.Add(control.MetricInterpreterFailures, 1)
			log.Errorf("interpreter: %v", err)
			c.say("MP|ERROR: " + err.Error())
		} else {
			c.lastErr = nil
		}
		c.say(MsgExited)
		if !c.restart() {
			break
		}
	}
	close(c.done)
	c.sched.Exit()
}

func (c *Component) restart() bool {
	if c.env.Mode == api.ModeExec {
		return false
	}
	if limit := c.cfg.Interpreter.MaxRestarts; limit > 0 && c.restarts >= limit {
		log.Noticef("restart budget of %d used up", limit)
		return false
	}
	c.restarts++
	c.metrics.Add(control.MetricInterpreterRestarts, 1)
	return true
}

// session runs one interpreter lifetime. Any failure, returned or raised,
// ends up in the result; scheduler invariant violations keep propagating.
func (c *Component) session() (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if inv, ok := r.(*sched.InvariantError); ok {
			panic(inv)
		}
		if e, ok := r.(error); ok {
			err = fmt.Errorf("uncaught failure: %w", e)
			return
		}
		err = fmt.Errorf("uncaught failure: %v", r)
	}()
	clear(c.heap)
	interp := c.opts.Interpreter
	if err := interp.Init(c.env); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer interp.Deinit()
	return interp.Run()
}

// say writes one console line and mirrors it on the log.
func (c *Component) say(line string) {
	log.Info(line)
	if _, err := c.serial.Write([]byte(line + "\n")); err != nil {
		log.Warningf("console: %v", err)
	}
}
