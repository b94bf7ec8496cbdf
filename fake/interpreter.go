// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted interpreter for exercising the boot component.

package fake

import "github.com/momentics/hioload-mp/api"

// Interpreter runs one scripted step per Run call. Runs past the end of
// Steps return nil immediately.
type Interpreter struct {
	Steps   []func(env api.Env) error
	InitErr error

	Env     api.Env
	Inits   int
	Runs    int
	Deinits int
}

var _ api.Interpreter = (*Interpreter)(nil)

// Init records env.
func (i *Interpreter) Init(env api.Env) error {
	i.Inits++
	i.Env = env
	return i.InitErr
}

// Run executes the next step.
func (i *Interpreter) Run() error {
	n := i.Runs
	i.Runs++
	if n < len(i.Steps) && i.Steps[n] != nil {
		return i.Steps[n](i.Env)
	}
	return nil
}

// Deinit counts teardowns.
func (i *Interpreter) Deinit() { i.Deinits++ }
