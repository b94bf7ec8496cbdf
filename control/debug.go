// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Probe registry behind the debug dump. Probes are read from whatever
// goroutine asks for the dump while the domains keep running, so a probe
// must only read atomics or take its own locks.

package control

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/momentics/hioload-mp/api"
)

var log = commonlog.GetLogger("mp.control")

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

var _ api.Debug = (*DebugProbes)(nil)

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe adds or replaces the probe called name. A nil fn removes it.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if fn == nil {
		delete(dp.probes, name)
		return
	}
	dp.probes[name] = fn
}

// Names returns the registered probe names in lexical order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	names := make([]string, 0, len(dp.probes))
	for n := range dp.probes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// DumpState calls every probe. A probe that panics reports the panic as
// its value; the rest of the dump is unaffected.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	fns := make(map[string]func() any, len(dp.probes))
	for k, fn := range dp.probes {
		fns[k] = fn
	}
	dp.mu.RUnlock()
	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = callProbe(k, fn)
	}
	return out
}

func callProbe(name string, fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			log.Warningf("debug probe %s panicked: %v", name, r)
			v = fmt.Sprintf("probe failed: %v", r)
		}
	}()
	return fn()
}
