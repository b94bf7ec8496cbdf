// File: internal/shm/region.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named shared memory regions. The host maps every region once at
// start-of-day and hands the same bytes to each domain that lists it, the
// way a microkernel system description maps one memory region into several
// protection domains.

package shm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/momentics/hioload-mp/api"
)

// Region is one mapped shared memory area.
type Region struct {
	name   string
	data   []byte
	mapped bool
}

// Name returns the region identifier.
func (r *Region) Name() string { return r.name }

// Bytes returns the mapped memory. The slice stays valid until Close.
func (r *Region) Bytes() []byte { return r.data }

// Size returns the region size in bytes.
func (r *Region) Size() int { return len(r.data) }

// Registry owns every region of a system.
type Registry struct {
	mu      sync.Mutex
	regions map[string]*Region
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{regions: make(map[string]*Region)}
}

// Map creates region name of size bytes, or returns the existing one if it
// was mapped with the same size.
func (g *Registry) Map(name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: region %q: %w: size %d", name, api.ErrInvalidArgument, size)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.regions[name]; ok {
		if r.Size() != size {
			return nil, fmt.Errorf("shm: region %q already mapped with %d bytes, requested %d: %w",
				name, r.Size(), size, api.ErrAlreadyExists)
		}
		return r, nil
	}
	data, mapped, err := mapShared(size)
	if err != nil {
		return nil, fmt.Errorf("shm: map region %q: %w", name, err)
	}
	r := &Region{name: name, data: data, mapped: mapped}
	g.regions[name] = r
	return r, nil
}

// Lookup returns a previously mapped region.
func (g *Registry) Lookup(name string) (*Region, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.regions[name]
	if !ok {
		return nil, fmt.Errorf("shm: region %q: %w", name, api.ErrNotFound)
	}
	return r, nil
}

// Names lists mapped regions in lexical order.
func (g *Registry) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.regions))
	for n := range g.regions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close unmaps every region. Regions must not be touched afterwards.
func (g *Registry) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for name, r := range g.regions {
		if r.mapped {
			if err := unmapShared(r.data); err != nil {
				errs = append(errs, fmt.Errorf("shm: unmap %q: %w", name, err))
			}
		}
		delete(g.regions, name)
	}
	return errors.Join(errs...)
}
