// File: host/system.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// System is the static wiring of a deployment: the set of domains and the
// channels between them. Wiring is fixed before Run.

package host

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-mp/api"
)

var log = commonlog.GetLogger("mp.host")

type endpoint struct {
	domain string
	ch     api.Channel
}

// System owns the domain loops and the channel map.
type System struct {
	mu      sync.Mutex
	loops   map[string]*Loop
	order   []string
	links   map[endpoint]endpoint
	running bool
}

// NewSystem returns an empty system.
func NewSystem() *System {
	return &System{
		loops: make(map[string]*Loop),
		links: make(map[endpoint]endpoint),
	}
}

// AddDomain registers pd under name. cpu < 0 leaves its loop unpinned.
func (s *System) AddDomain(name string, pd api.ProtectionDomain, cpu int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("host: add %s: system already running", name)
	}
	if _, ok := s.loops[name]; ok {
		return fmt.Errorf("%w: domain %s", api.ErrAlreadyExists, name)
	}
	s.loops[name] = NewLoop(name, pd, cpu)
	s.order = append(s.order, name)
	return nil
}

// Connect links channel aCh of domain a with channel bCh of domain b.
// Notifying one end signals the other; a protected call on one end enters
// the other if it is a ProtectedServer.
func (s *System) Connect(a string, aCh api.Channel, b string, bCh api.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("host: connect: system already running")
	}
	ea, eb := endpoint{a, aCh}, endpoint{b, bCh}
	for _, e := range []endpoint{ea, eb} {
		if _, ok := s.loops[e.domain]; !ok {
			return fmt.Errorf("%w: domain %s", api.ErrNotFound, e.domain)
		}
		if !e.ch.Valid() {
			return fmt.Errorf("%w: %s channel %d", api.ErrInvalidChannel, e.domain, e.ch)
		}
		if peer, ok := s.links[e]; ok {
			return fmt.Errorf("%w: %s channel %d already linked to %s channel %d",
				api.ErrAlreadyExists, e.domain, e.ch, peer.domain, peer.ch)
		}
	}
	if ea == eb {
		return fmt.Errorf("%w: channel linked to itself", api.ErrInvalidArgument)
	}
	s.links[ea] = eb
	s.links[eb] = ea
	return nil
}

// Loop returns the loop of a registered domain.
func (s *System) Loop(name string) (*Loop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loops[name]
	return l, ok
}

// Kernel returns the handle given to domain name at Init.
func (s *System) Kernel(name string) api.Kernel {
	return &kernel{sys: s, name: name}
}

// Run starts every loop and blocks until ctx ends or a domain fails.
// Domains initialise in registration order, each after the previous one's
// Init returned, so a domain may rely on its predecessors being ready.
func (s *System) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("host: system already running")
	}
	s.running = true
	order := append([]string(nil), s.order...)
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range order {
		l := s.loops[name]
		g.Go(func() error { return l.Run(gctx, s.Kernel(name)) })
		select {
		case <-l.Ready():
		case <-gctx.Done():
			return g.Wait()
		}
	}
	log.Infof("system running with %d domains", len(order))
	return g.Wait()
}

// Stats reports delivery counters per domain.
func (s *System) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	out := make(map[string]any, len(names))
	for _, n := range names {
		l := s.loops[n]
		out[n] = map[string]uint64{"delivered": l.Delivered(), "absorbed": l.Absorbed()}
	}
	return out
}

func (s *System) peer(from endpoint) (*Loop, api.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	to, ok := s.links[from]
	if !ok {
		return nil, 0, false
	}
	return s.loops[to.domain], to.ch, true
}

type kernel struct {
	sys  *System
	name string
}

var _ api.Kernel = (*kernel)(nil)

func (k *kernel) Name() string { return k.name }

func (k *kernel) Notify(ch api.Channel) {
	l, peerCh, ok := k.sys.peer(endpoint{k.name, ch})
	if !ok {
		log.Errorf("domain %s notified unconnected channel %d", k.name, ch)
		return
	}
	l.Signal(peerCh)
}

func (k *kernel) PPCall(ch api.Channel, msg api.Message) (api.Message, error) {
	l, peerCh, ok := k.sys.peer(endpoint{k.name, ch})
	if !ok {
		return api.Message{}, fmt.Errorf("%w: %s channel %d", api.ErrInvalidChannel, k.name, ch)
	}
	return l.protected(peerCh, msg)
}
