// File: core/boot/boot.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Component is the interpreter protection domain. Init attaches the shared
// queues, hands every free buffer to the peers, carves the interpreter
// stack and heap out of one arena and starts the interpreter context. From
// then on every notification goes through the demultiplexer.

package boot

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	"github.com/momentics/hioload-mp/core/demux"
	"github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/core/sched"
	"github.com/momentics/hioload-mp/hostcall"
	"github.com/momentics/hioload-mp/internal/normalize"
	"github.com/momentics/hioload-mp/pool"
)

var log = commonlog.GetLogger("mp.boot")

// Console lines printed around interpreter sessions.
const (
	MsgInitialising = "MP|INFO: initialising!"
	MsgExited       = "MP|INFO: exited!"
)

var (
	ErrAlreadyStarted = errors.New("boot: component already initialized")
	ErrNoInterpreter  = errors.New("boot: no interpreter configured")
)

// Queues are the shared regions of every queue the component drives.
// Storage and i2c regions may be left empty when those peers are absent.
type Queues struct {
	SerialRX, SerialTX     queue.Regions
	StorageCmd, StorageCmp queue.Regions
	I2CReq, I2CResp        queue.Regions
}

// Options configure a Component.
type Options struct {
	Config      *control.Config
	Queues      Queues
	Framebuffer []byte
	Interpreter api.Interpreter
	// Control is optional; without it no metrics or probes are recorded.
	Control *control.Controller
	// Extra housekeeping run around every dispatch, after the built-in hooks.
	BeforeDispatch []demux.Hook
	AfterDispatch  []demux.Hook
}

// Component implements api.ProtectionDomain for the interpreter.
type Component struct {
	opts    Options
	cfg     *control.Config
	metrics *control.MetricsRegistry

	sched  *sched.Scheduler
	demux  *demux.Demux
	arena  *pool.Arena
	stack  []byte
	heap   []byte
	queues map[string]*queue.Queue

	serial  *hostcall.Serial
	storage *hostcall.Storage
	env     api.Env

	started  bool
	restarts int
	lastErr  error
	done     chan struct{}
	txIdle   atomic.Bool
}

var _ api.ProtectionDomain = (*Component)(nil)

// New checks opts and returns an uninitialized component.
func New(opts Options) (*Component, error) {
	if opts.Interpreter == nil {
		return nil, ErrNoInterpreter
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	c := &Component{
		opts:   opts,
		cfg:    cfg,
		queues: make(map[string]*queue.Queue),
		done:   make(chan struct{}),
	}
	if opts.Control != nil {
		c.metrics = opts.Control.Metrics
	}
	return c, nil
}

// Init brings the domain up and runs the interpreter until its first await.
func (c *Component) Init(k api.Kernel) error {
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	cfg := c.cfg

	if err := c.attachQueues(); err != nil {
		return err
	}

	c.arena = pool.NewArena(cfg.Interpreter.StackSize + cfg.Interpreter.HeapSize + 64)
	var err error
	if c.stack, err = c.arena.Alloc("stack", cfg.Interpreter.StackSize); err != nil {
		return err
	}
	if c.heap, err = c.arena.Alloc("heap", cfg.Interpreter.HeapSize); err != nil {
		return err
	}

	c.sched = sched.New()
	c.sched.PinInterpreter(normalize.LocalCPU(cfg.Interpreter.CPU))
	ch := cfg.Channels
	c.serial = hostcall.NewSerial(c.sched, k, hostcall.SerialConfig{
		RX:        c.queues["serial.rx"],
		TX:        c.queues["serial.tx"],
		RXChannel: api.Channel(ch.SerialRX),
		TXChannel: api.Channel(ch.SerialTX),
		Backlog:   cfg.Serial.TxBacklog,
	}, c.metrics)
	c.env = api.Env{
		Console: c.serial,
		Timer:   hostcall.NewTimer(c.sched, k, api.Channel(ch.Timer)),
		Heap:    c.heap,
		Mode:    api.RunMode(cfg.Interpreter.Mode),
		Script:  cfg.Interpreter.Script,
	}

	table := demux.NewTable()
	type route struct {
		ch  int
		src api.EventSource
	}
	routes := []route{
		{ch.SerialRX, api.SourceSerial},
		{ch.Timer, api.SourceTimer},
	}
	if cmd, ok := c.queues["storage.cmd"]; ok {
		c.storage = hostcall.NewStorage(c.sched, k, api.Channel(ch.Storage), cmd, c.queues["storage.cmp"], c.metrics)
		c.env.Storage = c.storage
		routes = append(routes, route{ch.Storage, api.SourceStorage})
	}
	if req, ok := c.queues["i2c.req"]; ok {
		c.env.Bus = hostcall.NewI2C(c.sched, k, api.Channel(ch.I2C), req, c.queues["i2c.resp"])
		routes = append(routes, route{ch.I2C, api.SourceI2C})
	}
	if fb := cfg.Framebuffer; fb.Enabled {
		d, err := hostcall.NewFramebuffer(c.sched, k, api.Channel(ch.Framebuffer), c.opts.Framebuffer, fb.Width, fb.Height, fb.BytesPerPixel)
		if err != nil {
			return fmt.Errorf("framebuffer: %w", err)
		}
		c.env.Display = d
		routes = append(routes, route{ch.Framebuffer, api.SourceFramebuffer})
	}
	for _, e := range routes {
		if err := table.Map(api.Channel(e.ch), e.src); err != nil {
			return fmt.Errorf("channel table: %w", err)
		}
	}
	// Completion channels of the transmit side and the network links are
	// expected to signal but carry no event for the interpreter.
	for _, n := range []int{ch.SerialTX, ch.EthRX, ch.EthTX} {
		if err := table.Ignore(api.Channel(n)); err != nil {
			return fmt.Errorf("channel table: %w", err)
		}
	}

	c.demux = demux.New(table, c.sched, c.metrics)
	c.demux.BeforeDispatch(c.serial.ProcessRX)
	if c.storage != nil {
		c.demux.BeforeDispatch(c.storage.ProcessCompletions)
	}
	for _, h := range c.opts.BeforeDispatch {
		c.demux.BeforeDispatch(h)
	}
	c.demux.AfterDispatch(c.serial.FlushTX)
	for _, h := range c.opts.AfterDispatch {
		c.demux.AfterDispatch(h)
	}
	c.demux.AfterDispatch(c.markIdle)
	c.registerProbes()

	log.Infof("channels: %v", table.Channels())
	// The serial driver may have read input before the RX buffers existed.
	k.Notify(api.Channel(ch.SerialRX))
	if err := c.sched.Start(c.stack, c.entry); err != nil {
		return err
	}
	c.markIdle()
	return nil
}

func (c *Component) attachQueues() error {
	cfg := c.cfg
	type spec struct {
		name          string
		regs          queue.Regions
		entries, size int
		optional      bool
	}
	specs := []spec{
		{"serial.rx", c.opts.Queues.SerialRX, cfg.Serial.Entries, cfg.Serial.BufferSize, false},
		{"serial.tx", c.opts.Queues.SerialTX, cfg.Serial.Entries, cfg.Serial.BufferSize, false},
	}
	if cfg.Storage.Backend != "none" {
		specs = append(specs,
			spec{"storage.cmd", c.opts.Queues.StorageCmd, cfg.Storage.Entries, cfg.Storage.BufferSize, true},
			spec{"storage.cmp", c.opts.Queues.StorageCmp, cfg.Storage.Entries, cfg.Storage.BufferSize, true})
	}
	if cfg.I2C.Enabled {
		specs = append(specs,
			spec{"i2c.req", c.opts.Queues.I2CReq, cfg.I2C.Entries, cfg.I2C.BufferSize, true},
			spec{"i2c.resp", c.opts.Queues.I2CResp, cfg.I2C.Entries, cfg.I2C.BufferSize, true})
	}
	for _, s := range specs {
		if s.optional && s.regs.Free == nil {
			log.Noticef("queue %s not mapped, peer disabled", s.name)
			continue
		}
		q, err := queue.New(s.name, s.regs, s.entries, s.size, false)
		if err != nil {
			return fmt.Errorf("queue %s: %w", s.name, err)
		}
		n, err := q.Populate()
		if err != nil {
			return fmt.Errorf("queue %s: %w", s.name, err)
		}
		log.Debugf("queue %s: %d free buffers of %d bytes", s.name, n, s.size)
		c.queues[s.name] = q
	}
	// A request queue without its answer queue cannot work.
	for _, pair := range [][2]string{{"storage.cmd", "storage.cmp"}, {"i2c.req", "i2c.resp"}} {
		_, a := c.queues[pair[0]]
		_, b := c.queues[pair[1]]
		if a != b {
			return api.NewError(api.ErrCodeInvalidArgument, "queue pair half mapped").
				WithContext("request", pair[0]).WithContext("response", pair[1])
		}
	}
	return nil
}

func (c *Component) registerProbes() {
	if c.opts.Control == nil {
		return
	}
	c.opts.Control.RegisterDebugProbe("sched", func() any { return c.sched.Snapshot() })
	c.opts.Control.RegisterDebugProbe("arena", func() any { return c.arena.Stats() })
	for name, q := range c.queues {
		c.opts.Control.RegisterDebugProbe("queue."+name, func() any { return q.Stats() })
	}
}

// Notified hands ch to the demultiplexer.
func (c *Component) Notified(ch api.Channel) {
	c.demux.Notified(ch)
}

func (c *Component) markIdle() {
	c.txIdle.Store(c.serial.Backlog() == 0)
}

// Scheduler returns the scheduler created by Init.
func (c *Component) Scheduler() *sched.Scheduler { return c.sched }

// Queue returns an attached queue by name ("serial.rx", "storage.cmd", ...).
func (c *Component) Queue(name string) (*queue.Queue, bool) {
	q, ok := c.queues[name]
	return q, ok
}

// Done is closed once the interpreter context has ended for good.
func (c *Component) Done() <-chan struct{} { return c.done }

// Err returns the failure of the last session. Valid once Done is closed.
func (c *Component) Err() error { return c.lastErr }

// Restarts returns how many times the interpreter was restarted.
// Valid once Done is closed.
func (c *Component) Restarts() int { return c.restarts }

// OutputIdle reports whether the console backlog was empty after the last
// dispatch.
func (c *Component) OutputIdle() bool { return c.txIdle.Load() }
