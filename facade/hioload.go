// File: facade/hioload.go
// Unified facade layer for hioload-mp.
// Author: momentics <momentics@gmail.com>
//
// Machine aggregates every domain of a deployment behind one type. New maps
// the shared regions, formats the queues, builds the peer drivers and the
// interpreter component, and wires their channels; Run hosts them until the
// interpreter finishes or the context ends.

package facade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	"github.com/momentics/hioload-mp/core/boot"
	"github.com/momentics/hioload-mp/core/protocol"
	"github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/host"
	"github.com/momentics/hioload-mp/internal/normalize"
	"github.com/momentics/hioload-mp/internal/shm"
	"github.com/momentics/hioload-mp/peer"
	"github.com/momentics/hioload-mp/repl"
)

var log = commonlog.GetLogger("mp.facade")

// Domain names registered with the host.
const (
	DomainInterpreter = "mp"
	DomainSerial      = "serial"
	DomainTimer       = "timer"
	DomainStorage     = "fs"
	DomainI2C         = "i2c"
	DomainFramebuffer = "fb"
)

// drainTimeout bounds how long Run waits for console output after the
// interpreter has finished.
const drainTimeout = time.Second

// Options supply the outside world. Zero values pick the defaults noted.
type Options struct {
	Stdin       io.Reader              // console input; nil for none
	Stdout      io.Writer              // console output; os.Stdout
	Interpreter api.Interpreter        // repl.New()
	Frames      func(peer.Frame)       // framebuffer consumer; frames are dropped
	Devices     map[uint16]peer.Device // i2c targets; a 256 byte memory at 0x50
}

// Machine is the main facade type.
// It implements api.GracefulShutdown to allow unified shutdown logic.
type Machine struct {
	cfg     *control.Config
	control *control.Controller
	regions *shm.Registry
	system  *host.System
	comp    *boot.Component

	serial  *peer.Serial
	timer   *peer.Timer
	fs      *peer.FileServer
	txQueue *queue.Queue

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  bool
	closed   bool
	finished chan struct{}
}

var _ api.GracefulShutdown = (*Machine)(nil)

// New builds a machine for cfg. A nil cfg selects control.DefaultConfig.
func New(cfg *control.Config, opts Options) (*Machine, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	control.ConfigureLogging(cfg.Log)
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Interpreter == nil {
		opts.Interpreter = repl.New()
	}
	if opts.Devices == nil {
		opts.Devices = map[uint16]peer.Device{0x50: peer.NewMemory(256)}
	}

	m := &Machine{
		cfg:     cfg,
		control: control.NewController(cfg),
		regions: shm.NewRegistry(),
		system:  host.NewSystem(),
	}
	if err := m.build(opts); err != nil {
		m.release()
		return nil, err
	}
	return m, nil
}

// queueRegions maps and formats the three regions of queue name.
func (m *Machine) queueRegions(name string, entries, bufSize int) (queue.Regions, error) {
	var regs queue.Regions
	for _, r := range []struct {
		suffix string
		size   int
		dst    *[]byte
	}{
		{".free", queue.RingRegionSize(entries), &regs.Free},
		{".active", queue.RingRegionSize(entries), &regs.Active},
		{".data", entries * bufSize, &regs.Data},
	} {
		region, err := m.regions.Map(name+r.suffix, r.size)
		if err != nil {
			return regs, err
		}
		*r.dst = region.Bytes()
	}
	if err := queue.Format(regs, entries); err != nil {
		return regs, fmt.Errorf("format %s: %w", name, err)
	}
	return regs, nil
}

// peerQueue maps and formats a queue and returns the peer's handle on it.
func (m *Machine) peerQueue(name string, entries, bufSize int) (queue.Regions, *queue.Queue, error) {
	regs, err := m.queueRegions(name, entries, bufSize)
	if err != nil {
		return regs, nil, err
	}
	q, err := queue.New(name+".peer", regs, entries, bufSize, false)
	return regs, q, err
}

func (m *Machine) build(opts Options) error {
	cfg := m.cfg
	var qs boot.Queues
	type link struct {
		domain string
		mpCh   int
		peerCh api.Channel
	}
	var links []link

	var rx, tx *queue.Queue
	var err error
	if qs.SerialRX, rx, err = m.peerQueue("serial.rx", cfg.Serial.Entries, cfg.Serial.BufferSize); err != nil {
		return err
	}
	if qs.SerialTX, tx, err = m.peerQueue("serial.tx", cfg.Serial.Entries, cfg.Serial.BufferSize); err != nil {
		return err
	}
	m.txQueue = tx
	serialCh := peer.SerialChannels{RX: 0, TX: 1}
	m.serial = peer.NewSerial(rx, tx, serialCh, opts.Stdin, opts.Stdout)
	if err := m.system.AddDomain(DomainSerial, m.serial, -1); err != nil {
		return err
	}
	links = append(links,
		link{DomainSerial, cfg.Channels.SerialRX, serialCh.RX},
		link{DomainSerial, cfg.Channels.SerialTX, serialCh.TX})

	m.timer = peer.NewTimer()
	if err := m.system.AddDomain(DomainTimer, m.timer, -1); err != nil {
		return err
	}
	links = append(links, link{DomainTimer, cfg.Channels.Timer, 0})

	if cfg.Storage.Backend != "none" {
		backend, err := openBackend(cfg.Storage)
		if err != nil {
			return err
		}
		var cmd, cmp *queue.Queue
		if qs.StorageCmd, cmd, err = m.peerQueue("storage.cmd", cfg.Storage.Entries, cfg.Storage.BufferSize); err == nil {
			qs.StorageCmp, cmp, err = m.peerQueue("storage.cmp", cfg.Storage.Entries, cfg.Storage.BufferSize)
		}
		if err != nil {
			backend.Close()
			return err
		}
		m.fs = peer.NewFileServer(cmd, cmp, backend, 0)
		if err := m.system.AddDomain(DomainStorage, m.fs, -1); err != nil {
			return err
		}
		links = append(links, link{DomainStorage, cfg.Channels.Storage, 0})
		m.control.RegisterDebugProbe("peer.fs", func() any { return m.fs.Stats() })
	}

	if cfg.I2C.Enabled {
		var req, resp *queue.Queue
		if qs.I2CReq, req, err = m.peerQueue("i2c.req", cfg.I2C.Entries, cfg.I2C.BufferSize); err != nil {
			return err
		}
		if qs.I2CResp, resp, err = m.peerQueue("i2c.resp", cfg.I2C.Entries, cfg.I2C.BufferSize); err != nil {
			return err
		}
		bus := peer.NewBus(req, resp, 0)
		for addr, dev := range opts.Devices {
			if err := bus.Attach(addr, dev); err != nil {
				return fmt.Errorf("i2c device 0x%02x: %w", addr, err)
			}
		}
		if err := m.system.AddDomain(DomainI2C, bus, -1); err != nil {
			return err
		}
		links = append(links, link{DomainI2C, cfg.Channels.I2C, 0})
	}

	var frame []byte
	if fb := cfg.Framebuffer; fb.Enabled {
		region, err := m.regions.Map("framebuffer", protocol.FrameHeaderSize+fb.Width*fb.Height*fb.BytesPerPixel)
		if err != nil {
			return err
		}
		frame = region.Bytes()
		if err := m.system.AddDomain(DomainFramebuffer, peer.NewFrameSink(frame, 0, opts.Frames), -1); err != nil {
			return err
		}
		links = append(links, link{DomainFramebuffer, cfg.Channels.Framebuffer, 0})
	}

	m.comp, err = boot.New(boot.Options{
		Config:      cfg,
		Queues:      qs,
		Framebuffer: frame,
		Interpreter: opts.Interpreter,
		Control:     m.control,
	})
	if err != nil {
		return err
	}
	// Registered last: the interpreter starts only after every peer is up.
	if err := m.system.AddDomain(DomainInterpreter, m.comp, normalize.LocalCPU(cfg.Interpreter.CPU)); err != nil {
		return err
	}
	for _, l := range links {
		if err := m.system.Connect(DomainInterpreter, api.Channel(l.mpCh), l.domain, l.peerCh); err != nil {
			return fmt.Errorf("connect %s: %w", l.domain, err)
		}
	}
	m.control.RegisterDebugProbe("host", func() any { return m.system.Stats() })
	m.control.RegisterDebugProbe("peer.serial", func() any { return m.serial.Stats() })
	m.control.RegisterDebugProbe("shm", func() any { return m.regions.Names() })
	return nil
}

func openBackend(cfg control.StorageConfig) (peer.Backend, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	switch cfg.Backend {
	case "dir":
		return peer.OpenDirBackend(root)
	case "sqlite":
		return peer.OpenSQLiteBackend(root)
	}
	return nil, api.NewError(api.ErrCodeNotSupported, "unknown storage backend").WithContext("backend", cfg.Backend)
}

// Run hosts every domain until the interpreter finishes, a domain fails or
// ctx ends. In exec mode a failed script is returned as the error.
func (m *Machine) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running || m.closed {
		m.mu.Unlock()
		return fmt.Errorf("facade: machine already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.finished = make(chan struct{})
	m.mu.Unlock()
	defer close(m.finished)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- m.system.Run(ctx) }()

	var err error
	select {
	case err = <-errc:
	case <-m.comp.Done():
		m.drain(ctx)
		cancel()
		err = <-errc
	}
	m.serial.Close()
	m.timer.Close()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}
	if m.cfg.Interpreter.Mode == string(api.ModeExec) && isClosed(m.comp.Done()) {
		if ierr := m.comp.Err(); ierr != nil {
			return fmt.Errorf("interpreter: %w", ierr)
		}
	}
	return nil
}

// drain waits until the console output has left the interpreter domain.
func (m *Machine) drain(ctx context.Context) {
	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for !(m.comp.OutputIdle() && m.txQueue.ActiveRing().Len() == 0) {
		select {
		case <-tick.C:
		case <-deadline.C:
			log.Warning("console output still pending at shutdown")
			return
		case <-ctx.Done():
			return
		}
	}
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

// Shutdown stops a running machine, waits for Run to return and releases
// the storage backend and shared regions. It is safe to call more than once.
func (m *Machine) Shutdown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	finished := m.finished
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	if finished != nil {
		<-finished
	}
	return m.release()
}

func (m *Machine) release() error {
	var errs []error
	if m.serial != nil {
		errs = append(errs, m.serial.Close())
	}
	if m.timer != nil {
		errs = append(errs, m.timer.Close())
	}
	if m.fs != nil {
		errs = append(errs, m.fs.Close())
	}
	errs = append(errs, m.regions.Close())
	return errors.Join(errs...)
}

// GetControl returns the Control interface for config, metrics and probes.
func (m *Machine) GetControl() api.Control {
	return m.control
}

// Component returns the interpreter domain.
func (m *Machine) Component() *boot.Component {
	return m.comp
}

// System returns the host runtime.
func (m *Machine) System() *host.System {
	return m.system
}
