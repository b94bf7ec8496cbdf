package hostcall_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	"github.com/momentics/hioload-mp/core/protocol"
	"github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/core/sched"
	"github.com/momentics/hioload-mp/fake"
	"github.com/momentics/hioload-mp/hostcall"
)

const chFS api.Channel = 3

// miniServer answers storage commands for a single file "/f" and a
// directory listing of two names.
type miniServer struct {
	t        *testing.T
	cmd, cmp *queue.Queue
	file     []byte
	dirPos   int64
	seen     []protocol.Op
}

var dirNames = []string{"a.mp", "b.mp"}

func (m *miniServer) serve() {
	for {
		d, err := m.cmd.DequeueActive()
		if err != nil {
			return
		}
		b, _ := m.cmd.Bytes(d)
		c, err := protocol.DecodeCommand(b)
		if err != nil {
			m.t.Error(err)
			return
		}
		if err := m.cmd.EnqueueFree(d.Offset, uint32(m.cmd.BufferSize())); err != nil {
			m.t.Error(err)
		}
		m.seen = append(m.seen, c.Op)
		m.reply(m.answer(c))
	}
}

func (m *miniServer) answer(c *protocol.Command) *protocol.Completion {
	r := &protocol.Completion{ID: c.ID}
	switch c.Op {
	case protocol.OpOpen:
		if c.Path != "/f" {
			r.Status = api.FSNotFound
		}
		r.FD = 3
	case protocol.OpPwrite:
		if end := int(c.Offset) + len(c.Data); end > len(m.file) {
			m.file = append(m.file, make([]byte, end-len(m.file))...)
		}
		r.Count = copy(m.file[c.Offset:], c.Data)
	case protocol.OpPread:
		if c.Offset < int64(len(m.file)) {
			end := min(int(c.Offset)+c.Count, len(m.file))
			r.Data = m.file[c.Offset:end]
		}
	case protocol.OpStat:
		r.Stat = &api.Stat{Size: int64(len(m.file)), Mode: api.ModeFile | 0o644}
	case protocol.OpReaddir:
		if m.dirPos >= int64(len(dirNames)) {
			r.Status = api.FSEndOfDirectory
		} else {
			r.Name = dirNames[m.dirPos]
			m.dirPos++
		}
	case protocol.OpTelldir:
		r.Loc = m.dirPos
	case protocol.OpSeekdir:
		m.dirPos = c.Offset
	case protocol.OpRewinddir:
		m.dirPos = 0
	}
	return r
}

func (m *miniServer) reply(r *protocol.Completion) {
	d, err := m.cmp.DequeueFree()
	if err != nil {
		m.t.Error(err)
		return
	}
	buf, _ := m.cmp.Buffer(d)
	n, err := protocol.EncodeInto(buf, r)
	if err != nil {
		m.t.Error(err)
		return
	}
	if err := m.cmp.EnqueueActive(d.Offset, uint32(n)); err != nil {
		m.t.Error(err)
	}
}

type storageRig struct {
	s      *sched.Scheduler
	k      *fake.Kernel
	client *hostcall.Storage
	server *miniServer
	m      *control.MetricsRegistry
}

func newStorageRig(t *testing.T) *storageRig {
	t.Helper()
	cmdL, cmdR := pair(t, "cmd", 4, 1024)
	cmpL, cmpR := pair(t, "cmp", 4, 1024)
	populate(t, cmdL, cmpL)
	r := &storageRig{
		s:      sched.New(),
		k:      fake.NewKernel("mp"),
		m:      control.NewMetricsRegistry(),
		server: &miniServer{t: t, cmd: cmdR, cmp: cmpR},
	}
	r.client = hostcall.NewStorage(r.s, r.k, chFS, cmdL, cmpL, r.m)
	r.k.OnNotify = func(ch api.Channel) {
		if ch == chFS {
			r.server.serve()
		}
	}
	return r
}

// run executes body and plays storage notifications until it finishes.
func (r *storageRig) run(t *testing.T, body func()) {
	t.Helper()
	finished := interp(t, r.s, body)
	for i := 0; !*finished; i++ {
		if i > 1000 {
			t.Fatal("interpreter never finished")
		}
		deliver(r.s, api.SourceStorage, r.client.ProcessCompletions)
	}
}

func TestStorageChunkedWriteAndRead(t *testing.T) {
	r := newStorageRig(t)
	payload := bytes.Repeat([]byte("0123456789"), 200)
	var got []byte
	var st api.Stat
	var werr, rerr, serr error
	var written int
	r.run(t, func() {
		fd, err := r.client.Open("/f", api.OpenWrite|api.OpenCreate)
		if err != nil {
			t.Error(err)
			return
		}
		written, werr = r.client.Pwrite(fd, payload, 0)
		got, rerr = r.client.Pread(fd, 4096, 0)
		st, serr = r.client.Stat("/f")
	})
	if werr != nil || rerr != nil || serr != nil {
		t.Fatalf("write=%v read=%v stat=%v", werr, rerr, serr)
	}
	if written != len(payload) || !bytes.Equal(got, payload) || st.Size != int64(len(payload)) {
		t.Errorf("written=%d read=%d size=%d", written, len(got), st.Size)
	}
	writes := 0
	for _, op := range r.server.seen {
		if op == protocol.OpPwrite {
			writes++
		}
	}
	if writes != 3 {
		t.Errorf("pwrite chunks = %d, want 3", writes)
	}
	if r.client.Outstanding() != 0 {
		t.Errorf("outstanding = %d", r.client.Outstanding())
	}
}

func TestStorageStatusBecomesError(t *testing.T) {
	r := newStorageRig(t)
	var err error
	r.run(t, func() {
		_, err = r.client.Open("/missing", api.OpenRead)
	})
	if api.StatusOf(err) != api.FSNotFound {
		t.Fatalf("err = %v", err)
	}
	var detail *api.FSErrorDetail
	if !errors.As(err, &detail) || detail.Path != "/missing" || detail.Op != "open" {
		t.Errorf("detail = %+v", detail)
	}
}

func TestStorageDirectoryStream(t *testing.T) {
	r := newStorageRig(t)
	var names []string
	var loc int64
	var again string
	r.run(t, func() {
		fd, err := r.client.Opendir("/")
		if err != nil {
			t.Error(err)
			return
		}
		for {
			name, err := r.client.Readdir(fd)
			if api.StatusOf(err) == api.FSEndOfDirectory {
				break
			}
			if err != nil {
				t.Error(err)
				return
			}
			names = append(names, name)
		}
		_ = r.client.Rewinddir(fd)
		_, _ = r.client.Readdir(fd)
		loc, _ = r.client.Telldir(fd)
		_ = r.client.Seekdir(fd, 0)
		again, _ = r.client.Readdir(fd)
		_ = r.client.Closedir(fd)
	})
	if len(names) != 2 || names[0] != "a.mp" || names[1] != "b.mp" {
		t.Errorf("names = %v", names)
	}
	if loc != 1 || again != "a.mp" {
		t.Errorf("telldir = %d, after seekdir = %q", loc, again)
	}
}

func TestOrphanCompletionCounted(t *testing.T) {
	r := newStorageRig(t)
	r.server.reply(&protocol.Completion{ID: 99})
	r.client.ProcessCompletions()
	if r.m.Counter(control.MetricStorageOrphans) != 1 {
		t.Errorf("orphans = %d", r.m.Counter(control.MetricStorageOrphans))
	}
}

func TestStorageCommandRingExhausted(t *testing.T) {
	r := newStorageRig(t)
	r.k.OnNotify = nil
	for i := 0; i < 3; i++ {
		if _, err := r.server.cmd.DequeueFree(); err != nil {
			t.Fatal(err)
		}
	}
	var err error
	finished := interp(t, r.s, func() { err = r.client.Fsync(1) })
	if !*finished || !errors.Is(err, api.ErrResourceExhausted) {
		t.Errorf("finished=%v err=%v", *finished, err)
	}
}
