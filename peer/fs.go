// File: peer/fs.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Storage server. Commands are decoded from the command queue, executed
// against a Backend and answered on the completion queue. The server owns
// the descriptor table; backends only see paths and open files.

package peer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"syscall"

	"github.com/tliron/commonlog"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/core/protocol"
	"github.com/momentics/hioload-mp/core/queue"
)

var fsLog = commonlog.GetLogger("mp.fs")

// Backend errors the status mapping understands besides the io/fs ones.
var (
	ErrNotEmpty = errors.New("directory not empty")
	ErrIsDir    = errors.New("is a directory")
	ErrNotDir   = errors.New("not a directory")
)

// File is an open backend file.
type File interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// Backend stores the file tree. Paths are cleaned, slash-separated and
// relative to the backend root; "." is the root itself.
type Backend interface {
	Open(name string, flags api.OpenFlags) (File, error)
	Stat(name string) (api.Stat, error)
	Rename(oldname, newname string) error
	Unlink(name string) error
	Mkdir(name string) error
	Rmdir(name string) error
	// ReadDir lists the entry names of a directory in lexical order.
	ReadDir(name string) ([]string, error)
	Close() error
}

type dirStream struct {
	names []string
	pos   int64
}

// FileServer is the storage server domain.
type FileServer struct {
	cmd, cmp *queue.Queue
	backend  Backend
	ch       api.Channel

	k       api.Kernel
	nextFD  api.FD
	files   map[api.FD]File
	dirs    map[api.FD]*dirStream
	unsent  []*protocol.Completion
	handled uint64
}

var _ api.ProtectionDomain = (*FileServer)(nil)

// NewFileServer serves backend on ch.
func NewFileServer(cmd, cmp *queue.Queue, backend Backend, ch api.Channel) *FileServer {
	return &FileServer{
		cmd:     cmd,
		cmp:     cmp,
		backend: backend,
		ch:      ch,
		nextFD:  3,
		files:   make(map[api.FD]File),
		dirs:    make(map[api.FD]*dirStream),
	}
}

// Init records the kernel handle.
func (s *FileServer) Init(k api.Kernel) error {
	s.k = k
	return nil
}

// Notified processes every queued command.
func (s *FileServer) Notified(ch api.Channel) {
	if ch != s.ch {
		fsLog.Warningf("notification on unknown channel %d", ch)
		return
	}
	answered := s.flush()
	for {
		d, err := s.cmd.DequeueActive()
		if err != nil {
			break
		}
		var c *protocol.Completion
		if b, err := s.cmd.Bytes(d); err != nil {
			fsLog.Errorf("command buffer: %v", err)
		} else if cmd, err := protocol.DecodeCommand(b); err != nil {
			fsLog.Errorf("%v", err)
		} else {
			c = s.execute(cmd)
		}
		if err := s.cmd.EnqueueFree(d.Offset, uint32(s.cmd.BufferSize())); err != nil {
			fsLog.Errorf("recycle command buffer: %v", err)
		}
		if c != nil {
			s.unsent = append(s.unsent, c)
			answered += s.flush()
		}
	}
	if answered > 0 {
		s.k.Notify(s.ch)
	}
}

// flush publishes held completions while completion buffers are free.
func (s *FileServer) flush() int {
	n := 0
	for len(s.unsent) > 0 {
		d, err := s.cmp.DequeueFree()
		if err != nil {
			fsLog.Warningf("%d completions waiting for a free buffer", len(s.unsent))
			break
		}
		c := s.unsent[0]
		buf, err := s.cmp.Buffer(d)
		if err != nil {
			fsLog.Errorf("completion buffer: %v", err)
			break
		}
		size, err := protocol.EncodeInto(buf, c)
		if err != nil {
			fsLog.Errorf("request %d: %v", c.ID, err)
			size, _ = protocol.EncodeInto(buf, &protocol.Completion{ID: c.ID, Status: api.FSError})
		}
		if err := s.cmp.EnqueueActive(d.Offset, uint32(size)); err != nil {
			fsLog.Errorf("publish completion: %v", err)
			break
		}
		s.unsent = s.unsent[1:]
		n++
	}
	return n
}

func (s *FileServer) execute(cmd *protocol.Command) *protocol.Completion {
	s.handled++
	c := &protocol.Completion{ID: cmd.ID}
	fsLog.Debugf("request %d: %s %s", cmd.ID, cmd.Op, cmd.Path)
	var err error
	switch cmd.Op {
	case protocol.OpOpen:
		var name string
		if name, err = cleanPath(cmd.Path); err == nil {
			var f File
			if f, err = s.backend.Open(name, cmd.Flags); err == nil {
				c.FD = s.allocFD()
				s.files[c.FD] = f
			}
		}
	case protocol.OpClose:
		var f File
		if f, err = s.file(cmd.FD); err == nil {
			delete(s.files, cmd.FD)
			err = f.Close()
		}
	case protocol.OpPread:
		var f File
		if f, err = s.file(cmd.FD); err == nil {
			if cmd.Count < 0 || cmd.Count > protocol.MaxPayload(s.cmp.BufferSize()) {
				c.Status = api.FSInvalidRequest
				return c
			}
			buf := make([]byte, cmd.Count)
			var n int
			n, err = f.ReadAt(buf, cmd.Offset)
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.Data = buf[:n]
			c.Count = n
		}
	case protocol.OpPwrite:
		var f File
		if f, err = s.file(cmd.FD); err == nil {
			c.Count, err = f.WriteAt(cmd.Data, cmd.Offset)
		}
	case protocol.OpStat:
		var name string
		if name, err = cleanPath(cmd.Path); err == nil {
			var st api.Stat
			if st, err = s.backend.Stat(name); err == nil {
				c.Stat = &st
			}
		}
	case protocol.OpRename:
		var from, to string
		if from, err = cleanPath(cmd.Path); err == nil {
			if to, err = cleanPath(cmd.NewPath); err == nil {
				err = s.backend.Rename(from, to)
			}
		}
	case protocol.OpUnlink, protocol.OpMkdir, protocol.OpRmdir:
		var name string
		if name, err = cleanPath(cmd.Path); err == nil {
			switch cmd.Op {
			case protocol.OpUnlink:
				err = s.backend.Unlink(name)
			case protocol.OpMkdir:
				err = s.backend.Mkdir(name)
			default:
				err = s.backend.Rmdir(name)
			}
		}
	case protocol.OpFsync:
		var f File
		if f, err = s.file(cmd.FD); err == nil {
			err = f.Sync()
		}
	case protocol.OpOpendir:
		var name string
		if name, err = cleanPath(cmd.Path); err == nil {
			var names []string
			if names, err = s.backend.ReadDir(name); err == nil {
				c.FD = s.allocFD()
				s.dirs[c.FD] = &dirStream{names: names}
			}
		}
	case protocol.OpReaddir:
		var d *dirStream
		if d, err = s.dir(cmd.FD); err == nil {
			if d.pos >= int64(len(d.names)) {
				c.Status = api.FSEndOfDirectory
				return c
			}
			c.Name = d.names[d.pos]
			d.pos++
		}
	case protocol.OpSeekdir:
		var d *dirStream
		if d, err = s.dir(cmd.FD); err == nil {
			if cmd.Offset < 0 || cmd.Offset > int64(len(d.names)) {
				c.Status = api.FSInvalidRequest
				return c
			}
			d.pos = cmd.Offset
		}
	case protocol.OpTelldir:
		var d *dirStream
		if d, err = s.dir(cmd.FD); err == nil {
			c.Loc = d.pos
		}
	case protocol.OpRewinddir:
		var d *dirStream
		if d, err = s.dir(cmd.FD); err == nil {
			d.pos = 0
		}
	case protocol.OpClosedir:
		if _, err = s.dir(cmd.FD); err == nil {
			delete(s.dirs, cmd.FD)
		}
	default:
		c.Status = api.FSInvalidRequest
		return c
	}
	c.Status = statusFor(err)
	if err != nil {
		fsLog.Debugf("request %d: %s %s: %v", cmd.ID, cmd.Op, cmd.Path, err)
	}
	return c
}

func (s *FileServer) allocFD() api.FD {
	fd := s.nextFD
	s.nextFD++
	return fd
}

var errBadFD = errors.New("bad descriptor")

func (s *FileServer) file(fd api.FD) (File, error) {
	if f, ok := s.files[fd]; ok {
		return f, nil
	}
	return nil, errBadFD
}

func (s *FileServer) dir(fd api.FD) (*dirStream, error) {
	if d, ok := s.dirs[fd]; ok {
		return d, nil
	}
	return nil, errBadFD
}

// Stats reports the server's descriptor table and request count.
func (s *FileServer) Stats() map[string]any {
	return map[string]any{
		"handled":    s.handled,
		"open_files": len(s.files),
		"open_dirs":  len(s.dirs),
		"unsent":     len(s.unsent),
	}
}

// Close closes every open file and the backend.
func (s *FileServer) Close() error {
	var errs []error
	for fd, f := range s.files {
		errs = append(errs, f.Close())
		delete(s.files, fd)
	}
	errs = append(errs, s.backend.Close())
	return errors.Join(errs...)
}

var errInvalidPath = errors.New("invalid path")

// cleanPath maps an interpreter path onto a backend name.
func cleanPath(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: %q", errInvalidPath, p)
	}
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		return ".", nil
	}
	return name, nil
}

func statusFor(err error) api.FSStatus {
	switch {
	case err == nil:
		return api.FSSuccess
	case errors.Is(err, errBadFD):
		return api.FSInvalidFD
	case errors.Is(err, errInvalidPath), errors.Is(err, fs.ErrInvalid):
		return api.FSInvalidPath
	case errors.Is(err, fs.ErrNotExist):
		return api.FSNotFound
	case errors.Is(err, fs.ErrExist):
		return api.FSExists
	case errors.Is(err, ErrNotEmpty), errors.Is(err, syscall.ENOTEMPTY):
		return api.FSNotEmpty
	case errors.Is(err, ErrIsDir), errors.Is(err, syscall.EISDIR):
		return api.FSIsDirectory
	case errors.Is(err, ErrNotDir), errors.Is(err, syscall.ENOTDIR):
		return api.FSNotDirectory
	}
	return api.FSError
}
