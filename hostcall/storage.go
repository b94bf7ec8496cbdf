// File: hostcall/storage.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Storage client. Commands go out on the command queue, completions come
// back on the completion queue and are collected by ProcessCompletions in
// the event context before the interpreter is woken. A call waits for the
// completion carrying its own request id; anything else that arrives is
// either another outstanding request's answer or an orphan.

package hostcall

import (
	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	"github.com/momentics/hioload-mp/core/protocol"
	mpq "github.com/momentics/hioload-mp/core/queue"
	"github.com/momentics/hioload-mp/core/sched"
)

// Storage implements api.Storage against a storage server domain.
type Storage struct {
	sched   *sched.Scheduler
	k       api.Notifier
	ch      api.Channel
	cmd     *mpq.Queue
	cmp     *mpq.Queue
	metrics *control.MetricsRegistry

	nextID      uint64
	outstanding map[uint64]struct{}
	done        map[uint64]*protocol.Completion
}

var _ api.Storage = (*Storage)(nil)

// NewStorage returns a client signalling the server on ch.
func NewStorage(s *sched.Scheduler, k api.Notifier, ch api.Channel, cmd, cmp *mpq.Queue, metrics *control.MetricsRegistry) *Storage {
	return &Storage{
		sched:       s,
		k:           k,
		ch:          ch,
		cmd:         cmd,
		cmp:         cmp,
		metrics:     metrics,
		outstanding: make(map[uint64]struct{}),
		done:        make(map[uint64]*protocol.Completion),
	}
}

// ProcessCompletions drains the completion queue. It runs in the event
// context.
func (s *Storage) ProcessCompletions() {
	for {
		d, err := s.cmp.DequeueActive()
		if err != nil {
			return
		}
		s.collect(d)
		if err := s.cmp.EnqueueFree(d.Offset, uint32(s.cmp.BufferSize())); err != nil {
			log.Errorf("storage: recycle completion buffer: %v", err)
		}
	}
}

func (s *Storage) collect(d api.BufferDescriptor) {
	b, err := s.cmp.Bytes(d)
	if err != nil {
		log.Errorf("storage: %v", err)
		return
	}
	c, err := protocol.DecodeCompletion(b)
	if err != nil {
		log.Errorf("storage: %v", err)
		return
	}
	if _, ok := s.outstanding[c.ID]; !ok {
		log.Warningf("storage: completion for unknown request %d", c.ID)
		s.metrics.Add(control.MetricStorageOrphans, 1)
		return
	}
	delete(s.outstanding, c.ID)
	s.done[c.ID] = c
}

// Outstanding returns the number of requests without a completion.
func (s *Storage) Outstanding() int { return len(s.outstanding) }

func (s *Storage) call(cmd *protocol.Command) (*protocol.Completion, error) {
	d, err := s.cmd.DequeueFree()
	if err != nil {
		return nil, api.Wrap(api.ErrCodeResourceExhausted, api.ErrResourceExhausted, "no free storage command buffer").
			WithContext("op", cmd.Op.String())
	}
	s.nextID++
	cmd.ID = s.nextID
	buf, err := s.cmd.Buffer(d)
	if err == nil {
		var n int
		if n, err = protocol.EncodeInto(buf, cmd); err == nil {
			err = s.cmd.EnqueueActive(d.Offset, uint32(n))
		}
	}
	if err != nil {
		if rerr := s.cmd.EnqueueFree(d.Offset, uint32(s.cmd.BufferSize())); rerr != nil {
			log.Errorf("storage: return command buffer: %v", rerr)
		}
		return nil, err
	}
	s.outstanding[cmd.ID] = struct{}{}
	s.metrics.Add(control.MetricStorageRequests, 1)
	s.k.Notify(s.ch)

	for {
		if c, ok := s.done[cmd.ID]; ok {
			delete(s.done, cmd.ID)
			return c, nil
		}
		s.sched.Await(api.SourceStorage)
	}
}

func (s *Storage) do(cmd *protocol.Command) (*protocol.Completion, error) {
	c, err := s.call(cmd)
	if err != nil {
		return nil, err
	}
	if c.Status != api.FSSuccess {
		return c, &api.FSErrorDetail{Op: cmd.Op.String(), Path: cmd.Path, Status: c.Status}
	}
	return c, nil
}

// chunk is the largest payload one message may carry.
func (s *Storage) chunk() int {
	return max(protocol.MaxPayload(min(s.cmd.BufferSize(), s.cmp.BufferSize())), 1)
}

// Open opens path and returns its descriptor.
func (s *Storage) Open(path string, flags api.OpenFlags) (api.FD, error) {
	c, err := s.do(&protocol.Command{Op: protocol.OpOpen, Path: path, Flags: flags})
	if err != nil {
		return 0, err
	}
	return c.FD, nil
}

// Close releases fd.
func (s *Storage) Close(fd api.FD) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpClose, FD: fd})
	return err
}

// Pread reads up to nbyte bytes at offset. A short result means end of file.
func (s *Storage) Pread(fd api.FD, nbyte int, offset int64) ([]byte, error) {
	if nbyte < 0 || offset < 0 {
		return nil, api.ErrInvalidArgument
	}
	out := make([]byte, 0, min(nbyte, s.chunk()))
	for len(out) < nbyte {
		want := min(nbyte-len(out), s.chunk())
		c, err := s.do(&protocol.Command{Op: protocol.OpPread, FD: fd, Offset: offset + int64(len(out)), Count: want})
		if err != nil {
			return out, err
		}
		out = append(out, c.Data...)
		if len(c.Data) < want {
			break
		}
	}
	return out, nil
}

// Pwrite writes p at offset and returns the number of bytes written.
func (s *Storage) Pwrite(fd api.FD, p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, api.ErrInvalidArgument
	}
	written := 0
	for written < len(p) {
		part := p[written:min(len(p), written+s.chunk())]
		c, err := s.do(&protocol.Command{Op: protocol.OpPwrite, FD: fd, Offset: offset + int64(written), Data: part})
		if err != nil {
			return written, err
		}
		written += c.Count
		if c.Count < len(part) {
			break
		}
	}
	return written, nil
}

// Stat describes path.
func (s *Storage) Stat(path string) (api.Stat, error) {
	c, err := s.do(&protocol.Command{Op: protocol.OpStat, Path: path})
	if err != nil {
		return api.Stat{}, err
	}
	if c.Stat == nil {
		return api.Stat{}, &api.FSErrorDetail{Op: "stat", Path: path, Status: api.FSInvalidRequest}
	}
	return *c.Stat, nil
}

// Rename moves oldpath to newpath.
func (s *Storage) Rename(oldpath, newpath string) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpRename, Path: oldpath, NewPath: newpath})
	return err
}

// Unlink removes a file.
func (s *Storage) Unlink(path string) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpUnlink, Path: path})
	return err
}

// Mkdir creates a directory.
func (s *Storage) Mkdir(path string) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpMkdir, Path: path})
	return err
}

// Rmdir removes an empty directory.
func (s *Storage) Rmdir(path string) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpRmdir, Path: path})
	return err
}

// Fsync flushes fd.
func (s *Storage) Fsync(fd api.FD) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpFsync, FD: fd})
	return err
}

// Opendir opens a directory stream.
func (s *Storage) Opendir(path string) (api.FD, error) {
	c, err := s.do(&protocol.Command{Op: protocol.OpOpendir, Path: path})
	if err != nil {
		return 0, err
	}
	return c.FD, nil
}

// Readdir returns the next entry name. The end of the stream is reported
// as an error with status FSEndOfDirectory.
func (s *Storage) Readdir(fd api.FD) (string, error) {
	c, err := s.do(&protocol.Command{Op: protocol.OpReaddir, FD: fd})
	if err != nil {
		return "", err
	}
	return c.Name, nil
}

// Seekdir moves the stream to a position returned by Telldir.
func (s *Storage) Seekdir(fd api.FD, loc int64) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpSeekdir, FD: fd, Offset: loc})
	return err
}

// Telldir returns the stream position.
func (s *Storage) Telldir(fd api.FD) (int64, error) {
	c, err := s.do(&protocol.Command{Op: protocol.OpTelldir, FD: fd})
	if err != nil {
		return -1, err
	}
	return c.Loc, nil
}

// Rewinddir resets the stream.
func (s *Storage) Rewinddir(fd api.FD) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpRewinddir, FD: fd})
	return err
}

// Closedir releases a directory stream.
func (s *Storage) Closedir(fd api.FD) error {
	_, err := s.do(&protocol.Command{Op: protocol.OpClosedir, FD: fd})
	return err
}
