// Package fake
// Author: momentics <momentics@gmail.com>
//
// In-memory storage with the same status semantics as the file server.

package fake

import (
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/momentics/hioload-mp/api"
)

type node struct {
	dir   bool
	data  []byte
	mtime time.Time
}

type dirStream struct {
	names []string
	pos   int64
}

// Storage is an in-memory api.Storage.
type Storage struct {
	mu     sync.Mutex
	nodes  map[string]*node
	files  map[api.FD]string
	dirs   map[api.FD]*dirStream
	nextFD api.FD
}

var _ api.Storage = (*Storage)(nil)

// NewStorage returns an empty tree holding only the root directory.
func NewStorage() *Storage {
	return &Storage{
		nodes:  map[string]*node{"/": {dir: true, mtime: time.Now()}},
		files:  make(map[api.FD]string),
		dirs:   make(map[api.FD]*dirStream),
		nextFD: 3,
	}
}

// WriteFile creates or replaces a file, creating no parents.
func (s *Storage) WriteFile(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[clean(name)] = &node{data: append([]byte(nil), data...), mtime: time.Now()}
}

// ReadFile returns a file's contents.
func (s *Storage) ReadFile(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[clean(name)]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

func clean(p string) string { return path.Clean("/" + p) }

func fail(op, p string, st api.FSStatus) error {
	return &api.FSErrorDetail{Op: op, Path: p, Status: st}
}

func (s *Storage) children(dir string) []string {
	var out []string
	for p := range s.nodes {
		if p != "/" && path.Dir(p) == dir {
			out = append(out, path.Base(p))
		}
	}
	sort.Strings(out)
	return out
}

// Open implements api.Storage.
func (s *Storage) Open(p string, flags api.OpenFlags) (api.FD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == "" {
		return 0, fail("open", p, api.FSInvalidPath)
	}
	name := clean(p)
	n, ok := s.nodes[name]
	switch {
	case !ok && flags&api.OpenCreate == 0:
		return 0, fail("open", p, api.FSNotFound)
	case !ok:
		if parent, ok := s.nodes[path.Dir(name)]; !ok || !parent.dir {
			return 0, fail("open", p, api.FSNotFound)
		}
		s.nodes[name] = &node{mtime: time.Now()}
	case n.dir:
		return 0, fail("open", p, api.FSIsDirectory)
	case flags&api.OpenTruncate != 0:
		n.data = nil
	}
	fd := s.nextFD
	s.nextFD++
	s.files[fd] = name
	return fd, nil
}

// Close implements api.Storage.
func (s *Storage) Close(fd api.FD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fd]; !ok {
		return fail("close", "", api.FSInvalidFD)
	}
	delete(s.files, fd)
	return nil
}

func (s *Storage) file(op string, fd api.FD) (*node, error) {
	name, ok := s.files[fd]
	if !ok {
		return nil, fail(op, "", api.FSInvalidFD)
	}
	n, ok := s.nodes[name]
	if !ok {
		return nil, fail(op, name, api.FSNotFound)
	}
	return n, nil
}

// Pread implements api.Storage.
func (s *Storage) Pread(fd api.FD, nbyte int, offset int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.file("pread", fd)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(n.data)) {
		return nil, nil
	}
	end := min(offset+int64(nbyte), int64(len(n.data)))
	return append([]byte(nil), n.data[offset:end]...), nil
}

// Pwrite implements api.Storage.
func (s *Storage) Pwrite(fd api.FD, p []byte, offset int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.file("pwrite", fd)
	if err != nil {
		return 0, err
	}
	if end := offset + int64(len(p)); end > int64(len(n.data)) {
		n.data = append(n.data, make([]byte, end-int64(len(n.data)))...)
	}
	copy(n.data[offset:], p)
	n.mtime = time.Now()
	return len(p), nil
}

// Stat implements api.Storage.
func (s *Storage) Stat(p string) (api.Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[clean(p)]
	if !ok {
		return api.Stat{}, fail("stat", p, api.FSNotFound)
	}
	st := api.Stat{Size: int64(len(n.data)), Nlink: 1, Mtime: n.mtime, Atime: n.mtime, Ctime: n.mtime}
	if n.dir {
		st.Mode = api.ModeDir | 0o755
	} else {
		st.Mode = api.ModeFile | 0o644
	}
	return st, nil
}

// Rename implements api.Storage.
func (s *Storage) Rename(oldpath, newpath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to := clean(oldpath), clean(newpath)
	if _, ok := s.nodes[from]; !ok {
		return fail("rename", oldpath, api.FSNotFound)
	}
	moved := make(map[string]*node)
	for p, n := range s.nodes {
		if p == from || strings.HasPrefix(p, from+"/") {
			moved[to+strings.TrimPrefix(p, from)] = n
			delete(s.nodes, p)
		}
	}
	for p, n := range moved {
		s.nodes[p] = n
	}
	return nil
}

// Unlink implements api.Storage.
func (s *Storage) Unlink(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := clean(p)
	n, ok := s.nodes[name]
	switch {
	case !ok:
		return fail("unlink", p, api.FSNotFound)
	case n.dir:
		return fail("unlink", p, api.FSIsDirectory)
	}
	delete(s.nodes, name)
	return nil
}

// Mkdir implements api.Storage.
func (s *Storage) Mkdir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := clean(p)
	if _, ok := s.nodes[name]; ok {
		return fail("mkdir", p, api.FSExists)
	}
	if parent, ok := s.nodes[path.Dir(name)]; !ok || !parent.dir {
		return fail("mkdir", p, api.FSNotFound)
	}
	s.nodes[name] = &node{dir: true, mtime: time.Now()}
	return nil
}

// Rmdir implements api.Storage.
func (s *Storage) Rmdir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := clean(p)
	n, ok := s.nodes[name]
	switch {
	case !ok:
		return fail("rmdir", p, api.FSNotFound)
	case !n.dir:
		return fail("rmdir", p, api.FSNotDirectory)
	case len(s.children(name)) > 0:
		return fail("rmdir", p, api.FSNotEmpty)
	}
	delete(s.nodes, name)
	return nil
}

// Fsync implements api.Storage.
func (s *Storage) Fsync(fd api.FD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.file("fsync", fd)
	return err
}

// Opendir implements api.Storage.
func (s *Storage) Opendir(p string) (api.FD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := clean(p)
	n, ok := s.nodes[name]
	switch {
	case !ok:
		return 0, fail("opendir", p, api.FSNotFound)
	case !n.dir:
		return 0, fail("opendir", p, api.FSNotDirectory)
	}
	fd := s.nextFD
	s.nextFD++
	s.dirs[fd] = &dirStream{names: s.children(name)}
	return fd, nil
}

func (s *Storage) dir(op string, fd api.FD) (*dirStream, error) {
	d, ok := s.dirs[fd]
	if !ok {
		return nil, fail(op, "", api.FSInvalidFD)
	}
	return d, nil
}

// Readdir implements api.Storage.
func (s *Storage) Readdir(fd api.FD) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.dir("readdir", fd)
	if err != nil {
		return "", err
	}
	if d.pos >= int64(len(d.names)) {
		return "", fail("readdir", "", api.FSEndOfDirectory)
	}
	d.pos++
	return d.names[d.pos-1], nil
}

// Seekdir implements api.Storage.
func (s *Storage) Seekdir(fd api.FD, loc int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.dir("seekdir", fd)
	if err != nil {
		return err
	}
	if loc < 0 || loc > int64(len(d.names)) {
		return fail("seekdir", "", api.FSInvalidRequest)
	}
	d.pos = loc
	return nil
}

// Telldir implements api.Storage.
func (s *Storage) Telldir(fd api.FD) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.dir("telldir", fd)
	if err != nil {
		return -1, err
	}
	return d.pos, nil
}

// Rewinddir implements api.Storage.
func (s *Storage) Rewinddir(fd api.FD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.dir("rewinddir", fd)
	if err != nil {
		return err
	}
	d.pos = 0
	return nil
}

// Closedir implements api.Storage.
func (s *Storage) Closedir(fd api.FD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dir("closedir", fd); err != nil {
		return err
	}
	delete(s.dirs, fd)
	return nil
}
