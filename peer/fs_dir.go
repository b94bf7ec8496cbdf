// File: peer/fs_dir.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Directory backend confined to one host directory with os.Root.

package peer

import (
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/momentics/hioload-mp/api"
)

// DirBackend serves a host directory tree.
type DirBackend struct {
	root *os.Root
}

var _ Backend = (*DirBackend)(nil)

// OpenDirBackend confines the backend to dir.
func OpenDirBackend(dir string) (*DirBackend, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open storage root %s: %w", dir, err)
	}
	return &DirBackend{root: root}, nil
}

// Open opens or creates a regular file.
func (b *DirBackend) Open(name string, flags api.OpenFlags) (File, error) {
	if fi, err := b.root.Stat(name); err == nil && fi.IsDir() {
		return nil, ErrIsDir
	}
	f, err := b.root.OpenFile(name, osFlags(flags), 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func osFlags(flags api.OpenFlags) int {
	var mode int
	switch {
	case flags&api.OpenWrite != 0 && flags&api.OpenRead != 0:
		mode = os.O_RDWR
	case flags&(api.OpenWrite|api.OpenAppend) != 0:
		mode = os.O_WRONLY
	default:
		mode = os.O_RDONLY
	}
	if flags&api.OpenCreate != 0 {
		mode |= os.O_CREATE
	}
	if flags&api.OpenTruncate != 0 {
		mode |= os.O_TRUNC
	}
	return mode
}

// Stat describes name.
func (b *DirBackend) Stat(name string) (api.Stat, error) {
	fi, err := b.root.Stat(name)
	if err != nil {
		return api.Stat{}, err
	}
	return statFromInfo(fi), nil
}

func statFromInfo(fi fs.FileInfo) api.Stat {
	mode := uint32(fi.Mode().Perm())
	if fi.IsDir() {
		mode |= api.ModeDir
	} else {
		mode |= api.ModeFile
	}
	return api.Stat{
		Mode:    mode,
		Nlink:   1,
		Size:    fi.Size(),
		Blksize: 512,
		Blocks:  (fi.Size() + 511) / 512,
		Atime:   fi.ModTime(),
		Mtime:   fi.ModTime(),
		Ctime:   fi.ModTime(),
	}
}

// Rename moves a file or directory.
func (b *DirBackend) Rename(oldname, newname string) error {
	return b.root.Rename(oldname, newname)
}

// Unlink removes a file.
func (b *DirBackend) Unlink(name string) error {
	fi, err := b.root.Stat(name)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return ErrIsDir
	}
	return b.root.Remove(name)
}

// Mkdir creates a directory.
func (b *DirBackend) Mkdir(name string) error {
	return b.root.Mkdir(name, 0o755)
}

// Rmdir removes an empty directory.
func (b *DirBackend) Rmdir(name string) error {
	if name == "." {
		return fs.ErrInvalid
	}
	fi, err := b.root.Stat(name)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return ErrNotDir
	}
	names, err := b.ReadDir(name)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return ErrNotEmpty
	}
	return b.root.Remove(name)
}

// ReadDir lists a directory.
func (b *DirBackend) ReadDir(name string) ([]string, error) {
	f, err := b.root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, ErrNotDir
	}
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the root.
func (b *DirBackend) Close() error {
	return b.root.Close()
}
