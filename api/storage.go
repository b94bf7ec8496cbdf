// File: api/storage.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Storage contract offered to interpreter code. Every call is synchronous
// from the caller's point of view and reports a protocol status.

package api

import (
	"fmt"
	"time"
)

// FD is a file or directory handle issued by the storage server.
type FD uint64

// OpenFlags select the access mode of Open.
type OpenFlags uint32

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
	OpenCreate
	OpenTruncate
	OpenAppend
)

// FSStatus is the status code carried by every storage completion.
type FSStatus int32

const (
	FSSuccess FSStatus = iota
	FSError
	FSInvalidPath
	FSInvalidFD
	FSNotFound
	FSExists
	FSNotDirectory
	FSIsDirectory
	FSNotEmpty
	FSEndOfDirectory
	FSInvalidRequest
	FSServerBusy
)

var fsStatusText = map[FSStatus]string{
	FSSuccess:        "success",
	FSError:          "error",
	FSInvalidPath:    "invalid path",
	FSInvalidFD:      "invalid file descriptor",
	FSNotFound:       "no such file or directory",
	FSExists:         "file exists",
	FSNotDirectory:   "not a directory",
	FSIsDirectory:    "is a directory",
	FSNotEmpty:       "directory not empty",
	FSEndOfDirectory: "end of directory",
	FSInvalidRequest: "invalid request",
	FSServerBusy:     "server busy",
}

func (s FSStatus) String() string {
	if t, ok := fsStatusText[s]; ok {
		return t
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// FSErrorDetail is returned by storage calls whose completion status is
// not FSSuccess.
type FSErrorDetail struct {
	Op     string
	Path   string
	Status FSStatus
}

func (e *FSErrorDetail) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Status)
}

// StatusOf extracts the protocol status from err; nil maps to FSSuccess.
func StatusOf(err error) FSStatus {
	if err == nil {
		return FSSuccess
	}
	if d, ok := err.(*FSErrorDetail); ok {
		return d.Status
	}
	return FSError
}

// Stat mirrors the fields of a 64-bit stat record.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint64
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// IsDir reports whether the mode carries the directory type bit.
func (s Stat) IsDir() bool {
	return s.Mode&ModeDir != 0
}

// Mode bits used by Stat.Mode.
const (
	ModeDir  uint32 = 0o040000
	ModeFile uint32 = 0o100000
	ModePerm uint32 = 0o777
)

// Storage is the interpreter-facing storage client.
type Storage interface {
	Open(path string, flags OpenFlags) (FD, error)
	Close(fd FD) error
	Pread(fd FD, nbyte int, offset int64) ([]byte, error)
	Pwrite(fd FD, p []byte, offset int64) (int, error)
	Stat(path string) (Stat, error)
	Rename(oldpath, newpath string) error
	Unlink(path string) error
	Mkdir(path string) error
	Rmdir(path string) error
	Fsync(fd FD) error
	Opendir(path string) (FD, error)
	Readdir(fd FD) (string, error)
	Seekdir(fd FD, loc int64) error
	Telldir(fd FD) (int64, error)
	Rewinddir(fd FD) error
	Closedir(fd FD) error
}
