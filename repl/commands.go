// File: repl/commands.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package repl

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/momentics/hioload-mp/api"
)

var (
	errNoStorage = errors.New("storage not available")
	errNoTimer   = errors.New("timer not available")
	errNoBus     = errors.New("i2c not available")
	errNoDisplay = errors.New("framebuffer not available")
)

type command struct {
	name  string
	usage string
	help  string
	min   int
	max   int // -1 for no limit
	text  bool
	run   func(in *Interpreter, args []string) error
}

func builtins() []*command {
	return []*command{
		{name: "help", help: "list commands", max: 0, run: (*Interpreter).help},
		{name: "echo", usage: "[text...]", help: "print text", max: -1, run: func(in *Interpreter, args []string) error {
			in.printf("%s\n", strings.Join(args, " "))
			return nil
		}},
		{name: "ls", usage: "[dir]", help: "list a directory", max: 1, run: (*Interpreter).ls},
		{name: "cat", usage: "file", help: "print a file", min: 1, max: 1, run: (*Interpreter).cat},
		{name: "write", usage: "file text", help: "replace a file with one line", min: 2, max: 2, text: true, run: (*Interpreter).write},
		{name: "append", usage: "file text", help: "add one line to a file", min: 2, max: 2, text: true, run: (*Interpreter).appendLine},
		{name: "rm", usage: "file", help: "remove a file", min: 1, max: 1, run: func(in *Interpreter, args []string) error {
			return in.withStorage(func(s api.Storage) error { return s.Unlink(args[0]) })
		}},
		{name: "mkdir", usage: "dir", help: "create a directory", min: 1, max: 1, run: func(in *Interpreter, args []string) error {
			return in.withStorage(func(s api.Storage) error { return s.Mkdir(args[0]) })
		}},
		{name: "rmdir", usage: "dir", help: "remove an empty directory", min: 1, max: 1, run: func(in *Interpreter, args []string) error {
			return in.withStorage(func(s api.Storage) error { return s.Rmdir(args[0]) })
		}},
		{name: "mv", usage: "from to", help: "rename", min: 2, max: 2, run: func(in *Interpreter, args []string) error {
			return in.withStorage(func(s api.Storage) error { return s.Rename(args[0], args[1]) })
		}},
		{name: "stat", usage: "path", help: "describe a file", min: 1, max: 1, run: (*Interpreter).stat},
		{name: "sleep", usage: "duration", help: "wait, e.g. 250ms or 2", min: 1, max: 1, run: (*Interpreter).sleep},
		{name: "time", help: "time since boot", max: 0, run: (*Interpreter).uptime},
		{name: "i2c", usage: "addr [hex-bytes] [read-len]", help: "bus transfer", min: 1, max: 3, run: (*Interpreter).i2c},
		{name: "fb", usage: "[bars|gradient|clear]", help: "draw a test frame", max: 1, run: (*Interpreter).fb},
		{name: "run", usage: "script", help: "run a script from storage", min: 1, max: 1, run: func(in *Interpreter, args []string) error {
			return in.runScript(args[0])
		}},
		{name: "exit", help: "end the session", max: 0, run: func(*Interpreter, []string) error { return errExit }},
		{name: "fail", usage: "[message]", help: "raise an uncaught failure", max: 1, text: true, run: func(_ *Interpreter, args []string) error {
			msg := "failure requested"
			if len(args) > 0 {
				msg = args[0]
			}
			panic(errors.New(msg))
		}},
	}
}

func (in *Interpreter) help([]string) error {
	names := make([]string, 0, len(in.commands))
	for n := range in.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := in.commands[n]
		in.printf("  %-32s %s\n", strings.TrimSpace(c.name+" "+c.usage), c.help)
	}
	return nil
}

func (in *Interpreter) withStorage(fn func(api.Storage) error) error {
	if in.env.Storage == nil {
		return errNoStorage
	}
	return fn(in.env.Storage)
}

// readFile reads a whole file, one host call per chunk.
func (in *Interpreter) readFile(name string) ([]byte, error) {
	var data []byte
	err := in.withStorage(func(s api.Storage) error {
		fd, err := s.Open(name, api.OpenRead)
		if err != nil {
			return err
		}
		defer s.Close(fd)
		for {
			chunk, err := s.Pread(fd, 4096, int64(len(data)))
			if err != nil {
				return err
			}
			if len(chunk) == 0 {
				return nil
			}
			data = append(data, chunk...)
		}
	})
	return data, err
}

func (in *Interpreter) ls(args []string) error {
	dir := "/"
	if len(args) > 0 {
		dir = args[0]
	}
	return in.withStorage(func(s api.Storage) error {
		fd, err := s.Opendir(dir)
		if err != nil {
			return err
		}
		defer s.Closedir(fd)
		for {
			name, err := s.Readdir(fd)
			var detail *api.FSErrorDetail
			if errors.As(err, &detail) && detail.Status == api.FSEndOfDirectory {
				return nil
			}
			if err != nil {
				return err
			}
			st, err := s.Stat(path.Join(dir, name))
			switch {
			case err != nil:
				in.printf("  %-24s ?\n", name)
			case st.IsDir():
				in.printf("  %-24s <dir>\n", name+"/")
			default:
				in.printf("  %-24s %10s\n", name, humanize.Bytes(uint64(st.Size)))
			}
		}
	})
}

func (in *Interpreter) cat(args []string) error {
	data, err := in.readFile(args[0])
	if err != nil {
		return err
	}
	in.printf("%s", data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		in.printf("\n")
	}
	return nil
}

func (in *Interpreter) writeAt(name string, flags api.OpenFlags, line string, atEnd bool) error {
	return in.withStorage(func(s api.Storage) error {
		fd, err := s.Open(name, flags)
		if err != nil {
			return err
		}
		var off int64
		if atEnd {
			st, err := s.Stat(name)
			if err != nil {
				s.Close(fd)
				return err
			}
			off = st.Size
		}
		if _, err := s.Pwrite(fd, []byte(line+"\n"), off); err != nil {
			s.Close(fd)
			return err
		}
		if err := s.Fsync(fd); err != nil {
			s.Close(fd)
			return err
		}
		return s.Close(fd)
	})
}

func (in *Interpreter) write(args []string) error {
	return in.writeAt(args[0], api.OpenWrite|api.OpenCreate|api.OpenTruncate, args[1], false)
}

func (in *Interpreter) appendLine(args []string) error {
	return in.writeAt(args[0], api.OpenWrite|api.OpenCreate, args[1], true)
}

func (in *Interpreter) stat(args []string) error {
	return in.withStorage(func(s api.Storage) error {
		st, err := s.Stat(args[0])
		if err != nil {
			return err
		}
		kind := "file"
		if st.IsDir() {
			kind = "directory"
		}
		in.printf("  %s, %s (%s bytes), mode %04o\n", kind, humanize.Bytes(uint64(st.Size)), humanize.Comma(st.Size), st.Mode&api.ModePerm)
		if !st.Mtime.IsZero() {
			in.printf("  modified %s (%s)\n", st.Mtime.Format(time.RFC3339), humanize.Time(st.Mtime))
		}
		return nil
	})
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (in *Interpreter) sleep(args []string) error {
	if in.env.Timer == nil {
		return errNoTimer
	}
	d, err := parseDuration(args[0])
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("negative duration %s", d)
	}
	return in.env.Timer.Sleep(d)
}

func (in *Interpreter) uptime([]string) error {
	if in.env.Timer == nil {
		return errNoTimer
	}
	now, err := in.env.Timer.Now()
	if err != nil {
		return err
	}
	in.printf("%s since boot\n", now.Round(time.Microsecond))
	return nil
}

func (in *Interpreter) i2c(args []string) error {
	if in.env.Bus == nil {
		return errNoBus
	}
	addr, err := strconv.ParseUint(args[0], 0, 10)
	if err != nil {
		return fmt.Errorf("bad address %q", args[0])
	}
	var write []byte
	if len(args) > 1 && args[1] != "-" {
		if write, err = hex.DecodeString(args[1]); err != nil {
			return fmt.Errorf("bad write bytes %q", args[1])
		}
	}
	readLen := 0
	if len(args) > 2 {
		if readLen, err = strconv.Atoi(args[2]); err != nil || readLen < 0 {
			return fmt.Errorf("bad read length %q", args[2])
		}
	}
	read, err := in.env.Bus.Transfer(uint16(addr), write, readLen)
	if err != nil {
		return err
	}
	if len(read) > 0 {
		in.printf("% x\n", read)
	}
	return nil
}

type geometry interface {
	Geometry() (width, height, bpp int)
}

func (in *Interpreter) fb(args []string) error {
	g, ok := in.env.Display.(geometry)
	if in.env.Display == nil || !ok {
		return errNoDisplay
	}
	pattern := "bars"
	if len(args) > 0 {
		pattern = args[0]
	}
	w, h, bpp := g.Geometry()
	pixels := make([]byte, w*h*bpp)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v byte
			switch pattern {
			case "bars":
				v = byte(x * 8 / w * 32)
			case "gradient":
				v = byte((x + y) * 255 / (w + h))
			case "clear":
			default:
				return fmt.Errorf("unknown pattern %q", pattern)
			}
			px := pixels[(y*w+x)*bpp : (y*w+x+1)*bpp]
			for i := range px {
				px[i] = v
			}
		}
	}
	if err := in.env.Display.Send(pixels, w, h); err != nil {
		return err
	}
	in.printf("frame %dx%d sent\n", w, h)
	return nil
}
