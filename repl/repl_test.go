package repl_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/fake"
	"github.com/momentics/hioload-mp/peer"
	"github.com/momentics/hioload-mp/repl"
)

type clock struct {
	now   time.Duration
	slept []time.Duration
}

func (c *clock) Now() (time.Duration, error) { return c.now, nil }
func (c *clock) Sleep(d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now += d
	return nil
}

type memBus struct{ dev *peer.Memory }

func (b memBus) Transfer(addr uint16, write []byte, readLen int) ([]byte, error) {
	if addr != 0x50 {
		return nil, errors.New("no device")
	}
	return b.dev.Transfer(write, readLen)
}

type screen struct {
	frames [][]byte
}

func (s *screen) Geometry() (int, int, int) { return 4, 2, 2 }
func (s *screen) Send(pixels []byte, w, h int) error {
	s.frames = append(s.frames, pixels)
	return nil
}

type session struct {
	con   *fake.Console
	store *fake.Storage
	clock *clock
	scr   *screen
	in    *repl.Interpreter
}

func start(t *testing.T, mode api.RunMode, input string) *session {
	t.Helper()
	s := &session{
		con:   fake.NewConsole(input),
		store: fake.NewStorage(),
		clock: &clock{now: 3 * time.Second},
		scr:   &screen{},
		in:    repl.New(),
	}
	env := api.Env{
		Console: s.con,
		Storage: s.store,
		Timer:   s.clock,
		Bus:     memBus{peer.NewMemory(8)},
		Display: s.scr,
		Heap:    make([]byte, 1024),
		Mode:    mode,
		Script:  "/boot.mp",
	}
	if err := s.in.Init(env); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCtrlDOnEmptyLineEndsSession(t *testing.T) {
	s := start(t, api.ModeREPL, "ech\x7fho hi\r\n\x04")
	if err := s.in.Run(); err != nil {
		t.Fatal(err)
	}
	out := s.con.Output()
	if !strings.Contains(out, repl.Prompt+"ech\b \bho hi\n") {
		t.Errorf("echo missing in %q", out)
	}
	if !strings.Contains(out, "\nhi\n") {
		t.Errorf("command output missing in %q", out)
	}
	if strings.Count(out, repl.Prompt) != 2 {
		t.Errorf("prompts in %q", out)
	}
}

func TestCtrlCDiscardsLine(t *testing.T) {
	s := start(t, api.ModeREPL, "rm /x\x03exit\r")
	if err := s.in.Run(); err != nil {
		t.Fatal(err)
	}
	out := s.con.Output()
	if !strings.Contains(out, "^C\n") || strings.Contains(out, "error:") {
		t.Errorf("output %q", out)
	}
}

func TestCtrlDInsideLineIsIgnored(t *testing.T) {
	s := start(t, api.ModeREPL, "ex\x04it\r")
	if err := s.in.Run(); err != nil {
		t.Fatal(err)
	}
}

func TestStorageCommands(t *testing.T) {
	s := start(t, api.ModeREPL, strings.Join([]string{
		"mkdir /lib",
		"write /lib/a.txt hello  world",
		"append /lib/a.txt again",
		"cat /lib/a.txt",
		"ls /lib",
		"stat /lib/a.txt",
		"mv /lib/a.txt /lib/b.txt",
		"rm /lib/a.txt",
		"rmdir /lib",
		"exit\r",
	}, "\r"))
	if err := s.in.Run(); err != nil {
		t.Fatal(err)
	}
	data, ok := s.store.ReadFile("/lib/b.txt")
	if !ok || string(data) != "hello  world\nagain\n" {
		t.Errorf("file = %q, %v", data, ok)
	}
	out := s.con.Output()
	for _, want := range []string{
		"hello  world\nagain\n",
		"a.txt",
		"19 B",
		"file, 19 B (19 bytes), mode 0644",
		"error: unlink /lib/a.txt: no such file or directory",
		"error: rmdir /lib: directory not empty",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestDeviceCommands(t *testing.T) {
	s := start(t, api.ModeREPL, strings.Join([]string{
		"sleep 250ms",
		"sleep 2",
		"time",
		"i2c 0x50 02abcd",
		"i2c 0x50 02 2",
		"i2c 0x51 - 1",
		"fb gradient",
		"fb plaid",
		"exit\n",
	}, "\n"))
	if err := s.in.Run(); err != nil {
		t.Fatal(err)
	}
	if len(s.clock.slept) != 2 || s.clock.slept[0] != 250*time.Millisecond || s.clock.slept[1] != 2*time.Second {
		t.Errorf("slept %v", s.clock.slept)
	}
	out := s.con.Output()
	for _, want := range []string{
		"5.25s since boot",
		"ab cd\n",
		"error: no device",
		"frame 4x2 sent",
		`error: unknown pattern "plaid"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if len(s.scr.frames) != 1 || len(s.scr.frames[0]) != 4*2*2 {
		t.Errorf("frames = %v", s.scr.frames)
	}
}

func TestUnknownCommandAndUsage(t *testing.T) {
	s := start(t, api.ModeREPL, "frobnicate\rcat\rhelp\rexit\r")
	if err := s.in.Run(); err != nil {
		t.Fatal(err)
	}
	out := s.con.Output()
	for _, want := range []string{`unknown command "frobnicate"`, "usage: cat file", "raise an uncaught failure"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestFailPanics(t *testing.T) {
	s := start(t, api.ModeREPL, "fail out of cheese\r")
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || err.Error() != "out of cheese" {
			t.Errorf("recovered %v", r)
		}
	}()
	s.in.Run()
	t.Fatal("fail returned")
}

func TestExecModeRunsScript(t *testing.T) {
	s := start(t, api.ModeExec, "")
	s.store.WriteFile("/boot.mp", []byte("# start\necho one\nrun /lib.mp\necho three\nexit\necho never\n"))
	s.store.WriteFile("/lib.mp", []byte("echo two\n"))
	if err := s.in.Run(); err != nil {
		t.Fatal(err)
	}
	if got := s.con.Output(); got != "one\ntwo\nthree\n" {
		t.Errorf("output %q", got)
	}
}

func TestExecModeFailureNamesLine(t *testing.T) {
	s := start(t, api.ModeExec, "")
	s.store.WriteFile("/boot.mp", []byte("echo ok\ncat /missing\n"))
	err := s.in.Run()
	if err == nil || !strings.Contains(err.Error(), "/boot.mp:2: open /missing: no such file or directory") {
		t.Errorf("err = %v", err)
	}
	var detail *api.FSErrorDetail
	if !errors.As(err, &detail) || detail.Status != api.FSNotFound {
		t.Errorf("status lost in %v", err)
	}
}

func TestExecModeMissingScript(t *testing.T) {
	s := start(t, api.ModeExec, "")
	if err := s.in.Run(); api.StatusOf(err) != api.FSNotFound {
		t.Errorf("err = %v", err)
	}
}

func TestInitChecks(t *testing.T) {
	in := repl.New()
	if err := in.Init(api.Env{}); !errors.Is(err, repl.ErrNoConsole) {
		t.Errorf("no console: %v", err)
	}
	if err := in.Init(api.Env{Console: fake.NewConsole(""), Heap: make([]byte, 4)}); err == nil {
		t.Error("tiny heap accepted")
	}
}
