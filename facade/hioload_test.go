package facade_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/control"
	"github.com/momentics/hioload-mp/facade"
	"github.com/momentics/hioload-mp/peer"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func testConfig(t *testing.T) *control.Config {
	t.Helper()
	cfg := control.DefaultConfig()
	cfg.Log.Verbosity = 0
	cfg.Storage.Root = t.TempDir()
	cfg.Framebuffer.Width = 8
	cfg.Framebuffer.Height = 4
	return cfg
}

func run(t *testing.T, m *facade.Machine) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := m.Run(ctx)
	if ctx.Err() != nil {
		t.Fatal("machine did not finish in time")
	}
	if serr := m.Shutdown(); serr != nil {
		t.Errorf("Shutdown: %v", serr)
	}
	return err
}

func TestExecScriptAgainstDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interpreter.Mode = "exec"
	cfg.Interpreter.Script = "/boot.mp"
	script := strings.Join([]string{
		"echo hello",
		"write /out.txt done",
		"sleep 5ms",
		"time",
		"i2c 0x50 00ff",
		"i2c 0x50 00 1",
		"fb bars",
		"ls /",
	}, "\n")
	if err := os.WriteFile(filepath.Join(cfg.Storage.Root, "boot.mp"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	var out syncBuffer
	var frames []peer.Frame
	m, err := facade.New(cfg, facade.Options{
		Stdout: &out,
		Frames: func(f peer.Frame) { frames = append(frames, f) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := run(t, m); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{
		"MP|INFO: initialising!\n",
		"hello\n",
		"since boot\n",
		"ff\n",
		"frame 8x4 sent\n",
		"out.txt",
		"MP|INFO: exited!\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in console output %q", want, got)
		}
	}
	data, err := os.ReadFile(filepath.Join(cfg.Storage.Root, "out.txt"))
	if err != nil || string(data) != "done\n" {
		t.Errorf("out.txt = %q, %v", data, err)
	}
	if len(frames) != 1 || frames[0].Width != 8 || frames[0].Height != 4 {
		t.Errorf("frames = %+v", frames)
	}
	stats := m.GetControl().Stats()
	if stats[control.MetricUnexpectedChannels] != nil {
		t.Errorf("unexpected channels: %v", stats)
	}
}

func TestExecScriptAgainstSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interpreter.Mode = "exec"
	cfg.Interpreter.Script = "boot.mp"
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Root = filepath.Join(t.TempDir(), "fs.db")
	cfg.I2C.Enabled = false
	cfg.Framebuffer.Enabled = false

	b, err := peer.OpenSQLiteBackend(cfg.Storage.Root)
	if err != nil {
		t.Fatal(err)
	}
	f, err := b.Open("boot.mp", api.OpenWrite|api.OpenCreate)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte("echo from sqlite\nmkdir /data\n"), 0); err != nil {
		t.Fatal(err)
	}
	f.Close()
	b.Close()

	var out syncBuffer
	m, err := facade.New(cfg, facade.Options{Stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	if err := run(t, m); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "from sqlite\n") {
		t.Errorf("console output %q", out.String())
	}

	b, err = peer.OpenSQLiteBackend(cfg.Storage.Root)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if st, err := b.Stat("data"); err != nil || !st.IsDir() {
		t.Errorf("data = %+v, %v", st, err)
	}
}

func TestReplRestartsAfterCtrlD(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interpreter.MaxRestarts = 1

	pr, pw := io.Pipe()
	defer pw.Close()
	go pw.Write([]byte("echo hi\r\x04exit\r"))

	var out syncBuffer
	m, err := facade.New(cfg, facade.Options{Stdin: pr, Stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	if err := run(t, m); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, "\nhi\n") {
		t.Errorf("missing echo output in %q", got)
	}
	if n := strings.Count(got, "MP|INFO: exited!"); n != 2 {
		t.Errorf("exited %d times in %q", n, got)
	}
	if n := strings.Count(got, "MP|INFO: initialising!"); n != 1 {
		t.Errorf("initialising %d times", n)
	}
	if m.Component().Restarts() != 1 {
		t.Errorf("restarts = %d", m.Component().Restarts())
	}
}

func TestExecFailureIsReturned(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interpreter.Mode = "exec"
	cfg.Interpreter.Script = "/boot.mp"
	if err := os.WriteFile(filepath.Join(cfg.Storage.Root, "boot.mp"), []byte("fail boom\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out syncBuffer
	m, err := facade.New(cfg, facade.Options{Stdout: &out})
	if err != nil {
		t.Fatal(err)
	}
	err = run(t, m)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Run = %v", err)
	}
	if !strings.Contains(out.String(), "MP|ERROR: uncaught failure: boom\n") {
		t.Errorf("console output %q", out.String())
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interpreter.Mode = "exec"
	if _, err := facade.New(cfg, facade.Options{}); err == nil {
		t.Error("exec mode without a script accepted")
	}
	cfg = testConfig(t)
	cfg.Channels.Timer = cfg.Channels.SerialRX
	if _, err := facade.New(cfg, facade.Options{}); err == nil {
		t.Error("duplicate channel accepted")
	}
}
