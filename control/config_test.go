package control_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/momentics/hioload-mp/control"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := control.DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mp.toml")
	text := `
[interpreter]
mode = "exec"
script = "/boot.mp"
max_restarts = 3

[serial]
entries = 128

[storage]
backend = "sqlite"
root = "fs.db"
`
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := control.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interpreter.Mode != "exec" || cfg.Interpreter.Script != "/boot.mp" || cfg.Interpreter.MaxRestarts != 3 {
		t.Errorf("interpreter = %+v", cfg.Interpreter)
	}
	if cfg.Serial.Entries != 128 || cfg.Serial.BufferSize != control.DefaultConfig().Serial.BufferSize {
		t.Errorf("serial = %+v", cfg.Serial)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "[serial]\nentriez = 4\n",
		"bad mode":          "[interpreter]\nmode = \"batch\"\n",
		"exec no script":    "[interpreter]\nmode = \"exec\"\n",
		"channel range":     "[channels]\ntimer = 99\n",
		"duplicate channel": "[channels]\ntimer = 0\n",
		"tiny ring":         "[serial]\nentries = 1\n",
		"bad backend":       "[storage]\nbackend = \"s3\"\n",
	}
	for name, text := range cases {
		if _, err := control.Parse(text); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestConfigStoreNotifiesChangedKeys(t *testing.T) {
	cs := control.NewConfigStore()
	cs.SetConfig(map[string]any{"a": 1, "b": 2})
	var got []string
	cs.OnReload(func(changed []string) { got = changed })
	cs.SetConfig(map[string]any{"a": 1, "b": 3, "c": 4})
	if strings.Join(got, ",") != "b,c" {
		t.Errorf("changed = %v, want [b c]", got)
	}
	got = nil
	cs.SetConfig(map[string]any{"a": 1})
	if got != nil {
		t.Errorf("listener called without changes: %v", got)
	}
}

func TestMetricsCounters(t *testing.T) {
	m := control.NewMetricsRegistry()
	m.Add(control.MetricNotifications, 2)
	m.Add(control.MetricNotifications, 3)
	if m.Counter(control.MetricNotifications) != 5 {
		t.Errorf("counter = %d", m.Counter(control.MetricNotifications))
	}
	var nilRegistry *control.MetricsRegistry
	nilRegistry.Add("x", 1)
	if nilRegistry.Counter("x") != 0 {
		t.Error("nil registry counted")
	}
}

func TestDebugProbesSurvivePanics(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("sched", func() any { return "idle" })
	dp.RegisterProbe("queue.rx", func() any { panic("ring unmapped") })
	dp.RegisterProbe("arena", func() any { return 4096 })
	dp.RegisterProbe("arena", nil)

	if got := strings.Join(dp.Names(), ","); got != "queue.rx,sched" {
		t.Errorf("Names = %s", got)
	}
	state := dp.DumpState()
	if state["sched"] != "idle" {
		t.Errorf("sched = %v", state["sched"])
	}
	if v, _ := state["queue.rx"].(string); !strings.Contains(v, "ring unmapped") {
		t.Errorf("queue.rx = %v", state["queue.rx"])
	}
	if _, ok := state["arena"]; ok {
		t.Error("removed probe still dumped")
	}
}
