// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Deployment configuration: the TOML file format, defaults, and the
// thread-safe snapshot store the rest of the system reads from.

package control

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config is the complete deployment description. Channel numbers are the
// identifiers the interpreter domain sees; layout values must match what
// the peer domains expect.
type Config struct {
	Interpreter InterpreterConfig `toml:"interpreter" json:"interpreter"`
	Channels    ChannelConfig     `toml:"channels" json:"channels"`
	Serial      SerialConfig      `toml:"serial" json:"serial"`
	Storage     StorageConfig     `toml:"storage" json:"storage"`
	I2C         I2CConfig         `toml:"i2c" json:"i2c"`
	Framebuffer FramebufferConfig `toml:"framebuffer" json:"framebuffer"`
	Log         LogConfig         `toml:"log" json:"log"`
}

// InterpreterConfig sizes the interpreter context and picks its run mode.
type InterpreterConfig struct {
	Mode        string `toml:"mode" json:"mode"`
	Script      string `toml:"script" json:"script"`
	StackSize   int    `toml:"stack_size" json:"stack_size"`
	HeapSize    int    `toml:"heap_size" json:"heap_size"`
	MaxRestarts int    `toml:"max_restarts" json:"max_restarts"` // 0 restarts forever
	CPU         int    `toml:"cpu" json:"cpu"`                   // pins both contexts' threads; -1 leaves them unpinned
}

// ChannelConfig is the static channel table of the interpreter domain.
type ChannelConfig struct {
	SerialRX    int `toml:"serial_rx" json:"serial_rx"`
	SerialTX    int `toml:"serial_tx" json:"serial_tx"`
	Timer       int `toml:"timer" json:"timer"`
	Storage     int `toml:"storage" json:"storage"`
	Framebuffer int `toml:"framebuffer" json:"framebuffer"`
	I2C         int `toml:"i2c" json:"i2c"`
	EthRX       int `toml:"eth_rx" json:"eth_rx"`
	EthTX       int `toml:"eth_tx" json:"eth_tx"`
}

// SerialConfig sizes the RX and TX queues.
type SerialConfig struct {
	Entries    int `toml:"entries" json:"entries"`
	BufferSize int `toml:"buffer_size" json:"buffer_size"`
	TxBacklog  int `toml:"tx_backlog" json:"tx_backlog"`
}

// StorageConfig sizes the command/completion queues and selects the backend.
type StorageConfig struct {
	Entries    int    `toml:"entries" json:"entries"`
	BufferSize int    `toml:"buffer_size" json:"buffer_size"`
	Backend    string `toml:"backend" json:"backend"`
	Root       string `toml:"root" json:"root"`
}

// I2CConfig sizes the bus request/response queues.
type I2CConfig struct {
	Enabled    bool `toml:"enabled" json:"enabled"`
	Entries    int  `toml:"entries" json:"entries"`
	BufferSize int  `toml:"buffer_size" json:"buffer_size"`
}

// FramebufferConfig describes the shared frame region.
type FramebufferConfig struct {
	Enabled       bool `toml:"enabled" json:"enabled"`
	Width         int  `toml:"width" json:"width"`
	Height        int  `toml:"height" json:"height"`
	BytesPerPixel int  `toml:"bytes_per_pixel" json:"bytes_per_pixel"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	Path      string `toml:"path" json:"path"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Interpreter: InterpreterConfig{
			Mode:      "repl",
			StackSize: 64 * 1024,  // interpreter context stack arena
			HeapSize:  256 * 1024, // interpreter heap arena
			CPU:       -1,
		},
		Channels: ChannelConfig{
			SerialRX:    0,
			SerialTX:    1,
			Timer:       2,
			Storage:     3,
			Framebuffer: 4,
			I2C:         5,
			EthRX:       6,
			EthTX:       7,
		},
		Serial: SerialConfig{
			Entries:    64,
			BufferSize: 256,
			TxBacklog:  64 * 1024,
		},
		Storage: StorageConfig{
			Entries:    32,
			BufferSize: 8 * 1024,
			Backend:    "dir",
			Root:       ".",
		},
		I2C: I2CConfig{
			Enabled:    true,
			Entries:    16,
			BufferSize: 512,
		},
		Framebuffer: FramebufferConfig{
			Enabled:       true,
			Width:         320,
			Height:        240,
			BytesPerPixel: 2,
		},
		Log: LogConfig{
			Verbosity: 1,
		},
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(text string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against the schema and the cross-field rules the
// schema cannot express.
func (c *Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return err
	}
	if c.Interpreter.Mode == "exec" && c.Interpreter.Script == "" {
		return fmt.Errorf("interpreter.script is required in exec mode")
	}
	if c.Interpreter.Mode == "exec" && c.Storage.Backend == "none" {
		return fmt.Errorf("exec mode needs a storage backend to load %s", c.Interpreter.Script)
	}
	seen := make(map[int]string)
	for name, ch := range c.Channels.byName() {
		if prev, ok := seen[ch]; ok {
			return fmt.Errorf("channel %d assigned to both %s and %s", ch, prev, name)
		}
		seen[ch] = name
	}
	return nil
}

func (c ChannelConfig) byName() map[string]int {
	return map[string]int{
		"serial_rx":   c.SerialRX,
		"serial_tx":   c.SerialTX,
		"timer":       c.Timer,
		"storage":     c.Storage,
		"framebuffer": c.Framebuffer,
		"i2c":         c.I2C,
		"eth_rx":      c.EthRX,
		"eth_tx":      c.EthTX,
	}
}

// Flatten renders cfg as dotted keys for the config store.
func (c *Config) Flatten() map[string]any {
	out := map[string]any{
		"interpreter.mode":            c.Interpreter.Mode,
		"interpreter.script":          c.Interpreter.Script,
		"interpreter.stack_size":      c.Interpreter.StackSize,
		"interpreter.heap_size":       c.Interpreter.HeapSize,
		"interpreter.max_restarts":    c.Interpreter.MaxRestarts,
		"interpreter.cpu":             c.Interpreter.CPU,
		"serial.entries":              c.Serial.Entries,
		"serial.buffer_size":          c.Serial.BufferSize,
		"serial.tx_backlog":           c.Serial.TxBacklog,
		"storage.entries":             c.Storage.Entries,
		"storage.buffer_size":         c.Storage.BufferSize,
		"storage.backend":             c.Storage.Backend,
		"i2c.enabled":                 c.I2C.Enabled,
		"framebuffer.enabled":         c.Framebuffer.Enabled,
		"framebuffer.width":           c.Framebuffer.Width,
		"framebuffer.height":          c.Framebuffer.Height,
		"framebuffer.bytes_per_pixel": c.Framebuffer.BytesPerPixel,
		"log.verbosity":               c.Log.Verbosity,
	}
	for name, ch := range c.Channels.byName() {
		out["channels."+name] = ch
	}
	return out
}

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func(changed []string)
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns one value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig merges new values and notifies listeners of the changed keys.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	var changed []string
	for k, v := range newCfg {
		if old, ok := cs.config[k]; !ok || old != v {
			changed = append(changed, k)
		}
		cs.config[k] = v
	}
	listeners := append([]func([]string){}, cs.listeners...)
	cs.mu.Unlock()
	if len(changed) == 0 {
		return
	}
	sort.Strings(changed)
	for _, fn := range listeners {
		fn(changed)
	}
}

// OnReload registers a listener called synchronously after changes.
func (cs *ConfigStore) OnReload(fn func(changed []string)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
