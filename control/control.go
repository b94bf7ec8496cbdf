// control/control.go
// Author: momentics <momentics@gmail.com>
//
// Controller bundles the config store, metrics and probes behind api.Control.

package control

import (
	"github.com/tliron/commonlog"

	"github.com/momentics/hioload-mp/api"

	_ "github.com/tliron/commonlog/simple"
)

// Controller is the single control surface of a running system.
type Controller struct {
	Config  *ConfigStore
	Metrics *MetricsRegistry
	Probes  *DebugProbes
}

var _ api.Control = (*Controller)(nil)

// NewController seeds the store from cfg and registers platform probes.
// Changing "log.verbosity" in the store reconfigures logging.
func NewController(cfg *Config) *Controller {
	c := &Controller{
		Config:  NewConfigStore(),
		Metrics: NewMetricsRegistry(),
		Probes:  NewDebugProbes(),
	}
	c.Config.SetConfig(cfg.Flatten())
	c.Config.OnReload(func(changed []string) {
		for _, k := range changed {
			if k != "log.verbosity" {
				continue
			}
			if v, ok := c.Config.Get(k); ok {
				if level, ok := v.(int); ok {
					ConfigureLogging(LogConfig{Verbosity: level, Path: cfg.Log.Path})
				}
			}
		}
	})
	RegisterPlatformProbes(c.Probes)
	return c
}

// GetConfig returns the effective configuration snapshot.
func (c *Controller) GetConfig() map[string]any { return c.Config.GetSnapshot() }

// Stats returns the metrics snapshot.
func (c *Controller) Stats() map[string]any { return c.Metrics.GetSnapshot() }

// GetDebug returns the probe registry.
func (c *Controller) GetDebug() api.Debug { return c.Probes }

// RegisterDebugProbe adds a probe to the debug dump.
func (c *Controller) RegisterDebugProbe(name string, fn func() any) {
	c.Probes.RegisterProbe(name, fn)
}

// ConfigureLogging applies cfg to commonlog.
func ConfigureLogging(cfg LogConfig) {
	var path *string
	if cfg.Path != "" {
		path = &cfg.Path
	}
	commonlog.Configure(cfg.Verbosity, path)
}
