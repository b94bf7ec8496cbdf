// control/schema.go
// Author: momentics <momentics@gmail.com>
//
// CUE schema for Config. Field names follow the json tags, which is how
// cue encodes Go values.

package control

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

const configSchema = `
#Channel: int & >=0 & <63

#Config: {
	interpreter: {
		mode:         "repl" | "exec"
		script:       string
		stack_size:   int & >=4096
		heap_size:    int & >=4096
		max_restarts: int & >=0
		cpu:          int & >=-1
	}
	channels: {
		serial_rx:   #Channel
		serial_tx:   #Channel
		timer:       #Channel
		storage:     #Channel
		framebuffer: #Channel
		i2c:         #Channel
		eth_rx:      #Channel
		eth_tx:      #Channel
	}
	serial: {
		entries:     int & >=2
		buffer_size: int & >=16
		tx_backlog:  int & >=0
	}
	storage: {
		entries:     int & >=2
		buffer_size: int & >=1024
		backend:     "dir" | "sqlite" | "none"
		root:        string
	}
	i2c: {
		enabled:     bool
		entries:     int & >=2
		buffer_size: int & >=64
	}
	framebuffer: {
		enabled:         bool
		width:           int & >0
		height:          int & >0
		bytes_per_pixel: 1 | 2 | 3 | 4
	}
	log: {
		verbosity: int & >=-4 & <=4
		path:      string
	}
}
`

var (
	schemaOnce sync.Once
	schemaMu   sync.Mutex
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() {
	schemaCtx = cuecontext.New()
	v := schemaCtx.CompileString(configSchema)
	if err := v.Err(); err != nil {
		schemaErr = fmt.Errorf("compile config schema: %w", err)
		return
	}
	schemaDef = v.LookupPath(cue.ParsePath("#Config"))
	schemaErr = schemaDef.Err()
}

func validateSchema(c *Config) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return schemaErr
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	v := schemaDef.Unify(schemaCtx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
