// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for hioload-mp.
//
// Provides concurrent-safe state handling primitives including:
//   - TOML configuration with defaults and CUE schema validation
//   - Snapshot config reads with change listeners
//   - Counters for the demultiplexer, boot loop and host calls
//   - State export and probe registration
package control
