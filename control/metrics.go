// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for the interpreter domain.
// Exposes counters in a thread-safe map with dynamic registration.

package control

import (
	"sync"
	"time"
)

// Well-known counter names.
const (
	MetricNotifications       = "demux.notifications"
	MetricUnexpectedChannels  = "demux.unexpected_channels"
	MetricIgnoredChannels     = "demux.ignored_channels"
	MetricWakeups             = "demux.wakeups"
	MetricInterpreterRuns     = "boot.runs"
	MetricInterpreterFailures = "boot.failures"
	MetricInterpreterRestarts = "boot.restarts"
	MetricSerialRxBytes       = "serial.rx_bytes"
	MetricSerialTxBytes       = "serial.tx_bytes"
	MetricSerialTxBacklog     = "serial.tx_backlog"
	MetricStorageRequests     = "storage.requests"
	MetricStorageOrphans      = "storage.orphan_completions"
)

// MetricsRegistry holds mutable and read-only metrics.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Add increments an integer counter. A nil registry ignores the call, so
// components can run without metrics wired.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	cur, _ := mr.metrics[key].(int64)
	mr.metrics[key] = cur + delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Counter returns an integer counter, zero if never set.
func (mr *MetricsRegistry) Counter(key string) int64 {
	if mr == nil {
		return 0
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	v, _ := mr.metrics[key].(int64)
	return v
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics)+1)
	for k, v := range mr.metrics {
		out[k] = v
	}
	if !mr.updated.IsZero() {
		out["updated"] = mr.updated
	}
	return out
}
