// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot represents the run statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Operations    map[string]OperationSnapshot
}

// Operation name helpers.
func StageOp(stage string) string       { return "stage:" + stage }
func SubstageOp(substage string) string { return "substage:" + substage }
func ToolOp(tool string) string         { return "tool:" + tool }

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordFailure counts a failed run of an operation.
func (c *Collector) RecordFailure(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).Failures++
}

// Time records the duration since start for op. Use with defer:
//
//	defer c.Time(metrics.StageOp("TRAINING"), time.Now())
func (c *Collector) Time(op string, start time.Time) {
	c.RecordTiming(op, time.Since(start))
}

// snapshotOp creates a snapshot for an operation.
func snapshotOp(m *OperationMetrics) OperationSnapshot {
	snap := OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
	if m.Count > 0 {
		snap.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
		snap.MinTimeMs = m.MinTime.Milliseconds()
	}
	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make(map[string]OperationSnapshot, len(c.ops))
	for name, m := range c.ops {
		ops[name] = snapshotOp(m)
	}
	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Operations:    ops,
	}
}

// LogSummary writes one line per operation, sorted by name.
func (c *Collector) LogSummary(ctx context.Context, logger *slog.Logger) {
	snap := c.Snapshot()
	names := make([]string, 0, len(snap.Operations))
	for name := range snap.Operations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		op := snap.Operations[name]
		logger.InfoContext(ctx, "run statistics",
			"operation", name,
			"count", op.Count,
			"failures", op.Failures,
			"total_ms", op.TotalTimeMs,
			"avg_ms", op.AvgTimeMs,
			"max_ms", op.MaxTimeMs)
	}
	logger.InfoContext(ctx, "run finished", "uptime_seconds", snap.UptimeSeconds)
}
