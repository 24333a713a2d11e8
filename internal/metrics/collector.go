// Package metrics provides in-memory statistics about calls to the service.
package metrics

import (
	"math"
	"slices"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Name        string
	Count       int64
	Errors      int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot represents all collected statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Operations    []OperationSnapshot
}

// Operation names recorded by the API client.
const (
	OpLogin               = "login"
	OpRegister            = "register"
	OpUpload              = "upload"
	OpTranscribe          = "transcribe"
	OpTranscriptionStatus = "transcription_status"
	OpTranscript          = "transcript"
	OpUpdateTranscript    = "update_transcript"
	OpDeleteTranscript    = "delete_transcript"
	OpGenerateReport      = "generate_report"
	OpReportStatus        = "report_status"
	OpReport              = "report"
	OpListReports         = "list_reports"
	OpDeleteReport        = "delete_report"
	OpStatistics          = "statistics"
	OpUserStatistics      = "user_statistics"
)

// Collector aggregates in-memory call statistics.
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
	c.record(op, duration, false)
}

// RecordCall records timing for an operation and whether it failed.
func (c *Collector) RecordCall(op string, duration time.Duration, err error) {
	c.record(op, duration, err != nil)
}

func (c *Collector) record(op string, duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if failed {
		m.Errors++
	}

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(name string, m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Name:        name,
		Count:       m.Count,
		Errors:      m.Errors,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Operation returns the snapshot for one operation, or nil if never recorded.
func (c *Collector) Operation(op string) *OperationSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshotOp(op, c.ops[op])
}

// Snapshot returns a point-in-time snapshot of all metrics, sorted by name.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{UptimeSeconds: time.Since(c.startTime).Seconds()}
	for name, m := range c.ops {
		if s := snapshotOp(name, m); s != nil {
			snap.Operations = append(snap.Operations, *s)
		}
	}
	slices.SortFunc(snap.Operations, func(a, b OperationSnapshot) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return snap
}
