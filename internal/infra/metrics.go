package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsProcessed   atomic.Uint64
	legsSettled       atomic.Uint64
	consistencyFaults atomic.Uint64
	sequenceGaps      atomic.Uint64
	malformedMessages atomic.Uint64
	resyncs           atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records an event processing with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordLegSettled records one trade leg applied to a ledger.
func (m *Metrics) RecordLegSettled() {
	m.legsSettled.Add(1)
}

// RecordConsistencyFault records a detected desync with the market.
func (m *Metrics) RecordConsistencyFault() {
	m.consistencyFaults.Add(1)
}

// RecordSequenceGap records an out-of-order or duplicated event.
func (m *Metrics) RecordSequenceGap() {
	m.sequenceGaps.Add(1)
}

// RecordMalformed records a feed message rejected at the boundary.
func (m *Metrics) RecordMalformed() {
	m.malformedMessages.Add(1)
}

// RecordResync records a full snapshot being applied.
func (m *Metrics) RecordResync() {
	m.resyncs.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64
	LegsSettled       uint64
	ConsistencyFaults uint64
	SequenceGaps      uint64
	MalformedMessages uint64
	Resyncs           uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		LegsSettled:       m.legsSettled.Load(),
		ConsistencyFaults: m.consistencyFaults.Load(),
		SequenceGaps:      m.sequenceGaps.Load(),
		MalformedMessages: m.malformedMessages.Load(),
		Resyncs:           m.resyncs.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.legsSettled.Store(0)
	m.consistencyFaults.Store(0)
	m.sequenceGaps.Store(0)
	m.malformedMessages.Store(0)
	m.resyncs.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}
