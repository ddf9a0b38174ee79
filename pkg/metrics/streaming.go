package metrics

import (
	"sync"
	"time"
)

// StreamMetrics tracks per-client counters for task stream subscriptions.
type StreamMetrics struct {
	mu sync.RWMutex

	// Connection metrics
	TotalConnections   int64
	FailedConnections  int64
	ConnectTime        time.Duration
	TransportErrors    int64

	// Event metrics
	TotalEvents     int64
	IgnoredEvents   int64
	MalformedEvents int64
	ProcessingTime  time.Duration
}

// NewStreamMetrics creates an empty StreamMetrics instance.
func NewStreamMetrics() *StreamMetrics {
	return &StreamMetrics{}
}

// RecordConnection records a connection attempt and its duration.
func (m *StreamMetrics) RecordConnection(success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections++
	if !success {
		m.FailedConnections++
	}
	m.ConnectTime += duration
}

// RecordTransportError records a stream that dropped before a terminal event.
func (m *StreamMetrics) RecordTransportError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransportErrors++
}

// RecordEvent records a delivered event and the time spent handling it.
// ignored marks events that were skipped (unknown name, stale task id).
func (m *StreamMetrics) RecordEvent(ignored bool, processingTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalEvents++
	if ignored {
		m.IgnoredEvents++
	}
	m.ProcessingTime += processingTime
}

// RecordMalformedEvent records an event body that failed to decode.
func (m *StreamMetrics) RecordMalformedEvent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MalformedEvents++
}

// Snapshot returns the current counters as a map, for logging or display.
func (m *StreamMetrics) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[string]any{
		"total_connections":  m.TotalConnections,
		"failed_connections": m.FailedConnections,
		"transport_errors":   m.TransportErrors,
		"total_events":       m.TotalEvents,
		"ignored_events":     m.IgnoredEvents,
		"malformed_events":   m.MalformedEvents,
		"connect_time":       m.ConnectTime.Seconds(),
	}
	if m.TotalEvents > 0 {
		out["avg_processing_time"] = m.ProcessingTime.Seconds() / float64(m.TotalEvents)
	}
	return out
}

// Reset clears all counters.
func (m *StreamMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections = 0
	m.FailedConnections = 0
	m.ConnectTime = 0
	m.TransportErrors = 0
	m.TotalEvents = 0
	m.IgnoredEvents = 0
	m.MalformedEvents = 0
	m.ProcessingTime = 0
}
