// File: api/metrics.go
// Package api defines the metrics Sink contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Metric identifies one of the instruments the echo core writes to.
type Metric int

const (
	MetricConnectionsTotal Metric = iota
	MetricActiveConnections
	MetricMessagesReceived
	MetricMessagesSent
	MetricMessageSize
	MetricConnectionDuration
)

// Metrics lists every instrument in declaration order.
var Metrics = []Metric{
	MetricConnectionsTotal,
	MetricActiveConnections,
	MetricMessagesReceived,
	MetricMessagesSent,
	MetricMessageSize,
	MetricConnectionDuration,
}

// MetricKind is the instrument shape behind a Metric.
type MetricKind int

const (
	KindCounter MetricKind = iota
	KindUpDownCounter
	KindHistogram
)

type metricInfo struct {
	name        string
	kind        MetricKind
	unit        string
	description string
}

var metricTable = [...]metricInfo{
	MetricConnectionsTotal:   {"websocket_connections_total", KindCounter, "", "Total number of websocket connections started"},
	MetricActiveConnections:  {"websocket_active_connections", KindUpDownCounter, "", "Number of active websocket connections"},
	MetricMessagesReceived:   {"websocket_messages_received_total", KindCounter, "", "Total number of messages received"},
	MetricMessagesSent:       {"websocket_messages_sent_total", KindCounter, "", "Total number of messages sent"},
	MetricMessageSize:        {"websocket_message_size_bytes", KindHistogram, "By", "Histogram of message sizes in bytes"},
	MetricConnectionDuration: {"websocket_connection_duration_seconds", KindHistogram, "s", "Connection duration in seconds"},
}

func (m Metric) info() metricInfo {
	if m < 0 || int(m) >= len(metricTable) {
		return metricInfo{name: "unknown", kind: -1}
	}
	return metricTable[m]
}

// String returns the exported instrument name.
func (m Metric) String() string { return m.info().name }

// Kind returns the instrument shape.
func (m Metric) Kind() MetricKind { return m.info().kind }

// Unit returns the UCUM unit of a histogram, or "" for counters.
func (m Metric) Unit() string { return m.info().unit }

// Description returns the instrument help text.
func (m Metric) Description() string { return m.info().description }

// Sink receives metric writes from the echo core. Every method is
// fire-and-forget and must be safe for concurrent use. A write whose Metric
// does not match the method's instrument kind is dropped.
type Sink interface {
	// Incr adds one to a counter.
	Incr(m Metric)
	// Add applies delta to an up/down counter.
	Add(m Metric, delta int64)
	// Observe records value into a histogram.
	Observe(m Metric, value float64)
}

// NopSink discards every write.
type NopSink struct{}

func (NopSink) Incr(Metric)             {}
func (NopSink) Add(Metric, int64)       {}
func (NopSink) Observe(Metric, float64) {}
