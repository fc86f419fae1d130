// File: control/prometheus_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-echo/api"
)

func TestPrometheusSinkCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	s.Incr(api.MetricConnectionsTotal)
	s.Incr(api.MetricMessagesReceived)
	s.Incr(api.MetricMessagesReceived)
	s.Incr(api.MetricMessagesSent)
	s.Add(api.MetricActiveConnections, 2)
	s.Add(api.MetricActiveConnections, -1)

	// Writes to the wrong instrument kind are dropped.
	s.Incr(api.MetricActiveConnections)
	s.Add(api.MetricMessagesSent, 10)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.received))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.sent))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.active))
}

func TestPrometheusSinkMessageSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	s.Observe(api.MetricMessageSize, 5)
	s.Observe(api.MetricMessageSize, 100)

	expected := `
# HELP websocket_message_size_bytes Histogram of message sizes in bytes
# TYPE websocket_message_size_bytes histogram
websocket_message_size_bytes_bucket{le="16"} 1
websocket_message_size_bytes_bucket{le="64"} 1
websocket_message_size_bytes_bucket{le="256"} 2
websocket_message_size_bytes_bucket{le="1024"} 2
websocket_message_size_bytes_bucket{le="4096"} 2
websocket_message_size_bytes_bucket{le="16384"} 2
websocket_message_size_bytes_bucket{le="65536"} 2
websocket_message_size_bytes_bucket{le="262144"} 2
websocket_message_size_bytes_bucket{le="1.048576e+06"} 2
websocket_message_size_bytes_bucket{le="+Inf"} 2
websocket_message_size_bytes_sum 105
websocket_message_size_bytes_count 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "websocket_message_size_bytes"))
}

func TestPrometheusSinkRegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, len(api.Metrics), n)

	_, err = NewPrometheusSink(reg)
	assert.Error(t, err, "duplicate registration must fail")
}

func TestMetricsServerServesAndStops(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	s.Incr(api.MetricConnectionsTotal)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewMetricsServer(ln.Addr().String(), reg, zerolog.Nop()).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "websocket_connections_total 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
