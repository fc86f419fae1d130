// File: control/otel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Push-based export through the OpenTelemetry metrics API.

package control

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/momentics/hioload-echo/api"
)

// MeterName is the instrumentation scope of the echo instruments.
const MeterName = "websocket.echo.server"

// OTelSink records the echo metrics into OpenTelemetry instruments.
type OTelSink struct {
	connections metric.Int64Counter
	active      metric.Int64UpDownCounter
	received    metric.Int64Counter
	sent        metric.Int64Counter
	size        metric.Int64Histogram
	duration    metric.Float64Histogram
}

var _ api.Sink = (*OTelSink)(nil)

// NewOTelSink creates the instruments on a meter obtained from provider.
func NewOTelSink(provider metric.MeterProvider) (*OTelSink, error) {
	meter := provider.Meter(MeterName)
	s := &OTelSink{}
	var err error

	if s.connections, err = meter.Int64Counter(api.MetricConnectionsTotal.String(),
		metric.WithDescription(api.MetricConnectionsTotal.Description())); err != nil {
		return nil, instrumentErr(api.MetricConnectionsTotal, err)
	}
	if s.active, err = meter.Int64UpDownCounter(api.MetricActiveConnections.String(),
		metric.WithDescription(api.MetricActiveConnections.Description())); err != nil {
		return nil, instrumentErr(api.MetricActiveConnections, err)
	}
	if s.received, err = meter.Int64Counter(api.MetricMessagesReceived.String(),
		metric.WithDescription(api.MetricMessagesReceived.Description())); err != nil {
		return nil, instrumentErr(api.MetricMessagesReceived, err)
	}
	if s.sent, err = meter.Int64Counter(api.MetricMessagesSent.String(),
		metric.WithDescription(api.MetricMessagesSent.Description())); err != nil {
		return nil, instrumentErr(api.MetricMessagesSent, err)
	}
	if s.size, err = meter.Int64Histogram(api.MetricMessageSize.String(),
		metric.WithUnit(api.MetricMessageSize.Unit()),
		metric.WithDescription(api.MetricMessageSize.Description())); err != nil {
		return nil, instrumentErr(api.MetricMessageSize, err)
	}
	if s.duration, err = meter.Float64Histogram(api.MetricConnectionDuration.String(),
		metric.WithUnit(api.MetricConnectionDuration.Unit()),
		metric.WithDescription(api.MetricConnectionDuration.Description())); err != nil {
		return nil, instrumentErr(api.MetricConnectionDuration, err)
	}
	return s, nil
}

func instrumentErr(m api.Metric, err error) error {
	return fmt.Errorf("create instrument %s: %w", m, err)
}

func (s *OTelSink) Incr(m api.Metric) {
	ctx := context.Background()
	switch m {
	case api.MetricConnectionsTotal:
		s.connections.Add(ctx, 1)
	case api.MetricMessagesReceived:
		s.received.Add(ctx, 1)
	case api.MetricMessagesSent:
		s.sent.Add(ctx, 1)
	}
}

func (s *OTelSink) Add(m api.Metric, delta int64) {
	if m == api.MetricActiveConnections {
		s.active.Add(context.Background(), delta)
	}
}

func (s *OTelSink) Observe(m api.Metric, value float64) {
	ctx := context.Background()
	switch m {
	case api.MetricMessageSize:
		s.size.Record(ctx, int64(value))
	case api.MetricConnectionDuration:
		s.duration.Record(ctx, value)
	}
}

// NewStdoutMeterProvider returns a meter provider that pushes every interval
// to w through the stdout exporter. The caller owns Shutdown, which flushes
// the final collection.
func NewStdoutMeterProvider(w io.Writer, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("stdout metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}
