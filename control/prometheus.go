// File: control/prometheus.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scrape-based export: a Prometheus-backed Sink and the HTTP endpoint serving it.

package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-echo/api"
)

var (
	// messageSizeBuckets spans 16 B to 1 MiB.
	messageSizeBuckets = prometheus.ExponentialBuckets(16, 4, 9)

	connectionDurationBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800, 3600}
)

// PrometheusSink records the echo metrics into Prometheus collectors.
type PrometheusSink struct {
	connections prometheus.Counter
	active      prometheus.Gauge
	received    prometheus.Counter
	sent        prometheus.Counter
	size        prometheus.Histogram
	duration    prometheus.Histogram
}

var _ api.Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates the collectors and registers them with reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: api.MetricConnectionsTotal.String(),
			Help: api.MetricConnectionsTotal.Description(),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: api.MetricActiveConnections.String(),
			Help: api.MetricActiveConnections.Description(),
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: api.MetricMessagesReceived.String(),
			Help: api.MetricMessagesReceived.Description(),
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: api.MetricMessagesSent.String(),
			Help: api.MetricMessagesSent.Description(),
		}),
		size: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    api.MetricMessageSize.String(),
			Help:    api.MetricMessageSize.Description(),
			Buckets: messageSizeBuckets,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    api.MetricConnectionDuration.String(),
			Help:    api.MetricConnectionDuration.Description(),
			Buckets: connectionDurationBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{s.connections, s.active, s.received, s.sent, s.size, s.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register prometheus collector: %w", err)
		}
	}
	return s, nil
}

func (s *PrometheusSink) Incr(m api.Metric) {
	switch m {
	case api.MetricConnectionsTotal:
		s.connections.Inc()
	case api.MetricMessagesReceived:
		s.received.Inc()
	case api.MetricMessagesSent:
		s.sent.Inc()
	}
}

func (s *PrometheusSink) Add(m api.Metric, delta int64) {
	if m == api.MetricActiveConnections {
		s.active.Add(float64(delta))
	}
}

func (s *PrometheusSink) Observe(m api.Metric, value float64) {
	switch m {
	case api.MetricMessageSize:
		s.size.Observe(value)
	case api.MetricConnectionDuration:
		s.duration.Observe(value)
	}
}

// MetricsServer serves a Prometheus gatherer on /metrics.
type MetricsServer struct {
	srv *http.Server
	log zerolog.Logger
}

// NewMetricsServer builds the scrape endpoint for g on addr.
func NewMetricsServer(addr string, g prometheus.Gatherer, log zerolog.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Run binds the endpoint and serves until ctx is cancelled.
func (m *MetricsServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", m.srv.Addr, err)
	}
	return m.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (m *MetricsServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			m.log.Warn().Err(err).Msg("metrics endpoint shutdown")
		}
	})
	defer stop()

	m.log.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")
	if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics serve: %w", err)
	}
	return nil
}
