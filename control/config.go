// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Process configuration sourced from the environment.

package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Metrics exporter names accepted by WSECHO_METRICS_EXPORTER.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTel       = "otel"
	ExporterLog        = "log"
	ExporterNone       = "none"
)

// Environment keys.
const (
	EnvPort             = "PORT"
	EnvLogLevel         = "WSECHO_LOG_LEVEL"
	EnvLogFormat        = "WSECHO_LOG_FORMAT"
	EnvMetricsExporter  = "WSECHO_METRICS_EXPORTER"
	EnvMetricsAddr      = "WSECHO_METRICS_ADDR"
	EnvExportInterval   = "WSECHO_EXPORT_INTERVAL"
	EnvStaticRoot       = "WSECHO_STATIC_ROOT"
	EnvHandshakeTimeout = "WSECHO_HANDSHAKE_TIMEOUT"
	EnvShutdownTimeout  = "WSECHO_SHUTDOWN_TIMEOUT"
	EnvReadLimit        = "WSECHO_READ_LIMIT"
	EnvReusePort        = "WSECHO_REUSE_PORT"
)

// ErrInvalidConfig wraps every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the process-level settings of the echo service.
type Config struct {
	Port             int           // TCP port bound on all interfaces
	LogLevel         string        // zerolog level name
	LogFormat        string        // "json" or "console"
	MetricsExporter  string        // prometheus | otel | log | none
	MetricsAddr      string        // scrape endpoint for the prometheus exporter
	ExportInterval   time.Duration // push interval for the otel and log exporters
	StaticRoot       string        // directory holding index.html; empty disables static serving
	HandshakeTimeout time.Duration // deadline for reading the request and completing the upgrade
	ShutdownTimeout  time.Duration // how long shutdown waits for sessions to finalize
	ReadLimit        int64         // maximum message size in bytes, 0 = unlimited
	ReusePort        bool          // set SO_REUSEPORT on the listening socket
}

// DefaultConfig returns the settings used when no environment is set.
func DefaultConfig() *Config {
	return &Config{
		Port:             8080,
		LogLevel:         "info",
		LogFormat:        "json",
		MetricsExporter:  ExporterPrometheus,
		MetricsAddr:      ":9090",
		ExportInterval:   60 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// LoadConfig overlays the variables visible through getenv on DefaultConfig
// and validates the result. os.Getenv is the usual argument.
func LoadConfig(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	var errs []error

	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvPort, err))
		}
		cfg.Port = port
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := getenv(EnvMetricsExporter); v != "" {
		cfg.MetricsExporter = strings.ToLower(v)
	}
	if v := getenv(EnvMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
	if v := getenv(EnvStaticRoot); v != "" {
		cfg.StaticRoot = v
	}
	parseDuration(getenv, EnvExportInterval, &cfg.ExportInterval, &errs)
	parseDuration(getenv, EnvHandshakeTimeout, &cfg.HandshakeTimeout, &errs)
	parseDuration(getenv, EnvShutdownTimeout, &cfg.ShutdownTimeout, &errs)

	if v := getenv(EnvReadLimit); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvReadLimit, err))
		}
		cfg.ReadLimit = n
	}
	if v := getenv(EnvReusePort); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvReusePort, err))
		}
		cfg.ReusePort = b
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDuration(getenv func(string) string, key string, dst *time.Duration, errs *[]error) {
	v := getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	switch c.MetricsExporter {
	case ExporterPrometheus, ExporterOTel, ExporterLog, ExporterNone:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q", c.MetricsExporter))
	}
	if c.MetricsExporter == ExporterPrometheus && c.MetricsAddr == "" {
		errs = append(errs, errors.New("prometheus exporter needs a metrics address"))
	}
	if (c.MetricsExporter == ExporterOTel || c.MetricsExporter == ExporterLog) && c.ExportInterval <= 0 {
		errs = append(errs, errors.New("export interval must be positive"))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("handshake timeout must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if c.ReadLimit < 0 {
		errs = append(errs, errors.New("read limit must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ListenAddr is the all-interfaces address for Port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
