// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, logging, metrics sinks and debug introspection for
// the echo service.
//
// Provides:
//   - Environment-driven Config with validation
//   - zerolog logger construction
//   - api.Sink implementations: in-memory Recorder, Prometheus, OpenTelemetry
//   - Exporters: Prometheus scrape endpoint, periodic log snapshots
//   - Debug probes, including platform-specific ones
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
