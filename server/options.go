// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the server logger. Sessions derive theirs from it.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithSink sets the metrics Sink handed to every session.
func WithSink(sink api.Sink) Option {
	return func(s *Server) {
		s.sink = sink
	}
}

// WithProbes registers the server probes on dp instead of a private registry.
func WithProbes(dp *control.DebugProbes) Option {
	return func(s *Server) {
		s.probes = dp
	}
}
