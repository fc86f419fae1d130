// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server lifecycle: bind, accept loop and graceful shutdown.

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/internal/session"
)

var (
	ErrAlreadyRunning  = errors.New("server already running")
	ErrNotListening    = errors.New("server is not listening")
	ErrShutdownTimeout = errors.New("sessions still open after shutdown timeout")
)

// acceptBackoff is the pause after a non-fatal Accept error.
const acceptBackoff = 5 * time.Millisecond

// New builds a Server. A nil cfg selects DefaultConfig.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.HandshakeTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("%w: timeouts must be positive", api.ErrInvalidArgument)
	}
	if cfg.ReadLimit < 0 {
		return nil, fmt.Errorf("%w: negative read limit", api.ErrInvalidArgument)
	}

	s := &Server{
		cfg:        cfg,
		classifier: NewClassifier(cfg.Routes...),
		sink:       api.NopSink{},
		log:        zerolog.Nop(),
		sessions:   session.NewRegistry(0),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sink == nil {
		s.sink = api.NopSink{}
	}
	if s.probes == nil {
		s.probes = control.NewDebugProbes()
	}
	s.probes.RegisterProbe("server.open_sessions", func() any { return s.sessions.Len() })
	s.probes.RegisterProbe("server.sessions_by_status", func() any { return s.sessions.CountByStatus() })
	return s, nil
}

// Probes returns the registry holding the server probes.
func (s *Server) Probes() *control.DebugProbes {
	return s.probes
}

// OpenSessions returns the number of sessions currently running.
func (s *Server) OpenSessions() int {
	return s.sessions.Len()
}

// Listen binds the configured address.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrAlreadyRunning
	}
	lc := net.ListenConfig{Control: listenControl(s.cfg.ReusePort)}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled or the listener fails.
// It then stops accepting, cancels every session and waits up to
// ShutdownTimeout for their finalization.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	switch {
	case ln == nil:
		s.mu.Unlock()
		return ErrNotListening
	case s.serving:
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.serving = true
	s.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(connCtx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	var wg sync.WaitGroup
	var serveErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if connCtx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				serveErr = fmt.Errorf("accept: %w", err)
				break
			}
			s.log.Warn().Err(err).Msg("accept")
			time.Sleep(acceptBackoff)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(connCtx, conn)
		}()
	}

	cancel()
	s.log.Info().Int("open_sessions", s.sessions.Len()).Msg("shutting down")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.log.Warn().Int("open_sessions", s.sessions.Len()).Msg("shutdown timeout")
		return ErrShutdownTimeout
	}
	s.log.Info().Msg("server stopped")
	return serveErr
}
