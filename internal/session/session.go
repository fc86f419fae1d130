// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Echo session lifecycle: Starting -> Active -> Draining -> Closed.

package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/protocol"
)

// ErrSessionStarted is returned by a second call to Run.
var ErrSessionStarted = errors.New("session: already started")

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the parent logger; the session adds its own id and peer.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithClock replaces time.Now for start and duration measurement.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session owns one upgraded stream. It echoes every inbound message back to
// the peer and writes the connection metrics to its Sink. A Session is
// driven by exactly one goroutine through Run.
type Session struct {
	id      string
	peer    string
	stream  api.MessageStream
	sink    api.Sink
	log     zerolog.Logger
	now     func() time.Time
	started atomic.Bool
	status  atomic.Int32
	start   time.Time
}

// New wraps stream in a Session in the Starting state. A nil sink discards
// metrics.
func New(stream api.MessageStream, sink api.Sink, opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		stream: stream,
		sink:   sink,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	if s.sink == nil {
		s.sink = api.NopSink{}
	}
	if addr := stream.RemoteAddr(); addr != nil {
		s.peer = addr.String()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session_id", s.id).Str("peer", s.peer).Logger()
	return s
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Peer returns the remote address as reported by the transport.
func (s *Session) Peer() string { return s.peer }

// Status returns the current lifecycle state.
func (s *Session) Status() api.SessionStatus {
	return api.SessionStatus(s.status.Load())
}

// Run drives the session until the peer goes away, the transport fails or
// ctx is cancelled. Finalization happens exactly once on every path: the
// duration is observed, active_connections is decremented and the stream
// is closed.
//
// Run returns nil for a normal close or a shutdown, otherwise the error
// that ended the relay loop.
func (s *Session) Run(ctx context.Context) (err error) {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}

	s.start = s.now()
	s.sink.Incr(api.MetricConnectionsTotal)
	s.sink.Add(api.MetricActiveConnections, 1)
	s.log.Debug().Msg("connection opened")

	defer s.finalize()

	// Cancellation unblocks a pending read by closing the stream.
	stop := context.AfterFunc(ctx, func() { _ = s.stream.Close() })
	defer stop()

	s.status.Store(int32(api.SessionActive))
	err = s.relay()
	if ctx.Err() != nil || protocol.IsNormalClose(err) {
		return nil
	}
	return err
}

func (s *Session) relay() error {
	for {
		msg, err := s.stream.ReadMessage()
		if err != nil {
			return err
		}
		s.sink.Incr(api.MetricMessagesReceived)

		if size, err := msg.Size(); err != nil {
			s.log.Debug().Err(err).Stringer("type", msg.Type).Msg("message size unavailable")
		} else {
			s.sink.Observe(api.MetricMessageSize, float64(size))
		}

		if err := s.stream.WriteMessage(msg); err != nil {
			return err
		}
		s.sink.Incr(api.MetricMessagesSent)
		s.log.Debug().Stringer("type", msg.Type).Int("bytes", len(msg.Payload)).Msg("message echoed")
	}
}

func (s *Session) finalize() {
	s.status.Store(int32(api.SessionDraining))

	elapsed := s.now().Sub(s.start)
	if elapsed < 0 {
		elapsed = 0
	}
	s.sink.Observe(api.MetricConnectionDuration, elapsed.Seconds())
	s.sink.Add(api.MetricActiveConnections, -1)

	if err := s.stream.Close(); err != nil && !errors.Is(err, api.ErrTransportClosed) {
		s.log.Debug().Err(err).Msg("close stream")
	}
	s.status.Store(int32(api.SessionClosed))
	s.log.Debug().Dur("duration", elapsed).Msg("connection closed")
}
