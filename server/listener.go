// File: server/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection dispatch: read the request, classify it, then either answer
// plainly or complete the WebSocket handshake and run a session.

package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-echo/internal/session"
	"github.com/momentics/hioload-echo/protocol"
)

// readBufferSize matches the handshake header budget so a full request fits
// without growing the reader.
const readBufferSize = protocol.MaxHandshakeHeadersSize

// maxDrainBody bounds how much of an unread request body is discarded before
// a plain response is written. net/http uses the same bound.
const maxDrainBody = 256 << 10

// lingerTimeout bounds the wait for the peer to stop sending once the write
// side of a plain connection is shut.
const lingerTimeout = 500 * time.Millisecond

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	log := s.log.With().Str("peer", conn.RemoteAddr().String()).Logger()

	// Shutdown before the handshake completes drops the connection.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))

	br := bufio.NewReaderSize(conn, readBufferSize)
	req, err := http.ReadRequest(br)
	if err != nil {
		if !errors.Is(err, io.EOF) && ctx.Err() == nil {
			log.Debug().Err(err).Msg("read request")
			_ = writePlain(conn, nil, statusResponse(http.StatusBadRequest))
		}
		stop()
		_ = conn.Close()
		return
	}

	r := &Request{Method: req.Method, Path: req.URL.Path, Header: req.Header}
	switch d := s.classifier.Classify(r).(type) {
	case PlainResponse:
		if d.Err != nil {
			log.Warn().Err(d.Err).Str("path", r.Path).Msg("static content unavailable")
		}
		if _, err := io.CopyN(io.Discard, req.Body, maxDrainBody); err != nil && !errors.Is(err, io.EOF) {
			log.Debug().Err(err).Msg("drain request body")
		}
		if err := writePlain(conn, req, d); err != nil {
			log.Debug().Err(err).Msg("write response")
		}
		log.Debug().Str("method", r.Method).Str("path", r.Path).Int("status", d.Status).Msg("plain request")
		lingerClose(conn)
		stop()
		_ = conn.Close()

	case DeferToUpgrade:
		stream, err := s.upgrade(conn, br, req, log)
		if !stop() || err != nil {
			_ = conn.Close()
			return
		}
		s.runSession(ctx, stream, log)
	}
}

// upgrade completes the handshake. A rejected handshake is answered with 400,
// or 426 for an unsupported version, and no session is created.
func (s *Server) upgrade(conn net.Conn, br *bufio.Reader, req *http.Request, log zerolog.Logger) (*protocol.Conn, error) {
	hdr, err := protocol.UpgradeToWebSocket(req.Method, req.Header)
	if err != nil {
		resp := statusResponse(http.StatusBadRequest)
		if errors.Is(err, protocol.ErrBadWebSocketVersion) {
			resp = statusResponse(http.StatusUpgradeRequired)
			resp.Header.Set(protocol.HeaderSecWebSocketVer, protocol.RequiredWebSocketVersion)
		}
		log.Warn().Err(err).Str("path", req.URL.Path).Msg("handshake rejected")
		_ = writePlain(conn, req, resp)
		return nil, err
	}
	if err := protocol.WriteHandshakeResponse(conn, hdr); err != nil {
		log.Debug().Err(err).Msg("write handshake response")
		return nil, fmt.Errorf("handshake response: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	return protocol.NewConn(conn, br,
		protocol.WithReadLimit(s.cfg.ReadLimit),
		protocol.WithPath(req.URL.Path),
	), nil
}

func (s *Server) runSession(ctx context.Context, stream *protocol.Conn, log zerolog.Logger) {
	sess := session.New(stream, s.sink,
		session.WithLogger(s.log.With().Str("path", stream.Path()).Logger()),
	)
	s.sessions.Add(sess)
	defer s.sessions.Remove(sess.ID())

	if err := sess.Run(ctx); err != nil {
		log.Debug().Err(err).Str("session_id", sess.ID()).Msg("session ended with error")
	}
}

// lingerClose shuts the write side and discards what the peer still sends
// until it closes or lingerTimeout passes. Closing a socket with unread input
// resets the connection, which can destroy the response before the peer
// reads it.
func lingerClose(conn net.Conn) {
	cw, ok := conn.(interface{ CloseWrite() error })
	if !ok || cw.CloseWrite() != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, conn)
}

func statusResponse(code int) PlainResponse {
	return PlainResponse{Status: code, Header: http.Header{}, Body: []byte(http.StatusText(code))}
}

// writePlain writes p as an HTTP/1.1 response and announces the close of
// the connection.
func writePlain(w io.Writer, req *http.Request, p PlainResponse) error {
	hdr := p.Header
	if hdr == nil {
		hdr = http.Header{}
	}
	resp := &http.Response{
		StatusCode:    p.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Request:       req,
		Header:        hdr,
		ContentLength: int64(len(p.Body)),
		Body:          io.NopCloser(bytes.NewReader(p.Body)),
		Close:         true,
	}
	return resp.Write(w)
}
