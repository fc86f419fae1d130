// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn is the server end of an upgraded connection. It reassembles fragmented
// messages, answers pings, completes the close handshake and writes every
// outbound message as a single unmasked frame.

package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/momentics/hioload-echo/api"
)

// closeGrace bounds how long Close waits to deliver its close frame.
const closeGrace = time.Second

// ErrMessageTooBig is returned by ReadMessage when a message exceeds the read limit.
var ErrMessageTooBig = errors.New("websocket: message exceeds read limit")

// ErrCloseSent is returned by WriteMessage after a close frame went out.
var ErrCloseSent = errors.New("websocket: close frame already sent")

// CloseError reports a close frame received from the peer.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	s := "websocket: close " + strconv.Itoa(e.Code)
	switch e.Code {
	case CloseNormalClosure:
		s += " (normal)"
	case CloseGoingAway:
		s += " (going away)"
	case CloseNoStatusRcvd:
		s += " (no status)"
	case CloseProtocolError:
		s += " (protocol error)"
	case CloseMessageTooBig:
		s += " (message too big)"
	}
	if e.Text != "" {
		s += ": " + e.Text
	}
	return s
}

// IsNormalClose reports whether err ends a connection the way a well-behaved
// peer would: a normal, going-away or status-less close frame, or a plain EOF.
func IsNormalClose(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var ce *CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case CloseNormalClosure, CloseGoingAway, CloseNoStatusRcvd:
			return true
		}
	}
	return false
}

// ConnOption customizes a Conn.
type ConnOption func(*Conn)

// WithReadLimit caps the size of a reassembled message. Zero means no limit.
func WithReadLimit(limit int64) ConnOption {
	return func(c *Conn) {
		c.readLimit = limit
	}
}

// WithPath records the request path the connection was upgraded on.
func WithPath(path string) ConnOption {
	return func(c *Conn) {
		c.path = path
	}
}

// Conn encapsulates a full-duplex server-side WebSocket connection.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
	path string

	readLimit int64

	writeMu   sync.Mutex
	bw        *bufio.Writer
	closeSent bool

	closed atomic.Bool
}

var _ api.MessageStream = (*Conn)(nil)

// NewConn wraps an upgraded net.Conn. br must be the reader the handshake
// request was parsed from so that bytes buffered past the request are kept;
// nil creates a fresh reader.
func NewConn(conn net.Conn, br *bufio.Reader, opts ...ConnOption) *Conn {
	if br == nil {
		br = bufio.NewReader(conn)
	}
	c := &Conn{
		conn: conn,
		br:   br,
		bw:   bufio.NewWriter(conn),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Path returns the request path the connection was upgraded on.
func (c *Conn) Path() string {
	return c.path
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ReadMessage blocks until the next complete text or binary message arrives.
// Control frames received in between are handled inline. A close frame from
// the peer is answered and reported as *CloseError.
func (c *Conn) ReadMessage() (api.Message, error) {
	var (
		msg       api.Message
		inMessage bool
	)
	for {
		// Control frames may interleave with fragments, so the frame limit
		// never drops below their maximum; data totals are checked below.
		limit := int64(0)
		if c.readLimit > 0 {
			limit = max(c.readLimit-int64(len(msg.Payload)), MaxControlPayloadLen)
		}
		f, err := ReadFrame(c.br, limit)
		switch {
		case errors.Is(err, ErrFrameTooLarge):
			return api.Message{}, c.fail(CloseMessageTooBig, "message too big", ErrMessageTooBig)
		case errors.Is(err, ErrProtocol):
			return api.Message{}, c.fail(CloseProtocolError, "", err)
		case err != nil:
			return api.Message{}, c.readError(err)
		}

		if !f.Masked {
			return api.Message{}, c.fail(CloseProtocolError, "", fmt.Errorf("%w: unmasked client frame", ErrProtocol))
		}

		if isControl(f.Opcode) {
			if err := c.handleControl(f); err != nil {
				return api.Message{}, err
			}
			continue
		}

		if c.readLimit > 0 && int64(len(msg.Payload)+len(f.Payload)) > c.readLimit {
			return api.Message{}, c.fail(CloseMessageTooBig, "message too big", ErrMessageTooBig)
		}

		switch f.Opcode {
		case OpcodeText, OpcodeBinary:
			if inMessage {
				return api.Message{}, c.fail(CloseProtocolError, "", fmt.Errorf("%w: data frame before FIN", ErrProtocol))
			}
			inMessage = true
			msg.Type = api.MessageType(f.Opcode)
			msg.Payload = f.Payload
		case OpcodeContinuation:
			if !inMessage {
				return api.Message{}, c.fail(CloseProtocolError, "", fmt.Errorf("%w: continuation without start", ErrProtocol))
			}
			msg.Payload = append(msg.Payload, f.Payload...)
		}

		if f.Fin {
			return msg, nil
		}
	}
}

// WriteMessage sends m as a single frame with the same framing type.
func (c *Conn) WriteMessage(m api.Message) error {
	var opcode byte
	switch m.Type {
	case api.TextMessage:
		opcode = OpcodeText
	case api.BinaryMessage:
		opcode = OpcodeBinary
	default:
		return fmt.Errorf("write message type %d: %w", m.Type, api.ErrInvalidArgument)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closeSent {
		return ErrCloseSent
	}
	if err := WriteFrame(c.bw, true, opcode, m.Payload, nil); err != nil {
		return err
	}
	return c.bw.Flush()
}

// Close sends a going-away close frame unless one was already exchanged and
// closes the transport. It is safe to call concurrently with ReadMessage and
// WriteMessage; a blocked writer is released after a short grace period.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(closeGrace))
	_ = c.writeClose(CloseGoingAway, "")
	return c.conn.Close()
}

func (c *Conn) handleControl(f *Frame) error {
	switch f.Opcode {
	case OpcodePing:
		return c.writeControl(OpcodePong, f.Payload)
	case OpcodePong:
		return nil
	}

	// OpcodeClose
	code, text := CloseNoStatusRcvd, ""
	switch {
	case len(f.Payload) == 1:
		return c.fail(CloseProtocolError, "", fmt.Errorf("%w: truncated close payload", ErrProtocol))
	case len(f.Payload) >= 2:
		code = int(f.Payload[0])<<8 | int(f.Payload[1])
		text = string(f.Payload[2:])
		if !validReceivedCloseCode(code) {
			return c.fail(CloseProtocolError, "", fmt.Errorf("%w: invalid close code %d", ErrProtocol, code))
		}
		if !utf8.ValidString(text) {
			return c.fail(CloseInvalidPayloadData, "", fmt.Errorf("%w: invalid close reason", ErrProtocol))
		}
	}
	if code == CloseNoStatusRcvd {
		_ = c.writeClosePayload(nil)
	} else {
		_ = c.writeClose(code, "")
	}
	return &CloseError{Code: code, Text: text}
}

// fail sends a close frame with code and returns err.
func (c *Conn) fail(code int, text string, err error) error {
	_ = c.writeClose(code, text)
	return err
}

func (c *Conn) readError(err error) error {
	if c.closed.Load() {
		return fmt.Errorf("read: %w", api.ErrTransportClosed)
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return fmt.Errorf("read frame: %w", err)
}

func (c *Conn) writeControl(opcode byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closeSent {
		return ErrCloseSent
	}
	if err := WriteFrame(c.bw, true, opcode, payload, nil); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Conn) writeClose(code int, text string) error {
	return c.writeClosePayload(FormatCloseMessage(code, text))
}

func (c *Conn) writeClosePayload(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closeSent {
		return nil
	}
	c.closeSent = true
	if err := WriteFrame(c.bw, true, OpcodeClose, payload, nil); err != nil {
		return err
	}
	return c.bw.Flush()
}

// FormatCloseMessage builds a close frame payload. The reason is truncated to
// fit the control frame limit.
func FormatCloseMessage(code int, text string) []byte {
	if code == CloseNoStatusRcvd {
		return []byte{}
	}
	if len(text) > MaxControlPayloadLen-2 {
		text = text[:MaxControlPayloadLen-2]
	}
	buf := make([]byte, 2+len(text))
	buf[0] = byte(code >> 8)
	buf[1] = byte(code)
	copy(buf[2:], text)
	return buf
}
