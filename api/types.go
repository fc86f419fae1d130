// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

import (
	"net"
	"unicode/utf8"
)

// SessionStatus enumerates the lifecycle state of a WebSocket session.
type SessionStatus int32

const (
	SessionStarting SessionStatus = iota
	SessionActive
	SessionDraining
	SessionClosed
)

func (s SessionStatus) String() string {
	switch s {
	case SessionStarting:
		return "starting"
	case SessionActive:
		return "active"
	case SessionDraining:
		return "draining"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MessageType is the data framing of a message, numerically equal to the
// RFC 6455 opcode that carries it.
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one complete, reassembled data message.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Size reports the byte length of the message payload.
// Text payloads must be valid UTF-8; other types than text and binary have no size.
func (m Message) Size() (int, error) {
	switch m.Type {
	case BinaryMessage:
		return len(m.Payload), nil
	case TextMessage:
		if !utf8.Valid(m.Payload) {
			return 0, ErrMalformedText
		}
		return len(m.Payload), nil
	default:
		return 0, ErrUnsizedMessage
	}
}

// MessageStream is a bidirectional, message-oriented connection.
// ReadMessage and WriteMessage are called from a single goroutine;
// Close may be called concurrently with both.
type MessageStream interface {
	ReadMessage() (Message, error)
	WriteMessage(Message) error
	RemoteAddr() net.Addr
	Close() error
}
