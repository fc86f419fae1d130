// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame encoding/decoding and masking logic.
//
// ReadFrame streams the payload instead of allocating the advertised length up
// front, so an unbounded read limit cannot be turned into a single huge
// allocation by a forged length field.

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame-level protocol violations. All of them wrap ErrProtocol.
var (
	ErrProtocol          = errors.New("websocket protocol error")
	ErrReservedBits      = fmt.Errorf("%w: reserved bits set", ErrProtocol)
	ErrBadOpcode         = fmt.Errorf("%w: unknown opcode", ErrProtocol)
	ErrControlTooLong    = fmt.Errorf("%w: control frame payload exceeds 125 bytes", ErrProtocol)
	ErrControlFragmented = fmt.Errorf("%w: fragmented control frame", ErrProtocol)
	ErrBadLength         = fmt.Errorf("%w: invalid payload length", ErrProtocol)

	// ErrFrameTooLarge is returned when a frame exceeds the caller's limit.
	ErrFrameTooLarge = errors.New("frame payload exceeds read limit")
)

// initialPayloadGrow bounds the first allocation for a frame payload.
const initialPayloadGrow = 64 << 10

// Frame represents a decoded WebSocket frame.
type Frame struct {
	Fin     bool    // FIN bit
	Opcode  byte    // Operation code
	Masked  bool    // Whether the frame was masked on the wire
	MaskKey [4]byte // Key the payload was masked with
	Payload []byte  // Unmasked payload
}

// ReadFrame parses one frame from r and unmasks its payload.
// maxPayload <= 0 disables the length limit.
// A clean end of stream before the first header byte yields io.EOF.
func ReadFrame(r io.Reader, maxPayload int64) (*Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	f := &Frame{
		Fin:    hdr[0]&FinBit != 0,
		Opcode: hdr[0] & 0x0F,
		Masked: hdr[1]&MaskBit != 0,
	}
	if hdr[0]&RsvBits != 0 {
		return nil, ErrReservedBits
	}
	switch f.Opcode {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
	default:
		return nil, ErrBadOpcode
	}

	length := int64(hdr[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, unexpected(err)
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, unexpected(err)
		}
		v := binary.BigEndian.Uint64(ext[:])
		if v>>63 != 0 {
			return nil, ErrBadLength
		}
		length = int64(v)
	}

	if isControl(f.Opcode) {
		if length > MaxControlPayloadLen {
			return nil, ErrControlTooLong
		}
		if !f.Fin {
			return nil, ErrControlFragmented
		}
	}
	if maxPayload > 0 && length > maxPayload {
		return nil, ErrFrameTooLarge
	}

	if f.Masked {
		if _, err := io.ReadFull(r, f.MaskKey[:]); err != nil {
			return nil, unexpected(err)
		}
	}

	var buf bytes.Buffer
	buf.Grow(int(min(length, initialPayloadGrow)))
	if _, err := io.CopyN(&buf, r, length); err != nil {
		return nil, unexpected(err)
	}
	f.Payload = buf.Bytes()
	if f.Payload == nil {
		f.Payload = []byte{}
	}
	if f.Masked {
		maskBytes(f.Payload, f.MaskKey)
	}
	return f, nil
}

// WriteFrame serializes a single frame to w. A non-nil maskKey masks the
// payload on the wire without modifying the caller's slice.
func WriteFrame(w io.Writer, fin bool, opcode byte, payload []byte, maskKey *[4]byte) error {
	var hdr [MaxFrameHeaderLen]byte
	hdr[0] = opcode & 0x0F
	if fin {
		hdr[0] |= FinBit
	}

	var maskBit byte
	if maskKey != nil {
		maskBit = MaskBit
	}

	n := 2
	plen := len(payload)
	switch {
	case plen <= 125:
		hdr[1] = byte(plen) | maskBit
	case plen <= 0xFFFF:
		hdr[1] = 126 | maskBit
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
		n += 2
	default:
		hdr[1] = 127 | maskBit
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
		n += 8
	}

	if maskKey != nil {
		copy(hdr[n:], maskKey[:])
		n += 4
		masked := make([]byte, plen)
		copy(masked, payload)
		maskBytes(masked, *maskKey)
		payload = masked
	}

	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// maskBytes applies XOR on buf using key; masking and unmasking are the same operation.
func maskBytes(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
