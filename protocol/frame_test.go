package protocol_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-echo/protocol"
)

var testMask = [4]byte{0x12, 0x34, 0x56, 0x78}

func TestEncodeDecodeFrame(t *testing.T) {
	for _, size := range []int{0, 5, 125, 126, 0xFFFF, 0x10000} {
		payload := bytes.Repeat([]byte{'a'}, size)
		for _, masked := range []bool{false, true} {
			var buf bytes.Buffer
			var key *[4]byte
			if masked {
				key = &testMask
			}
			require.NoError(t, protocol.WriteFrame(&buf, true, protocol.OpcodeBinary, payload, key))

			got, err := protocol.ReadFrame(&buf, 0)
			require.NoError(t, err, "size=%d masked=%v", size, masked)
			assert.True(t, got.Fin)
			assert.Equal(t, byte(protocol.OpcodeBinary), got.Opcode)
			assert.Equal(t, masked, got.Masked)
			assert.Equal(t, payload, got.Payload)
			assert.Zero(t, buf.Len(), "frame not fully consumed")
		}
	}
}

func TestWriteFrameKeepsCallerPayload(t *testing.T) {
	payload := []byte("hello")
	var buf bytes.Buffer
	require.NoError(t, protocol.WriteFrame(&buf, true, protocol.OpcodeText, payload, &testMask))
	assert.Equal(t, "hello", string(payload))
	assert.NotContains(t, buf.String(), "hello")
}

func TestReadFrameHeaderLengths(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, protocol.WriteFrame(&buf, true, protocol.OpcodeText, make([]byte, 126), nil))
	raw := buf.Bytes()
	assert.Equal(t, byte(126), raw[1])
	assert.Equal(t, []byte{0x00, 0x7E}, raw[2:4])

	buf.Reset()
	require.NoError(t, protocol.WriteFrame(&buf, false, protocol.OpcodeContinuation, make([]byte, 0x10000), nil))
	raw = buf.Bytes()
	assert.Equal(t, byte(0x00), raw[0], "FIN clear, continuation opcode")
	assert.Equal(t, byte(127), raw[1])
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		limit   int64
		wantErr error
	}{
		{"empty stream", nil, 0, io.EOF},
		{"truncated header", []byte{0x81}, 0, io.ErrUnexpectedEOF},
		{"truncated payload", []byte{0x81, 0x05, 'h', 'e'}, 0, io.ErrUnexpectedEOF},
		{"reserved bits", []byte{0x81 | 0x40, 0x00}, 0, protocol.ErrReservedBits},
		{"unknown opcode", []byte{0x83, 0x00}, 0, protocol.ErrBadOpcode},
		{"long control frame", []byte{0x89, 126, 0x00, 0x7E}, 0, protocol.ErrControlTooLong},
		{"fragmented control frame", []byte{0x09, 0x00}, 0, protocol.ErrControlFragmented},
		{"negative 64-bit length", []byte{0x82, 127, 0x80, 0, 0, 0, 0, 0, 0, 0}, 0, protocol.ErrBadLength},
		{"over limit", []byte{0x82, 0x05, 1, 2, 3, 4, 5}, 4, protocol.ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.ReadFrame(bytes.NewReader(tt.raw), tt.limit)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProtocolErrorsWrapSentinel(t *testing.T) {
	for _, err := range []error{
		protocol.ErrReservedBits,
		protocol.ErrBadOpcode,
		protocol.ErrControlTooLong,
		protocol.ErrControlFragmented,
		protocol.ErrBadLength,
	} {
		assert.ErrorIs(t, err, protocol.ErrProtocol)
	}
	assert.NotErrorIs(t, protocol.ErrFrameTooLarge, protocol.ErrProtocol)
}

func TestFormatCloseMessage(t *testing.T) {
	assert.Empty(t, protocol.FormatCloseMessage(protocol.CloseNoStatusRcvd, "ignored"))
	assert.Equal(t, []byte{0x03, 0xE8, 'b', 'y', 'e'}, protocol.FormatCloseMessage(protocol.CloseNormalClosure, "bye"))

	long := protocol.FormatCloseMessage(protocol.CloseGoingAway, string(bytes.Repeat([]byte{'x'}, 300)))
	assert.Len(t, long, protocol.MaxControlPayloadLen)
}
