package protocol_test

import (
	"bufio"
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-echo/protocol"
)

// RFC 6455 section 1.3 sample nonce.
const sampleKey = "dGhlIHNhbXBsZSBub25jZQ=="

func upgradeHeaders() http.Header {
	h := make(http.Header)
	h.Set("Upgrade", "websocket")
	h.Set("Connection", "keep-alive, Upgrade")
	h.Set("Sec-WebSocket-Version", "13")
	h.Set("Sec-WebSocket-Key", sampleKey)
	return h
}

func TestComputeAcceptKey(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", protocol.ComputeAcceptKey(sampleKey))
}

func TestIsUpgradeRequest(t *testing.T) {
	tests := []struct {
		name  string
		value []string
		want  bool
	}{
		{"absent", nil, false},
		{"exact", []string{"websocket"}, true},
		{"mixed case", []string{"WebSocket"}, true},
		{"padded", []string{" websocket "}, true},
		{"other protocol", []string{"h2c"}, false},
		{"empty", []string{""}, false},
		{"second value", []string{"h2c", "websocket"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(http.Header)
			for _, v := range tt.value {
				h.Add("Upgrade", v)
			}
			assert.Equal(t, tt.want, protocol.IsUpgradeRequest(h))
		})
	}
}

func TestUpgradeToWebSocket(t *testing.T) {
	resp, err := protocol.UpgradeToWebSocket(http.MethodGet, upgradeHeaders())
	require.NoError(t, err)
	assert.Equal(t, "websocket", resp.Get("Upgrade"))
	assert.Equal(t, "Upgrade", resp.Get("Connection"))
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Get("Sec-WebSocket-Accept"))
}

func TestUpgradeToWebSocketErrors(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		mutate  func(http.Header)
		wantErr error
	}{
		{"post", http.MethodPost, func(http.Header) {}, protocol.ErrBadHandshakeMethod},
		{"no connection token", http.MethodGet, func(h http.Header) { h.Set("Connection", "keep-alive") }, protocol.ErrInvalidUpgradeHeaders},
		{"wrong upgrade", http.MethodGet, func(h http.Header) { h.Set("Upgrade", "h2c") }, protocol.ErrInvalidUpgradeHeaders},
		{"old version", http.MethodGet, func(h http.Header) { h.Set("Sec-WebSocket-Version", "8") }, protocol.ErrBadWebSocketVersion},
		{"missing key", http.MethodGet, func(h http.Header) { h.Del("Sec-WebSocket-Key") }, protocol.ErrMissingWebSocketKey},
		{"short key", http.MethodGet, func(h http.Header) { h.Set("Sec-WebSocket-Key", "c2hvcnQ=") }, protocol.ErrMissingWebSocketKey},
		{"oversized headers", http.MethodGet, func(h http.Header) {
			h.Set("X-Padding", string(bytes.Repeat([]byte{'p'}, protocol.MaxHandshakeHeadersSize)))
		}, protocol.ErrHandshakeTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := upgradeHeaders()
			tt.mutate(h)
			_, err := protocol.UpgradeToWebSocket(tt.method, h)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWriteHandshakeResponse(t *testing.T) {
	hdr, err := protocol.UpgradeToWebSocket(http.MethodGet, upgradeHeaders())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, protocol.WriteHandshakeResponse(&buf, hdr))

	resp, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Header.Get("Sec-WebSocket-Accept"))
}
