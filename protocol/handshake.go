// File: protocol/handshake.go
// Package protocol implements the server side of the RFC 6455 opening handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The handshake is split in two steps so a caller can decide what to do with a
// request before committing to the upgrade: IsUpgradeRequest only looks at the
// Upgrade header, UpgradeToWebSocket validates everything else and builds the
// 101 response headers.

package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Constants used for handshake processing.
const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	HeaderConnection         = "Connection"
	HeaderUpgrade            = "Upgrade"
	HeaderSecWebSocketKey    = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer    = "Sec-WebSocket-Version"
	HeaderSecWebSocketAccept = "Sec-WebSocket-Accept"
	RequiredWebSocketVersion = "13"
	UpgradeToken             = "websocket"
	MaxHandshakeHeadersSize  = 8192
)

// Errors for handshake validation.
var (
	ErrInvalidUpgradeHeaders = errors.New("invalid WebSocket upgrade headers")
	ErrMissingWebSocketKey   = errors.New("missing or malformed Sec-WebSocket-Key header")
	ErrBadWebSocketVersion   = errors.New("unsupported WebSocket version; only '13' is supported")
	ErrBadHandshakeMethod    = errors.New("WebSocket handshake requires GET")
	ErrHandshakeTooLarge     = errors.New("handshake headers too large")
)

// IsUpgradeRequest reports whether h carries an Upgrade header whose value
// equals "websocket", ignoring case and surrounding whitespace.
func IsUpgradeRequest(h http.Header) bool {
	for _, v := range h.Values(HeaderUpgrade) {
		if strings.EqualFold(strings.TrimSpace(v), UpgradeToken) {
			return true
		}
	}
	return false
}

// UpgradeToWebSocket validates method and headers of an upgrade request and
// returns the headers of the 101 Switching Protocols response.
func UpgradeToWebSocket(method string, h http.Header) (http.Header, error) {
	total := 0
	for k, vs := range h {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
		if total > MaxHandshakeHeadersSize {
			return nil, ErrHandshakeTooLarge
		}
	}

	if method != http.MethodGet {
		return nil, ErrBadHandshakeMethod
	}
	if !headerContainsToken(h, HeaderConnection, "upgrade") || !IsUpgradeRequest(h) {
		return nil, ErrInvalidUpgradeHeaders
	}
	if h.Get(HeaderSecWebSocketVer) != RequiredWebSocketVersion {
		return nil, ErrBadWebSocketVersion
	}

	key := strings.TrimSpace(h.Get(HeaderSecWebSocketKey))
	if raw, err := base64.StdEncoding.DecodeString(key); err != nil || len(raw) != 16 {
		return nil, ErrMissingWebSocketKey
	}

	resp := make(http.Header)
	resp.Set(HeaderUpgrade, UpgradeToken)
	resp.Set(HeaderConnection, "Upgrade")
	resp.Set(HeaderSecWebSocketAccept, ComputeAcceptKey(key))
	return resp, nil
}

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func ComputeAcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// WriteHandshakeResponse writes the 101 status line followed by hdr.
func WriteHandshakeResponse(w io.Writer, hdr http.Header) error {
	if _, err := io.WriteString(w, "HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	if err := hdr.Write(w); err != nil {
		return fmt.Errorf("write handshake headers: %w", err)
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// headerContainsToken checks if headerName contains the given token, case-insensitive.
func headerContainsToken(h http.Header, headerName, token string) bool {
	for _, v := range h.Values(headerName) {
		for _, p := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}
