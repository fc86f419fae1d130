// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values shared by the protocol, session and server layers.

package api

import "errors"

// Common errors used across the module.
var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsizedMessage marks a message whose byte length cannot be
	// determined. Only the size observation is skipped for such a message.
	ErrUnsizedMessage = errors.New("message has no byte length")

	// ErrMalformedText marks a text message whose payload is not valid UTF-8.
	ErrMalformedText = errors.New("text message is not valid UTF-8")

	// ErrContentUnavailable is returned by a content source that cannot
	// produce its payload at lookup time.
	ErrContentUnavailable = errors.New("content source unavailable")
)
