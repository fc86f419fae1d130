//go:build !linux && !darwin && !freebsd
// +build !linux,!darwin,!freebsd

// File: server/sockopt_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"syscall"
)

var errReusePortUnsupported = errors.New("SO_REUSEPORT is not supported on this platform")

func listenControl(reusePort bool) func(network, address string, c syscall.RawConn) error {
	if !reusePort {
		return nil
	}
	return func(string, string, syscall.RawConn) error {
		return errReusePortUnsupported
	}
}
