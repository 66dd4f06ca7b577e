// File: transport/channel.go
// Package transport implements the non-blocking socket channel.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// ErrAgain is returned by Read and Write when the operation would block.
// The caller is expected to wait for the next readiness notification.
var ErrAgain = errors.New("operation would block")

// Channel wraps a connected, non-blocking socket descriptor.
type Channel struct {
	fd     int
	closed atomic.Bool
}

// NewChannel adopts an existing socket descriptor. The caller transfers
// ownership; the descriptor is closed by Close.
func NewChannel(fd int) *Channel {
	return &Channel{fd: fd}
}

// Fd returns the underlying descriptor.
func (c *Channel) Fd() int { return c.fd }

// Read fills p with available bytes. It returns ErrAgain when no data is
// available and io.EOF once the peer has closed the connection.
func (c *Channel) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, io.EOF
	}
	n, err := sysRead(c.fd, p)
	if err != nil {
		if isAgain(err) {
			return 0, ErrAgain
		}
		return 0, fmt.Errorf("channel read: %w", err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write sends as much of p as the socket buffer accepts. A short write is
// reported through the returned count; ErrAgain means nothing was written.
func (c *Channel) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, errors.New("channel write: closed")
	}
	n, err := sysWrite(c.fd, p)
	if err != nil {
		if isAgain(err) {
			return 0, ErrAgain
		}
		return n, fmt.Errorf("channel write: %w", err)
	}
	return n, nil
}

// SetNonblocking switches the descriptor to non-blocking mode.
func (c *Channel) SetNonblocking() error {
	return sysSetNonblock(c.fd)
}

// RemoteAddr returns the peer address in host:port form, or empty when the
// socket has no peer.
func (c *Channel) RemoteAddr() string {
	return sysRemoteAddr(c.fd)
}

// Close releases the descriptor. Idempotent.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return sysClose(c.fd)
}

// IsClosed reports whether Close has been called.
func (c *Channel) IsClosed() bool {
	return c.closed.Load()
}
