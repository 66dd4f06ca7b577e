// File: transport/sockopt.go
// Package transport defines socket option configuration.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

// SocketConfig enumerates the options applied to newly accepted or
// connected sockets.
type SocketConfig struct {
	TCPNoDelay  bool
	SoKeepAlive bool
	SoLinger    int // seconds; negative leaves the system default
	SndBufSize  int // bytes; zero leaves the system default
	RcvBufSize  int // bytes; zero leaves the system default
}

// Apply sets the configured options on the channel's descriptor.
func (sc SocketConfig) Apply(c *Channel) error {
	return sysApplySocketConfig(c.fd, sc)
}
