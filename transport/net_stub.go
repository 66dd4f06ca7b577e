//go:build !linux
// +build !linux

// File: transport/net_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallback for platforms without a socket backend.

package transport

import (
	"github.com/momentics/hioload-reactor/api"
)

func sysRead(fd int, p []byte) (int, error)  { return 0, api.ErrNotSupported }
func sysWrite(fd int, p []byte) (int, error) { return 0, api.ErrNotSupported }
func sysClose(fd int) error                  { return api.ErrNotSupported }
func sysSetNonblock(fd int) error            { return api.ErrNotSupported }
func isAgain(err error) bool                 { return false }
func sysDup(fd int) (int, error)             { return -1, api.ErrNotSupported }
func sysRemoteAddr(fd int) string            { return "" }

func sysApplySocketConfig(fd int, sc SocketConfig) error { return api.ErrNotSupported }

// Listen is not available on this platform.
func Listen(addr string) (int, error) { return -1, api.ErrNotSupported }

// Accept is not available on this platform.
func Accept(listenFd int) (int, error) { return -1, api.ErrNotSupported }

// StartConnect is not available on this platform.
func StartConnect(addr string) (int, bool, error) { return -1, false, api.ErrNotSupported }

// FinishConnect is not available on this platform.
func FinishConnect(fd int) error { return api.ErrNotSupported }

// LocalAddr is not available on this platform.
func LocalAddr(fd int) string { return "" }

// Socketpair is not available on this platform.
func Socketpair() (*Channel, *Channel, error) { return nil, nil, api.ErrNotSupported }
