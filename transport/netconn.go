// File: transport/netconn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bridge from net.Conn-based code into the channel layer. The descriptor is
// duplicated out of the net.Conn so the runtime poller and the reactor never
// share ownership of one fd.

package transport

import (
	"fmt"
	"net"
	"syscall"
)

// AdoptNetConn extracts an owned, non-blocking descriptor from conn and
// wraps it in a Channel. The original conn is closed; the returned channel
// is the sole owner of the connection from then on.
func AdoptNetConn(conn net.Conn) (*Channel, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("adopt conn: %T exposes no descriptor", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("adopt conn: %w", err)
	}
	dupFd := -1
	var dupErr error
	if err := raw.Control(func(fd uintptr) {
		dupFd, dupErr = sysDup(int(fd))
	}); err != nil {
		return nil, fmt.Errorf("adopt conn: %w", err)
	}
	if dupErr != nil {
		return nil, fmt.Errorf("adopt conn: %w", dupErr)
	}
	_ = conn.Close()

	ch := NewChannel(dupFd)
	if err := ch.SetNonblocking(); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("adopt conn: %w", err)
	}
	return ch, nil
}
