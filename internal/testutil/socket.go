// Package testutil collects small helpers shared by component tests.
package testutil

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ReserveLocalSocket binds a TCP listener on 127.0.0.1:0 with SO_REUSEADDR
// set, and returns the port the kernel assigned along with the still-open
// listener. Keeping the listener alive (rather than closing it and
// returning only the port) prevents a race where the kernel reassigns the
// port before the caller gets to use it, per spec section 4.6.
func ReserveLocalSocket() (int, net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		return 0, nil, fmt.Errorf("testutil: failed to reserve local socket: %w", err)
	}

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		_ = listener.Close()
		return 0, nil, fmt.Errorf("testutil: listener address is not a TCP address")
	}
	return addr.Port, listener, nil
}
