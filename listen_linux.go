//go:build linux

package sluice

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// newListener builds the listening socket by hand so the configured backlog
// actually reaches listen(2); net.Listen offers no way to set it.
func newListener(host string, port, backlog int) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, &ConfigError{Option: "Host", Reason: err.Error()}
	}

	family := unix.AF_INET
	if addr.IP.To4() == nil && addr.IP != nil {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, &TransportError{Op: "socket", Err: err}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, &TransportError{Op: "setsockopt", Err: err}
	}

	var sa unix.Sockaddr
	if family == unix.AF_INET {
		sa4 := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 := addr.IP.To4(); ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		sa = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa6.Addr[:], addr.IP.To16())
		sa = sa6
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, &TransportError{Op: "bind", Err: err}
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, &TransportError{Op: "listen", Err: err}
	}

	f := os.NewFile(uintptr(fd), "sluice-listener")
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	return ln, nil
}
