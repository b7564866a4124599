//go:build !linux

package sluice

import (
	"fmt"
	"net"
)

// newListener on non-Linux platforms uses net.Listen; the configured
// backlog cannot be applied there and the OS default is used.
func newListener(host string, port, backlog int) (net.Listener, error) {
	_ = backlog
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}
	return ln, nil
}
