package sluice

import (
	"net"
	"time"
)

// transport is the byte-level surface a connection is served over. Both
// backends implement it: netTransport over net.Conn (portable, and always
// used under TLS), and the io_uring backend on Linux.
type transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// CloseWrite shuts down the send side so the peer observes a clean
	// half-close before the full teardown.
	CloseWrite() error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

type closeWriter interface {
	CloseWrite() error
}

// netTransport is the portable backend: a plain net.Conn (or *tls.Conn).
type netTransport struct {
	net.Conn
}

func (t netTransport) CloseWrite() error {
	if cw, ok := t.Conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

// stagedClose performs the teardown sequence: half-close the send side,
// give the peer a bounded window to read the tail and hang up, then close.
// Skipping straight to Close risks a RST that discards the response tail.
func stagedClose(t transport) {
	if err := t.CloseWrite(); err == nil {
		_ = t.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		var drain [1 << 10]byte
		for {
			if _, err := t.Read(drain[:]); err != nil {
				break
			}
		}
	}
	_ = t.Close()
}
