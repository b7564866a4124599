//go:build linux

package sluice

import (
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/iceber/iouring-go"
	"golang.org/x/sys/unix"

	"sluice.dev/go/sluice/obs"
)

const ringEntries = 256

// ringPool holds the shared io_uring instances. Sized by
// Config.LoopThreads; connections are spread across the rings round-robin,
// so each ring plays the role of one reactor thread.
type ringPool struct {
	rings []*iouring.IOURing
	next  atomic.Uint64
}

func newRingPool(n int) (*ringPool, error) {
	if n <= 0 {
		n = 1
	}
	p := &ringPool{rings: make([]*iouring.IOURing, 0, n)}
	for i := 0; i < n; i++ {
		ring, err := iouring.New(ringEntries)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.rings = append(p.rings, ring)
	}
	return p, nil
}

func (p *ringPool) pick() *iouring.IOURing {
	i := p.next.Add(1)
	return p.rings[int(i)%len(p.rings)]
}

func (p *ringPool) Close() {
	for _, r := range p.rings {
		_ = r.Close()
	}
	p.rings = nil
}

// wrapTransport selects the backend for one accepted connection. TLS
// connections always go through the portable path: the secure channel owns
// the socket reads and writes.
func (s *Server) wrapTransport(c net.Conn) transport {
	if s.rings == nil {
		return netTransport{c}
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return netTransport{c}
	}
	t, err := newURingTransport(s.rings.pick(), tc)
	if err != nil {
		s.log.Logf(obs.Warn, "io_uring transport unavailable for %s, using portable: %v", c.RemoteAddr(), err)
		return netTransport{c}
	}
	return t
}

// uringTransport drives one connection's reads and writes through a shared
// io_uring instance: each operation is submitted to the ring and its
// completion observed on a result channel.
type uringTransport struct {
	ring *iouring.IOURing
	tc   *net.TCPConn
	f    *os.File // dup of the socket fd; pins it for the ring
	fd   int
}

func newURingTransport(ring *iouring.IOURing, tc *net.TCPConn) (*uringTransport, error) {
	f, err := tc.File()
	if err != nil {
		return nil, err
	}
	return &uringTransport{ring: ring, tc: tc, f: f, fd: int(f.Fd())}, nil
}

func (t *uringTransport) Read(p []byte) (int, error) {
	ch := make(chan iouring.Result, 1)
	if _, err := t.ring.SubmitRequest(iouring.Recv(t.fd, p, 0), ch); err != nil {
		return 0, err
	}
	result := <-ch
	n, err := result.ReturnInt()
	if err != nil {
		return 0, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (t *uringTransport) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		ch := make(chan iouring.Result, 1)
		if _, err := t.ring.SubmitRequest(iouring.Send(t.fd, p[written:], 0), ch); err != nil {
			return written, err
		}
		result := <-ch
		n, err := result.ReturnInt()
		if err != nil {
			return written, err
		}
		if n <= 0 {
			return written, io.ErrClosedPipe
		}
		written += n
	}
	return written, nil
}

func (t *uringTransport) CloseWrite() error {
	return unix.Shutdown(t.fd, unix.SHUT_WR)
}

func (t *uringTransport) Close() error {
	err := t.f.Close()
	if cerr := t.tc.Close(); err == nil {
		err = cerr
	}
	return err
}

// The ring path has no deadline support; I/O timeouts apply only to the
// portable backend.
func (t *uringTransport) SetReadDeadline(time.Time) error  { return nil }
func (t *uringTransport) SetWriteDeadline(time.Time) error { return nil }

func (t *uringTransport) RemoteAddr() net.Addr { return t.tc.RemoteAddr() }
