// Package sluice is a streaming HTTP/1.1 server engine. Each connection is
// served by a serialized read loop that turns heads into Requests with a
// bounded, backpressure-aware body stream; handlers run on a shared worker
// pool and may answer synchronously or through a single-shot channel; a
// per-response state machine writes head, body frames, and exactly one
// terminal frame. By default every exchange owns its connection for its
// lifetime; keep-alive is an explicit opt-in.
package sluice

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"sluice.dev/go/sluice/obs"
)

// Server accepts connections and serves them through a single Handler.
// Construct with New; the zero value is not usable.
type Server struct {
	cfg     Config
	handler Handler
	exec    Executor
	ownExec bool
	log     obs.Logger
	meter   obs.Meter
	tlsConf *tls.Config
	rings   *ringPool

	mu         sync.Mutex
	ln         net.Listener
	conns      *xsync.MapOf[*conn, struct{}]
	inShutdown atomic.Bool
}

// New validates cfg, resolves TLS material, and builds the server. Any
// invalid option or unusable TLS input is returned as a ConfigError and no
// server exists: construction never half-succeeds.
func New(cfg Config, h Handler) (*Server, error) {
	if h == nil {
		return nil, &ConfigError{Option: "Handler", Reason: "required"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var tlsConf *tls.Config
	if cfg.TLS != nil {
		var err error
		tlsConf, err = cfg.TLS.build()
		if err != nil {
			return nil, err
		}
	}

	s := &Server{
		cfg:     cfg,
		handler: h,
		log:     cfg.Logger,
		meter:   cfg.Meter,
		tlsConf: tlsConf,
		conns:   xsync.NewMapOf[*conn, struct{}](),
	}

	if cfg.Executor != nil {
		s.exec = cfg.Executor
	} else {
		s.exec = NewPool(cfg.Workers, cfg.Queue)
		s.ownExec = true
	}

	if !cfg.DisableURing {
		rings, err := newRingPool(cfg.LoopThreads)
		if err != nil {
			s.log.Logf(obs.Warn, "io_uring unavailable, using portable backend: %v", err)
		} else {
			s.rings = rings
		}
	}
	return s, nil
}

// ListenAndServe binds the configured address and serves until Shutdown or
// Close.
func (s *Server) ListenAndServe() error {
	ln, err := newListener(s.cfg.Host, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts on ln until it fails or the server shuts down. It returns
// ErrServerClosed after Shutdown or Close.
func (s *Server) Serve(ln net.Listener) error {
	if s.shuttingDown() {
		ln.Close()
		return ErrServerClosed
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	defer ln.Close()
	s.log.Logf(obs.Info, "listening on %s", ln.Addr())

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return &TransportError{Op: "accept", Err: err}
		}
		if s.shuttingDown() {
			c.Close()
			continue
		}

		var tr transport
		if s.tlsConf != nil {
			// The secure channel owns the socket; it always rides the
			// portable backend.
			tr = netTransport{tls.Server(c, s.tlsConf)}
		} else {
			tr = s.wrapTransport(c)
		}
		cn := newConn(s, tr)
		s.conns.Store(cn, struct{}{})
		go cn.serve()
	}
}

// Addr reports the listener address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
}

// Shutdown stops accepting, then waits for in-flight connections to finish.
// When ctx expires first, remaining connections are torn down and ctx's
// error returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.closeListener()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if s.conns.Size() == 0 {
			s.release()
			return nil
		}
		select {
		case <-ctx.Done():
			s.closeConns()
			s.release()
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Close tears everything down immediately: listener, live connections, and
// owned resources.
func (s *Server) Close() error {
	s.inShutdown.Store(true)
	s.closeListener()
	s.closeConns()
	s.release()
	return nil
}

func (s *Server) closeConns() {
	s.conns.Range(func(cn *conn, _ struct{}) bool {
		cn.teardown()
		return true
	})
}

func (s *Server) release() {
	if s.ownExec {
		s.exec.Close()
	}
	if s.rings != nil {
		s.rings.Close()
	}
	s.log.Logf(obs.Info, "server stopped")
}

func (s *Server) forgetConn(cn *conn) {
	s.conns.Delete(cn)
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}
