package sluice

import (
	"bufio"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"sluice.dev/go/sluice/internal/http1"
	"sluice.dev/go/sluice/obs"
)

type connState int

const (
	stateIdle connState = iota
	stateRequestBuilding
	stateAwaitingResponse
	stateWriting
	stateClosed
)

// readGate is the backpressure coupling between BodyChannel occupancy and
// transport reads. The BodyChannel fires pauseReads when a push fills it and
// resumeReads when a take frees capacity; the read loop waits on the gate
// before issuing each body read, so no read is ever delivered into a full
// channel.
type readGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	closed bool
}

func (g *readGate) init() { g.cond = sync.NewCond(&g.mu) }

func (g *readGate) pauseReads() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *readGate) resumeReads() {
	g.mu.Lock()
	g.paused = false
	g.cond.Broadcast()
	g.mu.Unlock()
}

// wait blocks while reads are paused. It reports false once the gate is
// closed, which means the connection is tearing down.
func (g *readGate) wait() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.paused && !g.closed {
		g.cond.Wait()
	}
	return !g.closed
}

func (g *readGate) close() {
	g.mu.Lock()
	g.closed = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// respResult is the response writer's report back to the read loop: whether
// the write sequence succeeded and whether the framing permits serving
// another request on the same connection.
type respResult struct {
	err      error
	reusable bool
}

// conn is the per-connection adapter. Its serve loop is the connection's
// serialized reactor context: it alone reads from the transport, turning
// heads into Requests and content frames into BodyChannel pushes. Handler
// invocation and every blocking take or write run on the worker pool.
type conn struct {
	srv *Server
	tr  transport

	wmu sync.Mutex // serializes every wire write (interim, head, frames)

	mu           sync.Mutex
	state        connState
	body         *BodyChannel
	reqProto     string
	bodyStarted  bool // first content frame arrived
	wireDone     bool // final content frame pushed (or request had no body)
	headWritten  bool // response head went out
	continueDone bool

	gate     readGate
	respDone chan respResult

	closeOnce sync.Once
}

func newConn(s *Server, tr transport) *conn {
	c := &conn{srv: s, tr: tr, respDone: make(chan respResult, 1)}
	c.gate.init()
	return c
}

func (c *conn) serve() {
	defer c.srv.forgetConn(c)
	defer c.teardown()

	c.srv.meter.Counter("sluice_conns_total", 1)
	c.srv.log.Logf(obs.Debug, "conn %s accepted", c.tr.RemoteAddr())

	rd := &http1.Reader{BR: bufio.NewReader(c.tr), MaxHeaderBytes: maxHeaderBytes}
	for n := 0; ; n++ {
		if !c.serveExchange(rd, n > 0) {
			break
		}
	}
	c.srv.log.Logf(obs.Debug, "conn %s closed", c.tr.RemoteAddr())
}

// serveExchange runs one request/response cycle. It reports true when the
// exchange ended cleanly framed and keep-alive allows the next one.
func (c *conn) serveExchange(rd *http1.Reader, idle bool) bool {
	cfg := &c.srv.cfg

	c.armReadDeadline(idle)
	head, err := rd.ReadHead()
	if err != nil {
		return c.headFailed(err)
	}
	c.mu.Lock()
	c.state = stateRequestBuilding
	c.mu.Unlock()

	c.srv.meter.Counter("sluice_requests_total", 1)

	req, perr := c.onHead(head, rd.HasBody())
	if perr != nil {
		c.srv.log.Logf(obs.Warn, "conn %s protocol error: %v", c.tr.RemoteAddr(), perr)
		c.srv.meter.Counter("sluice_errors_total", 1, obs.Label{Key: "kind", Value: "protocol"})
		c.writeBare(400)
		return false
	}

	if !c.srv.exec.Submit(func() { c.srv.serveRequest(c, req) }) {
		c.srv.log.Logf(obs.Warn, "conn %s rejected: executor saturated", c.tr.RemoteAddr())
		c.writeBare(503)
		return false
	}

	if rd.HasBody() {
		c.readBody(rd)
	}

	res := <-c.respDone
	if !res.reusable || !cfg.KeepAlive || res.err != nil || c.srv.shuttingDown() {
		return false
	}
	c.mu.Lock()
	reuse := c.wireDone && c.state != stateClosed
	if reuse {
		c.state = stateIdle
		c.body = nil
	}
	c.mu.Unlock()
	return reuse
}

// onHead builds the Request for a parsed head: URI and query parsing, a
// fresh BodyChannel bound to the read gate, the armed continue closure, and
// request IDs. The returned request is handed to the invoker before any
// body content arrives.
func (c *conn) onHead(head *http1.Head, hasBody bool) (*Request, error) {
	u, err := parseRequestURI(head.RequestURI)
	if err != nil {
		return nil, &ProtocolError{Reason: "bad request target", Err: err}
	}

	body := NewBodyChannel(c.srv.cfg.InBuf)
	body.bindFlow(&c.gate)
	if !hasBody {
		body.Close()
	}

	hdr := Header(head.Header)
	req := &Request{
		Method:        head.Method,
		URL:           u,
		RequestURI:    head.RequestURI,
		Proto:         head.Proto,
		Header:        hdr,
		Query:         u.Query(),
		Host:          hdr.Get("Host"),
		ContentLength: head.ContentLength,
		Body:          body,
		RemoteAddr:    c.tr.RemoteAddr(),
		RequestID:     genID(),
		CorrelationID: hdr.Get("X-Request-Id"),
	}

	c.mu.Lock()
	c.state = stateAwaitingResponse
	c.body = body
	c.reqProto = head.Proto
	c.bodyStarted = false
	c.wireDone = !hasBody
	c.headWritten = false
	c.continueDone = false
	c.mu.Unlock()

	c.gate.resumeReads()
	if expectsContinue(hdr) {
		req.sendContinue = c.sendContinue
	}
	return req, nil
}

// readBody pumps content frames from the wire into the BodyChannel. Each
// iteration waits on the read gate first, so a full channel pauses the
// transport exactly until a consumer take frees a slot.
func (c *conn) readBody(rd *http1.Reader) {
	cfg := &c.srv.cfg
	frameSize := cfg.inFrameSize()
	for {
		if !c.gate.wait() {
			return
		}
		if cfg.ReadTimeout > 0 {
			_ = c.tr.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}
		buf := make([]byte, frameSize)
		n, last, err := rd.Next(buf)
		if err != nil {
			c.onError(err)
			return
		}
		if !c.onData(buf[:n], last) {
			// Teardown raced this read; the frame has nowhere to go.
			c.srv.log.Logf(obs.Debug, "conn %s content after teardown dropped", c.tr.RemoteAddr())
			return
		}
		if last {
			return
		}
	}
}

// onData pushes one content frame, closing the channel after the final one.
// It reports false when the connection is in no state to accept content.
func (c *conn) onData(p []byte, last bool) bool {
	c.mu.Lock()
	if c.state != stateAwaitingResponse && c.state != stateWriting {
		c.mu.Unlock()
		return false
	}
	if len(p) > 0 {
		c.bodyStarted = true
	}
	if last {
		c.wireDone = true
	}
	body := c.body
	c.mu.Unlock()

	if len(p) > 0 && !body.Push(p) {
		// Channel force-closed under us: teardown already underway.
		return true
	}
	if last {
		body.Close()
	}
	return true
}

// onError handles a read-side failure mid-exchange: classify, force-close
// the BodyChannel so a consumer blocked in Take is released, and leave the
// final transport close to the response path or teardown.
func (c *conn) onError(err error) {
	var perr *ProtocolError
	switch {
	case errors.As(err, &perr), errors.Is(err, http1.ErrMalformedChunk):
		c.srv.log.Logf(obs.Warn, "conn %s protocol error: %v", c.tr.RemoteAddr(), err)
		c.srv.meter.Counter("sluice_errors_total", 1, obs.Label{Key: "kind", Value: "protocol"})
	default:
		c.srv.log.Logf(obs.Debug, "conn %s transport error: %v", c.tr.RemoteAddr(), err)
		c.srv.meter.Counter("sluice_errors_total", 1, obs.Label{Key: "kind", Value: "transport"})
	}
	c.mu.Lock()
	body := c.body
	c.state = stateClosed
	c.mu.Unlock()
	if body != nil {
		body.Close()
	}
	c.gate.close()
}

// onClosed is the terminal transition. Idempotent; every exit path funnels
// here. Closing the BodyChannel first releases any worker blocked in Take,
// then the transport goes down in stages.
func (c *conn) onClosed() {
	c.mu.Lock()
	body := c.body
	c.state = stateClosed
	c.mu.Unlock()
	if body != nil {
		body.Close()
	}
	c.gate.close()
	stagedClose(c.tr)
}

func (c *conn) teardown() {
	c.closeOnce.Do(c.onClosed)
}

// headFailed maps a ReadHead error to the close behavior: silent on a clean
// peer close, best-effort status otherwise. Always ends the connection.
func (c *conn) headFailed(err error) bool {
	switch {
	case err == io.EOF:
		// Peer closed between requests; nothing to answer.
	case errors.Is(err, http1.ErrLineTooLong):
		c.srv.meter.Counter("sluice_errors_total", 1, obs.Label{Key: "kind", Value: "protocol"})
		c.writeBare(431)
	case errors.Is(err, http1.ErrMalformedHead):
		c.srv.log.Logf(obs.Warn, "conn %s malformed head: %v", c.tr.RemoteAddr(), err)
		c.srv.meter.Counter("sluice_errors_total", 1, obs.Label{Key: "kind", Value: "protocol"})
		c.writeBare(400)
	default:
		c.srv.log.Logf(obs.Debug, "conn %s read: %v", c.tr.RemoteAddr(), err)
		c.srv.meter.Counter("sluice_errors_total", 1, obs.Label{Key: "kind", Value: "transport"})
	}
	return false
}

// sendContinue is the armed one-shot interim write. No-op once the body has
// started arriving, the response head has gone out, or it already ran. The
// write lock is held across the flag check and the write, so a response head
// committed from another goroutine can never end up followed by the interim
// frame.
func (c *conn) sendContinue() {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.mu.Lock()
	skip := c.continueDone || c.bodyStarted || c.headWritten || c.state != stateAwaitingResponse
	if !skip {
		c.continueDone = true
	}
	c.mu.Unlock()
	if skip {
		return
	}

	if err := c.writeFrameLocked(http1.Continue100); err != nil {
		c.srv.log.Logf(obs.Debug, "conn %s interim write: %v", c.tr.RemoteAddr(), err)
	}
}

// writeFrame puts one assembled frame on the wire. All writers go through
// here so a response is never interleaved with itself or with an interim
// frame.
func (c *conn) writeFrame(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writeFrameLocked(p)
}

func (c *conn) writeFrameLocked(p []byte) error {
	if wto := c.srv.cfg.WriteTimeout; wto > 0 {
		_ = c.tr.SetWriteDeadline(time.Now().Add(wto))
	}
	if _, err := c.tr.Write(p); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// writeBare emits a headers-only status response and is only used on paths
// that end the connection (bad head, saturation, handler failure fallback).
func (c *conn) writeBare(status int) {
	b := http1.GetFrame()
	http1.AppendHead(b, status, nil, false, 0, false)
	_ = c.writeFrame(b.B)
	http1.PutFrame(b)
}

func (c *conn) armReadDeadline(idle bool) {
	cfg := &c.srv.cfg
	switch {
	case idle && cfg.IdleTimeout > 0:
		_ = c.tr.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	case cfg.ReadHeaderTimeout > 0:
		_ = c.tr.SetReadDeadline(time.Now().Add(cfg.ReadHeaderTimeout))
	case cfg.ReadTimeout > 0:
		_ = c.tr.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	default:
		_ = c.tr.SetReadDeadline(time.Time{})
	}
}

func (c *conn) headIsWritten() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headWritten
}

func (c *conn) markHeadWritten() {
	c.mu.Lock()
	c.headWritten = true
	if c.state == stateAwaitingResponse {
		c.state = stateWriting
	}
	c.mu.Unlock()
}

func (c *conn) wireIsDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wireDone
}

// finishExchange delivers the writer's verdict to the read loop, tearing
// the connection down first when the exchange cannot continue. Exactly one
// call per submitted request, on every path.
func (c *conn) finishExchange(res respResult) {
	if !res.reusable {
		c.teardown()
	}
	c.respDone <- res
}

func parseRequestURI(uri string) (*url.URL, error) {
	if uri == "*" {
		return &url.URL{Path: "*"}, nil
	}
	return url.ParseRequestURI(uri)
}

func expectsContinue(h Header) bool {
	return strings.EqualFold(h.Get("Expect"), "100-continue")
}
