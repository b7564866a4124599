package sluice

import (
	"fmt"
	"io"

	"sluice.dev/go/sluice/obs"
)

// dispatch invokes h once and normalizes the two supported return shapes
// into a single response value: an immediate *Response, or a single-shot
// channel that will yield exactly one *Response (dispatch performs the one
// receive, blocking on the caller's pool goroutine). Panics, every other
// return shape, and a Response carrying an unwritable Body all come back as
// a HandlerError.
func dispatch(h Handler, r *Request) (resp *Response, herr *HandlerError) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			herr = &HandlerError{Recovered: rec}
		}
	}()

	switch v := h.Serve(r).(type) {
	case *Response:
		if v == nil {
			return nil, &HandlerError{Shape: "nil *Response"}
		}
		resp = v
	case chan *Response:
		if resp, herr = awaitResponse(v); herr != nil {
			return nil, herr
		}
	case <-chan *Response:
		if resp, herr = awaitResponse(v); herr != nil {
			return nil, herr
		}
	default:
		return nil, &HandlerError{Shape: fmt.Sprintf("%T", v)}
	}
	if herr := bodyShape(resp); herr != nil {
		return nil, herr
	}
	return resp, nil
}

// bodyShape rejects Body values the writer has no mode for, so they take the
// handler-error path before any byte of the response head goes out.
func bodyShape(resp *Response) *HandlerError {
	switch resp.Body.(type) {
	case nil, []byte, string, *BodyChannel, io.Reader:
		return nil
	default:
		return &HandlerError{Shape: fmt.Sprintf("body %T", resp.Body)}
	}
}

func awaitResponse(ch <-chan *Response) (*Response, *HandlerError) {
	resp, ok := <-ch
	if !ok || resp == nil {
		return nil, &HandlerError{Shape: "channel yielded no response"}
	}
	return resp, nil
}

// serveRequest runs one request through the handler on the pool and hands
// the result to the response writer. On handler failure the handler gets
// exactly one more call with a MethodError pseudo-request so applications
// can report errors uniformly; the connection closes after that regardless
// of what it returns.
func (s *Server) serveRequest(c *conn, req *Request) {
	resp, herr := dispatch(s.handler, req)
	if herr == nil {
		c.finishExchange(c.writeResponse(resp))
		return
	}

	s.log.Logf(obs.Error, "handler failed on %s %s (req %s): %v", req.Method, req.RequestURI, req.RequestID, herr)
	s.meter.Counter("sluice_errors_total", 1, obs.Label{Key: "kind", Value: "handler"})

	eresp, eerr := dispatch(s.handler, errRequest(req, herr))
	if eerr != nil {
		s.log.Logf(obs.Error, "error handler failed too (req %s): %v", req.RequestID, eerr)
		eresp = nil
	}

	if c.headIsWritten() {
		// Too late for a coherent error response; just end the stream.
		c.finishExchange(respResult{err: herr})
		return
	}
	if eresp == nil {
		eresp = &Response{Status: 500}
	}
	res := c.writeResponse(eresp)
	res.reusable = false
	if res.err == nil {
		res.err = herr
	}
	c.finishExchange(res)
}

// errRequest builds the synthetic error-classified pseudo-request: same
// target and headers as the failed request, MethodError method, no body,
// the failure in Err.
func errRequest(req *Request, herr *HandlerError) *Request {
	return &Request{
		Method:        MethodError,
		URL:           req.URL,
		RequestURI:    req.RequestURI,
		Proto:         req.Proto,
		Header:        req.Header,
		Query:         req.Query,
		Host:          req.Host,
		RemoteAddr:    req.RemoteAddr,
		RequestID:     req.RequestID,
		CorrelationID: req.CorrelationID,
		Err:           herr,
	}
}
