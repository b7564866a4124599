package sluice

import (
	"fmt"
	"io"
	"time"

	"sluice.dev/go/sluice/internal/http1"
	"sluice.dev/go/sluice/obs"
)

type writeState int

const (
	writeIdle writeState = iota
	writeHeadDone
	writeDraining
	writeDone
	writeClosed
)

// responseWriter drives one response onto the wire: head frame first,
// unconditionally, then body frames per the body mode, then exactly one
// terminal frame. It runs entirely on the worker pool; each frame write is
// synchronous, so a write's return is the completion that gates the next
// take in the drain loop.
type responseWriter struct {
	c     *conn
	state writeState
	mode  string
}

// writeResponse writes resp and reports the wire outcome. reusable is true
// only for a self-delimiting frame sequence on an HTTP/1.1 exchange whose
// request body was fully consumed from the wire.
func (c *conn) writeResponse(resp *Response) respResult {
	start := time.Now()
	w := &responseWriter{c: c}
	err := w.write(resp)

	c.srv.meter.Counter("sluice_responses_total", 1, obs.Label{Key: "mode", Value: w.mode})
	c.srv.meter.Histogram("sluice_response_millis", float64(time.Since(start).Milliseconds()))

	selfDelim := w.mode != "close-delimited"
	return respResult{
		err:      err,
		reusable: err == nil && selfDelim && c.srv.cfg.KeepAlive && c.wireIsDone(),
	}
}

func (w *responseWriter) write(resp *Response) error {
	status := resp.Status
	if status == 0 {
		status = 200
	}
	keepAlive := w.c.srv.cfg.KeepAlive && w.c.reqProto == "HTTP/1.1" && w.c.wireIsDone()
	chunkable := w.c.reqProto == "HTTP/1.1"

	switch body := resp.Body.(type) {
	case nil:
		w.mode = "empty"
		// The head doubles as the terminal frame: Content-Length 0 tells
		// the peer nothing follows.
		return w.writeHead(status, resp.Header, false, 0, keepAlive)

	case []byte:
		w.mode = "buffer"
		return w.writeBuffer(status, resp.Header, body, keepAlive)

	case string:
		w.mode = "buffer"
		return w.writeBuffer(status, resp.Header, []byte(body), keepAlive)

	case *BodyChannel:
		if chunkable {
			w.mode = "stream"
		} else {
			w.mode = "close-delimited"
		}
		if err := w.writeHead(status, resp.Header, chunkable, -1, keepAlive && chunkable); err != nil {
			body.Close()
			return err
		}
		return w.drainChannel(body, chunkable)

	case io.Reader:
		if chunkable {
			w.mode = "reader"
		} else {
			w.mode = "close-delimited"
		}
		if err := w.writeHead(status, resp.Header, chunkable, -1, keepAlive && chunkable); err != nil {
			return err
		}
		return w.drainReader(body, chunkable)

	default:
		// dispatch rejects these before a response reaches the writer;
		// kept as a backstop for responses built outside the invoker.
		w.state = writeClosed
		return &HandlerError{Shape: fmt.Sprintf("body %T", resp.Body)}
	}
}

func (w *responseWriter) writeHead(status int, hdr Header, chunked bool, contentLength int64, keepAlive bool) error {
	b := http1.GetFrame()
	http1.AppendHead(b, status, map[string][]string(hdr), chunked, contentLength, keepAlive)
	w.c.markHeadWritten()
	err := w.c.writeFrame(b.B)
	http1.PutFrame(b)
	if err != nil {
		w.state = writeClosed
		return err
	}
	w.state = writeHeadDone
	return nil
}

// writeBuffer sends a pre-materialized body: head with Content-Length, then
// the payload as the single final frame.
func (w *responseWriter) writeBuffer(status int, hdr Header, body []byte, keepAlive bool) error {
	if err := w.writeHead(status, hdr, false, int64(len(body)), keepAlive); err != nil {
		return err
	}
	if len(body) > 0 {
		if err := w.c.writeFrame(body); err != nil {
			w.state = writeClosed
			return err
		}
	}
	w.state = writeDone
	return nil
}

// drainChannel is the drain loop: take the next chunk (blocking on the
// pool), write it as a non-final frame, repeat; end-of-stream produces the
// terminal frame. A failed write closes the channel so the producer side is
// released, and ends the loop; partial writes are never retried.
func (w *responseWriter) drainChannel(body *BodyChannel, chunked bool) error {
	w.state = writeDraining
	for {
		chunk, ok := body.Take()
		if !ok {
			break
		}
		if len(chunk) == 0 {
			continue
		}
		if err := w.writeChunk(chunk, chunked); err != nil {
			body.Close()
			w.state = writeClosed
			return err
		}
	}
	return w.writeTerminal(chunked)
}

func (w *responseWriter) drainReader(r io.Reader, chunked bool) error {
	w.state = writeDraining
	buf := make([]byte, w.c.srv.cfg.outFrameSize())
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := w.writeChunk(buf[:n], chunked); werr != nil {
				w.state = writeClosed
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			w.state = writeClosed
			return &TransportError{Op: "read-body", Err: err}
		}
	}
	return w.writeTerminal(chunked)
}

func (w *responseWriter) writeChunk(p []byte, chunked bool) error {
	if !chunked {
		return w.c.writeFrame(p)
	}
	b := http1.GetFrame()
	http1.AppendChunk(b, p)
	err := w.c.writeFrame(b.B)
	http1.PutFrame(b)
	return err
}

// writeTerminal emits the end-of-message frame exactly once. For a
// close-delimited HTTP/1.0 stream the terminator is the connection close
// itself, so there is nothing to put on the wire.
func (w *responseWriter) writeTerminal(chunked bool) error {
	if !chunked {
		w.state = writeDone
		return nil
	}
	b := http1.GetFrame()
	http1.AppendChunkEnd(b)
	err := w.c.writeFrame(b.B)
	http1.PutFrame(b)
	if err != nil {
		w.state = writeClosed
		return err
	}
	w.state = writeDone
	return nil
}
