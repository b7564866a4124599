package sluice

import (
	"io"
	"net"
	"net/url"
)

// MethodError is the method of the synthetic pseudo-request dispatched to a
// handler after its previous invocation failed (panic or unusable return
// shape). Handlers distinguish it by method; the failure itself is in
// Request.Err.
const MethodError = "ERROR"

// Request is one inbound HTTP/1.1 exchange as seen by a Handler. It is built
// as soon as the head is parsed; Body may still be filling while the handler
// runs. ContentLength is -1 when the body length is not known up front
// (chunked transfer).
type Request struct {
	Method        string
	URL           *url.URL
	RequestURI    string
	Proto         string
	Header        Header
	Query         url.Values
	Host          string
	ContentLength int64

	// Body carries the request body chunks. Wire requests always get a
	// channel; one that arrives with no body is already closed, so takes
	// report end-of-stream immediately. Body is nil only on MethodError
	// pseudo-requests. BodyStream wraps it for code that wants an
	// io.Reader.
	Body *BodyChannel

	RemoteAddr net.Addr

	// RequestID is generated per request for log correlation. CorrelationID
	// is the peer-supplied X-Request-Id, when present.
	RequestID     string
	CorrelationID string

	// Err is set only on MethodError pseudo-requests and carries the
	// HandlerError that triggered the dispatch.
	Err error

	sendContinue func()
}

// SendContinue writes an interim "100 Continue" response if the client asked
// for one via Expect and nothing has made the interim pointless yet. Calling
// it again, calling it after body content arrived, or calling it after the
// response head went out are all no-ops.
func (r *Request) SendContinue() {
	if r == nil || r.sendContinue == nil {
		return
	}
	r.sendContinue()
}

// BodyStream returns the request body as an io.Reader, or an empty reader
// when the request has no body.
func (r *Request) BodyStream() io.Reader {
	if r == nil || r.Body == nil {
		return emptyBody{}
	}
	return r.Body.Reader()
}

type emptyBody struct{}

func (emptyBody) Read([]byte) (int, error) { return 0, io.EOF }
