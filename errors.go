package sluice

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest     = errors.New("sluice: bad request")
	ErrHeaderTooLarge = errors.New("sluice: header too large")
	ErrBodyClosed     = errors.New("sluice: body channel closed")
	ErrServerClosed   = errors.New("sluice: server closed")
)

// TransportError reports a socket-level failure: read/write errors, abrupt
// peer disconnects, accept failures. It is fatal to the connection, never
// retried, and never surfaced to the handler except as stream teardown.
type TransportError struct {
	Op  string // "read", "write", "accept", "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sluice: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or out-of-sequence HTTP/1.1 frame.
// It is fatal to the connection it occurred on and to nothing else.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sluice: protocol: %s: %v", e.Reason, e.Err)
	}
	return "sluice: protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// HandlerError reports a handler panic or a return value that matches no
// recognized response shape. The invoker reports it back to the handler once
// as an error-classified pseudo-request, then the connection is closed.
type HandlerError struct {
	Shape     string // description of the offending return shape, if any
	Recovered interface{}
	Err       error
}

func (e *HandlerError) Error() string {
	switch {
	case e.Recovered != nil:
		return fmt.Sprintf("sluice: handler panic: %v", e.Recovered)
	case e.Shape != "":
		return fmt.Sprintf("sluice: handler returned unsupported shape %s", e.Shape)
	default:
		return fmt.Sprintf("sluice: handler: %v", e.Err)
	}
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ConfigError rejects a server configuration at construction time. A server
// with any invalid option never starts.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sluice: config %s: %s", e.Option, e.Reason)
}
