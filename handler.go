package sluice

// Handler serves requests. Serve runs on the worker pool and may block; it
// must not be assumed to run on any particular goroutine between calls.
//
// Serve returns one of:
//
//	*Response              the response, ready to write
//	chan *Response or      a single-shot source; the engine receives exactly
//	<-chan *Response       one value from it on the pool
//
// Every other value (nil included) is a HandlerError: the handler is then
// invoked once more with a MethodError pseudo-request describing the failure
// and the connection closes after that exchange.
type Handler interface {
	Serve(r *Request) any
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(r *Request) any

func (f HandlerFunc) Serve(r *Request) any { return f(r) }
