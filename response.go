package sluice

// Response is what a Handler produces. Body selects the wire strategy:
//
//	nil                 no body; the head itself is the terminal frame
//	[]byte or string    single buffer, written with Content-Length
//	*BodyChannel        chunk stream, written with chunked transfer coding
//	io.Reader           drained in ChunkSize slices, chunked transfer coding
//
// Any other Body type is a HandlerError. Status 0 means 200. Header may be
// nil. Content-Length and Transfer-Encoding are owned by the engine and
// ignored if set here.
type Response struct {
	Status int
	Header Header
	Body   any
}
