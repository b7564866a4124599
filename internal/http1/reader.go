package http1

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

var (
	ErrLineTooLong    = errors.New("http1: header line too long")
	ErrMalformedHead  = errors.New("http1: malformed request head")
	ErrMalformedChunk = errors.New("http1: malformed chunk framing")
)

// Head is a parsed request head. ContentLength is -1 for chunked transfer
// coding, 0 when the request carries no body.
type Head struct {
	Method        string
	RequestURI    string
	Proto         string
	Header        map[string][]string
	ContentLength int64
	Chunked       bool
}

const (
	bodyNone = iota
	bodyIdentity
	bodyChunked
)

// Reader parses request heads and then yields the body as a sequence of
// frames via Next. One Reader serves one connection; after a body finishes
// (Next reported last) ReadHead may be called again for the next request.
type Reader struct {
	BR             *bufio.Reader
	MaxHeaderBytes int

	mode        int
	remain      int64 // identity: bytes left; chunked: bytes left in current chunk
	needCRLF    bool  // chunked: chunk data consumed, boundary CRLF pending
	bodyStarted bool
}

// ReadHead parses the next request head. io.EOF is returned untouched when
// the peer closed before sending anything; any other malformation surfaces
// as ErrMalformedHead, ErrLineTooLong, or the underlying read error.
func (r *Reader) ReadHead() (*Head, error) {
	if _, err := r.BR.Peek(1); err != nil {
		return nil, err
	}
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformedHead
	}
	method, uri, proto := parts[0], parts[1], parts[2]
	if !strings.HasPrefix(proto, "HTTP/1.") {
		return nil, ErrMalformedHead
	}
	hdr, err := r.readHeaders()
	if err != nil {
		return nil, err
	}

	h := &Head{
		Method:     method,
		RequestURI: uri,
		Proto:      proto,
		Header:     hdr,
	}
	if hasChunkedTE(hdr) {
		h.Chunked = true
		h.ContentLength = -1
		r.mode = bodyChunked
		r.remain = 0
		r.needCRLF = false
	} else if v := getHeader(hdr, "Content-Length"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			return nil, ErrMalformedHead
		}
		h.ContentLength = n
		if n > 0 {
			r.mode = bodyIdentity
			r.remain = n
		} else {
			r.mode = bodyNone
		}
	} else {
		r.mode = bodyNone
	}
	r.bodyStarted = false
	return h, nil
}

// HasBody reports whether the head just read carries body frames.
func (r *Reader) HasBody() bool { return r.mode != bodyNone }

// Next reads the next body frame into p. last is true on the frame that
// ends the body; a (0, true, nil) return means the body ended with no
// further payload (the chunked terminator). Next must not be called once
// last was reported or when HasBody is false.
func (r *Reader) Next(p []byte) (n int, last bool, err error) {
	switch r.mode {
	case bodyIdentity:
		return r.nextIdentity(p)
	case bodyChunked:
		return r.nextChunked(p)
	default:
		return 0, true, nil
	}
}

func (r *Reader) nextIdentity(p []byte) (int, bool, error) {
	if r.remain <= 0 {
		return 0, true, nil
	}
	toRead := int64(len(p))
	if toRead > r.remain {
		toRead = r.remain
	}
	n, err := io.ReadFull(r.BR, p[:toRead])
	r.remain -= int64(n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return n, false, io.ErrUnexpectedEOF
		}
		return n, false, err
	}
	r.bodyStarted = true
	return n, r.remain == 0, nil
}

func (r *Reader) nextChunked(p []byte) (int, bool, error) {
	if r.needCRLF {
		if err := r.expectCRLF(); err != nil {
			return 0, false, err
		}
		r.needCRLF = false
	}
	if r.remain == 0 {
		size, err := r.readChunkSize()
		if err != nil {
			return 0, false, err
		}
		if size == 0 {
			if err := r.readTrailers(); err != nil {
				return 0, false, err
			}
			return 0, true, nil
		}
		r.remain = size
	}
	toRead := int64(len(p))
	if toRead > r.remain {
		toRead = r.remain
	}
	n, err := io.ReadFull(r.BR, p[:toRead])
	r.remain -= int64(n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return n, false, io.ErrUnexpectedEOF
		}
		return n, false, err
	}
	r.bodyStarted = true
	if r.remain == 0 {
		r.needCRLF = true
	}
	return n, false, nil
}

func (r *Reader) readHeaders() (map[string][]string, error) {
	h := make(map[string][]string)
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, ErrMalformedHead
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		if SanitizeHeaderKey(k) == "" {
			return nil, ErrMalformedHead
		}
		addHeader(h, k, v)
	}
	return h, nil
}

func (r *Reader) readLine() (string, error) {
	return readLineLimit(r.BR, r.MaxHeaderBytes)
}

func addHeader(h map[string][]string, k, v string) {
	hk := CanonicalHeaderKey(k)
	h[hk] = append(h[hk], v)
}

func getHeader(h map[string][]string, k string) string {
	hk := CanonicalHeaderKey(k)
	if vv, ok := h[hk]; ok && len(vv) > 0 {
		return vv[0]
	}
	return ""
}

func hasChunkedTE(h map[string][]string) bool {
	if vv, ok := h[CanonicalHeaderKey("Transfer-Encoding")]; ok {
		for _, v := range vv {
			if strings.Contains(strings.ToLower(v), "chunked") {
				return true
			}
		}
	}
	return false
}

// CanonicalHeaderKey canonicalizes a header name without pulling textproto
// into the codec.
func CanonicalHeaderKey(s string) string {
	b := []byte(strings.ToLower(s))
	upper := true
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			if upper {
				b[i] = byte(c - 'a' + 'A')
			}
			upper = false
			continue
		}
		upper = c == '-'
	}
	return string(b)
}

func readLineLimit(br *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			break
		}
		if b != '\r' {
			sb.WriteByte(b)
		}
		if limit > 0 && sb.Len() > limit {
			return "", ErrLineTooLong
		}
	}
	return sb.String(), nil
}
