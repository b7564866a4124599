package http1

import (
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// Outbound frames are assembled in pooled buffers so each head, chunk, and
// terminator goes to the transport as a single write.
var framePool bytebufferpool.Pool

func GetFrame() *bytebufferpool.ByteBuffer  { return framePool.Get() }
func PutFrame(b *bytebufferpool.ByteBuffer) { framePool.Put(b) }

// AppendHead assembles a response head: status line, caller headers, framing
// headers, Connection, blank line. Content-Length and Transfer-Encoding are
// owned here; caller copies of them are skipped. contentLength < 0 means no
// Content-Length header is emitted (chunked or close-delimited body).
func AppendHead(b *bytebufferpool.ByteBuffer, status int, hdr map[string][]string, chunked bool, contentLength int64, keepAlive bool) {
	b.B = append(b.B, "HTTP/1.1 "...)
	b.B = strconv.AppendInt(b.B, int64(status), 10)
	b.B = append(b.B, ' ')
	b.B = append(b.B, ReasonPhrase(status)...)
	b.B = append(b.B, '\r', '\n')
	for k, vv := range hdr {
		if k == "Connection" || k == "Content-Length" || k == "Transfer-Encoding" {
			continue
		}
		if SanitizeHeaderKey(k) == "" {
			continue
		}
		for _, v := range vv {
			b.B = append(b.B, k...)
			b.B = append(b.B, ':', ' ')
			b.B = append(b.B, SanitizeHeaderValue(v)...)
			b.B = append(b.B, '\r', '\n')
		}
	}
	if chunked {
		b.B = append(b.B, "Transfer-Encoding: chunked\r\n"...)
	} else if contentLength >= 0 {
		b.B = append(b.B, "Content-Length: "...)
		b.B = strconv.AppendInt(b.B, contentLength, 10)
		b.B = append(b.B, '\r', '\n')
	}
	if keepAlive {
		b.B = append(b.B, "Connection: keep-alive\r\n"...)
	} else {
		b.B = append(b.B, "Connection: close\r\n"...)
	}
	b.B = append(b.B, '\r', '\n')
}

// AppendChunk frames p as one chunk of a chunked-coded body. Empty payloads
// are skipped: a zero-length chunk would terminate the body.
func AppendChunk(b *bytebufferpool.ByteBuffer, p []byte) {
	if len(p) == 0 {
		return
	}
	b.B = strconv.AppendInt(b.B, int64(len(p)), 16)
	b.B = append(b.B, '\r', '\n')
	b.B = append(b.B, p...)
	b.B = append(b.B, '\r', '\n')
}

// AppendChunkEnd frames the terminating zero-length chunk.
func AppendChunkEnd(b *bytebufferpool.ByteBuffer) {
	b.B = append(b.B, "0\r\n\r\n"...)
}

// Continue100 is the interim response frame, written verbatim.
var Continue100 = []byte("HTTP/1.1 100 Continue\r\n\r\n")

func ReasonPhrase(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 413:
		return "Payload Too Large"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	default:
		return "Status"
	}
}

// SanitizeHeaderKey ensures the name is a valid token; empty means invalid.
func SanitizeHeaderKey(k string) string {
	if k == "" {
		return ""
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			continue
		}
		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		default:
			return ""
		}
	}
	return k
}

// SanitizeHeaderValue removes CR/LF and control chars except HTAB.
func SanitizeHeaderValue(v string) string {
	clean := true
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f || (c < 0x20 && c != '\t') {
			clean = false
			break
		}
	}
	if clean {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
