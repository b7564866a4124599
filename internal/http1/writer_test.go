package http1

import (
	"strings"
	"testing"
)

func TestAppendHead_ContentLength(t *testing.T) {
	b := GetFrame()
	defer PutFrame(b)
	AppendHead(b, 200, map[string][]string{"X-One": {"a", "b"}}, false, 2, false)
	got := string(b.B)
	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line: %q", got)
	}
	for _, want := range []string{"X-One: a\r\n", "X-One: b\r\n", "Content-Length: 2\r\n", "Connection: close\r\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("head missing %q:\n%q", want, got)
		}
	}
	if !strings.HasSuffix(got, "\r\n\r\n") {
		t.Fatalf("head not terminated: %q", got)
	}
}

func TestAppendHead_OwnsFramingHeaders(t *testing.T) {
	b := GetFrame()
	defer PutFrame(b)
	hdr := map[string][]string{
		"Content-Length":    {"999"},
		"Transfer-Encoding": {"gzip"},
		"Connection":        {"keep-alive"},
	}
	AppendHead(b, 200, hdr, true, -1, false)
	got := string(b.B)
	if strings.Contains(got, "999") || strings.Contains(got, "gzip") || strings.Contains(got, "keep-alive") {
		t.Fatalf("caller framing headers leaked:\n%q", got)
	}
	if !strings.Contains(got, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("chunked header missing:\n%q", got)
	}
}

func TestAppendHead_KeepAlive(t *testing.T) {
	b := GetFrame()
	defer PutFrame(b)
	AppendHead(b, 200, nil, false, 0, true)
	if !strings.Contains(string(b.B), "Connection: keep-alive\r\n") {
		t.Fatalf("keep-alive missing:\n%q", b.B)
	}
}

func TestAppendHead_SanitizesValues(t *testing.T) {
	b := GetFrame()
	defer PutFrame(b)
	AppendHead(b, 200, map[string][]string{
		"X-Evil":    {"a\r\nInjected: yes"},
		"Bad Key\n": {"dropped"},
	}, false, 0, false)
	got := string(b.B)
	if strings.Contains(got, "Injected") && strings.Contains(got, "\r\nInjected") {
		t.Fatalf("CRLF not stripped:\n%q", got)
	}
	if strings.Contains(got, "dropped") {
		t.Fatalf("invalid header name not skipped:\n%q", got)
	}
}

func TestAppendChunk_Framing(t *testing.T) {
	b := GetFrame()
	defer PutFrame(b)
	AppendChunk(b, []byte("hello, world"))
	if got := string(b.B); got != "c\r\nhello, world\r\n" {
		t.Fatalf("chunk = %q", got)
	}
	AppendChunk(b, nil) // never emit a zero-length data chunk
	if got := string(b.B); got != "c\r\nhello, world\r\n" {
		t.Fatalf("empty payload changed frame: %q", got)
	}
	AppendChunkEnd(b)
	if !strings.HasSuffix(string(b.B), "0\r\n\r\n") {
		t.Fatalf("terminator = %q", b.B)
	}
}

func TestReasonPhrase(t *testing.T) {
	if ReasonPhrase(503) != "Service Unavailable" {
		t.Fatal("503 phrase wrong")
	}
	if ReasonPhrase(799) == "" {
		t.Fatal("unknown codes still need a phrase")
	}
}
