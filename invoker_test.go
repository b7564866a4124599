package sluice

import (
	"strings"
	"testing"
)

func TestDispatch_SyncResponse(t *testing.T) {
	want := &Response{Status: 201}
	resp, herr := dispatch(HandlerFunc(func(*Request) any { return want }), &Request{})
	if herr != nil {
		t.Fatalf("herr = %v", herr)
	}
	if resp != want {
		t.Fatalf("resp = %v, want %v", resp, want)
	}
}

func TestDispatch_AsyncChannel(t *testing.T) {
	h := HandlerFunc(func(*Request) any {
		ch := make(chan *Response, 1)
		go func() { ch <- &Response{Status: 202} }()
		return ch
	})
	resp, herr := dispatch(h, &Request{})
	if herr != nil {
		t.Fatalf("herr = %v", herr)
	}
	if resp.Status != 202 {
		t.Fatalf("Status = %d", resp.Status)
	}
}

func TestDispatch_AsyncReceiveOnlyChannel(t *testing.T) {
	h := HandlerFunc(func(*Request) any {
		ch := make(chan *Response, 1)
		ch <- &Response{Status: 200}
		var ro <-chan *Response = ch
		return ro
	})
	resp, herr := dispatch(h, &Request{})
	if herr != nil {
		t.Fatalf("herr = %v", herr)
	}
	if resp.Status != 200 {
		t.Fatalf("Status = %d", resp.Status)
	}
}

func TestDispatch_ClosedChannelIsHandlerError(t *testing.T) {
	h := HandlerFunc(func(*Request) any {
		ch := make(chan *Response)
		close(ch)
		return ch
	})
	if _, herr := dispatch(h, &Request{}); herr == nil {
		t.Fatal("want HandlerError for channel yielding nothing")
	}
}

func TestDispatch_BadShapes(t *testing.T) {
	for _, bad := range []any{nil, "ok", 42, (*Response)(nil), []byte("raw")} {
		bad := bad
		_, herr := dispatch(HandlerFunc(func(*Request) any { return bad }), &Request{})
		if herr == nil {
			t.Fatalf("shape %T: want HandlerError", bad)
		}
	}
}

func TestDispatch_UnsupportedBodyIsHandlerError(t *testing.T) {
	for _, bad := range []any{42, map[string]string{"k": "v"}, struct{}{}} {
		bad := bad
		h := HandlerFunc(func(*Request) any { return &Response{Status: 200, Body: bad} })
		_, herr := dispatch(h, &Request{})
		if herr == nil || herr.Shape == "" {
			t.Fatalf("body %T: want shape HandlerError, got %v", bad, herr)
		}
	}
}

func TestDispatch_UnsupportedBodyFromChannel(t *testing.T) {
	h := HandlerFunc(func(*Request) any {
		ch := make(chan *Response, 1)
		ch <- &Response{Status: 200, Body: 7}
		return ch
	})
	if _, herr := dispatch(h, &Request{}); herr == nil {
		t.Fatal("want HandlerError for unwritable body from async response")
	}
}

func TestDispatch_PanicRecovered(t *testing.T) {
	_, herr := dispatch(HandlerFunc(func(*Request) any { panic("boom") }), &Request{})
	if herr == nil {
		t.Fatal("want HandlerError")
	}
	if herr.Recovered == nil || !strings.Contains(herr.Error(), "boom") {
		t.Fatalf("herr = %v", herr)
	}
}
