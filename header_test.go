package sluice

import "testing"

func TestHeader_CaseInsensitiveAccess(t *testing.T) {
	h := Header{}
	h.Set("content-type", "text/plain")
	if got := h.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("Get = %q", got)
	}
	h.Add("X-THING", "a")
	h.Add("x-thing", "b")
	if vv := h.Values("X-Thing"); len(vv) != 2 || vv[0] != "a" || vv[1] != "b" {
		t.Fatalf("Values = %v", vv)
	}
	h.Del("X-ThInG")
	if got := h.Get("X-Thing"); got != "" {
		t.Fatalf("Get after Del = %q", got)
	}
}

func TestHeader_NilSafe(t *testing.T) {
	var h Header
	if h.Get("X") != "" || h.Values("X") != nil {
		t.Fatal("nil Header reads must be empty")
	}
	h.Set("X", "v") // must not panic
	h.Add("X", "v")
	h.Del("X")
	if h.Clone() != nil {
		t.Fatal("Clone of nil must be nil")
	}
}

func TestHeader_CloneIsDeep(t *testing.T) {
	h := Header{}
	h.Add("X-A", "1")
	clone := h.Clone()
	clone.Add("X-A", "2")
	if vv := h.Values("X-A"); len(vv) != 1 {
		t.Fatalf("original mutated through clone: %v", vv)
	}
}
