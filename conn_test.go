package sluice

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"sluice.dev/go/sluice/internal/http1"
	"sluice.dev/go/sluice/obs"
)

// wireLog is a transport that records every frame written to it and serves
// no reads.
type wireLog struct {
	mu     sync.Mutex
	frames [][]byte
}

func (w *wireLog) Read(p []byte) (int, error) { return 0, io.EOF }

func (w *wireLog) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.frames = append(w.frames, append([]byte(nil), p...))
	w.mu.Unlock()
	return len(p), nil
}

func (w *wireLog) CloseWrite() error                { return nil }
func (w *wireLog) Close() error                     { return nil }
func (w *wireLog) SetReadDeadline(time.Time) error  { return nil }
func (w *wireLog) SetWriteDeadline(time.Time) error { return nil }
func (w *wireLog) RemoteAddr() net.Addr             { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (w *wireLog) written() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]byte, len(w.frames))
	copy(out, w.frames)
	return out
}

func testConn(t *testing.T) (*conn, *wireLog) {
	t.Helper()
	w := &wireLog{}
	cfg := Config{}
	s := &Server{cfg: cfg.withDefaults(), log: obs.NopLogger{}, meter: obs.NopMeter{}}
	return newConn(s, w), w
}

func TestConn_ContinueWrittenOnce(t *testing.T) {
	c, w := testConn(t)
	c.state = stateAwaitingResponse

	c.sendContinue()
	c.sendContinue()

	frames := w.written()
	if len(frames) != 1 {
		t.Fatalf("interim frames = %d, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], http1.Continue100) {
		t.Fatalf("frame = %q", frames[0])
	}
}

func TestConn_ContinueSkippedOnceHeadIsOut(t *testing.T) {
	c, w := testConn(t)
	c.state = stateAwaitingResponse
	c.markHeadWritten()

	c.sendContinue()

	if frames := w.written(); len(frames) != 0 {
		t.Fatalf("interim frame written after response head: %q", frames)
	}
}

func TestConn_ContentAfterTeardownDropped(t *testing.T) {
	c, _ := testConn(t)
	c.state = stateAwaitingResponse
	c.body = NewBodyChannel(4)
	c.teardown()

	if c.onData([]byte("late"), true) {
		t.Fatal("onData accepted content on a closed connection")
	}
}
