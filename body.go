package sluice

import (
	"io"
	"sync"
)

// flowControl receives backpressure transitions from a BodyChannel. The
// engine binds the connection's read gate here; pauseReads fires when a push
// fills the channel, resumeReads when a take frees capacity again. Both are
// invoked with the channel lock held so the transitions observe the exact
// occupancy order.
type flowControl interface {
	pauseReads()
	resumeReads()
}

// BodyChannel is a bounded, closable FIFO of body chunks bridging the
// connection's read loop (producer) and handler or writer code running on
// the worker pool (consumer). Closing is idempotent and may be done by
// either side; chunks buffered before the close remain takeable until
// drained, after which Take reports end-of-stream.
type BodyChannel struct {
	mu      sync.Mutex
	takers  *sync.Cond
	pushers *sync.Cond
	buf     [][]byte
	head    int
	count   int
	closed  bool
	flow    flowControl
	paused  bool
}

// NewBodyChannel returns a channel holding at most capacity chunks.
// Non-positive capacities fall back to DefaultInBuf.
func NewBodyChannel(capacity int) *BodyChannel {
	if capacity <= 0 {
		capacity = DefaultInBuf
	}
	b := &BodyChannel{buf: make([][]byte, capacity)}
	b.takers = sync.NewCond(&b.mu)
	b.pushers = sync.NewCond(&b.mu)
	return b
}

func (b *BodyChannel) bindFlow(f flowControl) {
	b.mu.Lock()
	b.flow = f
	b.mu.Unlock()
}

// Push appends one chunk. It reports false once the channel is closed.
// Pushing into a full channel blocks until a take frees a slot or the
// channel closes; the engine's read loop never does this because the flow
// gate pauses reads before the channel can overflow.
func (b *BodyChannel) Push(p []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.count == len(b.buf) && !b.closed {
		b.pushers.Wait()
	}
	if b.closed {
		return false
	}
	b.buf[(b.head+b.count)%len(b.buf)] = p
	b.count++
	if b.count == len(b.buf) && !b.paused && b.flow != nil {
		b.paused = true
		b.flow.pauseReads()
	}
	b.takers.Signal()
	return true
}

// Take removes the oldest chunk, blocking while the channel is open and
// empty. The second result is false exactly when the channel is closed and
// fully drained. Take must only be called off the connection's read loop.
func (b *BodyChannel) Take() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.count == 0 && !b.closed {
		b.takers.Wait()
	}
	if b.count == 0 {
		return nil, false
	}
	p := b.buf[b.head]
	b.buf[b.head] = nil
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	if b.paused && b.flow != nil {
		b.paused = false
		b.flow.resumeReads()
	}
	b.pushers.Signal()
	return p, true
}

// Close marks the channel closed. Blocked takers wake with end-of-stream
// once the buffer drains, blocked pushers wake immediately, and a paused
// producer gate is released so teardown cannot strand the read loop.
// Closing twice is a no-op.
func (b *BodyChannel) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.paused && b.flow != nil {
		b.paused = false
		b.flow.resumeReads()
	}
	b.takers.Broadcast()
	b.pushers.Broadcast()
}

// Closed reports whether Close has been called.
func (b *BodyChannel) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len reports current occupancy.
func (b *BodyChannel) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap reports the configured capacity.
func (b *BodyChannel) Cap() int {
	return len(b.buf)
}

// Reader adapts the channel to an io.Reader that consumes chunks via Take
// and returns io.EOF at end-of-stream. Like Take it must not be used from
// the connection's read loop.
func (b *BodyChannel) Reader() io.Reader {
	return &bodyReader{b: b}
}

type bodyReader struct {
	b   *BodyChannel
	cur []byte
}

func (r *bodyReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		chunk, ok := r.b.Take()
		if !ok {
			return 0, io.EOF
		}
		r.cur = chunk
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}
