package sluice

import (
	"sync"
	"sync/atomic"
)

// Executor runs engine tasks that are allowed to block: handler invocations,
// body takes, response writes. Submit reports false when the executor cannot
// accept more work; the engine translates that to a 503 and closes the
// connection, so admission control is the executor's capacity.
type Executor interface {
	Submit(task func()) bool
	Close()
}

// Pool is the built-in Executor: a fixed set of workers fed from a bounded
// FIFO queue. Submit never blocks; it fails fast when the queue is full.
type Pool struct {
	mu       sync.RWMutex
	tasks    chan func()
	closed   bool
	inflight atomic.Int64
	wg       sync.WaitGroup
}

// NewPool starts a pool of workers goroutines behind a queue-slot buffer.
// Non-positive sizes fall back to DefaultWorkers and DefaultQueue.
func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queue <= 0 {
		queue = DefaultQueue
	}
	p := &Pool{tasks: make(chan func(), queue)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit queues task for execution. It reports false if the pool is closed
// or the queue is full.
func (p *Pool) Submit(task func()) bool {
	if task == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.inflight.Add(1)
	wrapped := func() {
		defer p.inflight.Add(-1)
		task()
	}
	select {
	case p.tasks <- wrapped:
		return true
	default:
		p.inflight.Add(-1)
		return false
	}
}

// InFlight reports queued plus running tasks.
func (p *Pool) InFlight() int {
	return int(p.inflight.Load())
}

// Close stops intake, lets the workers drain the queue, and waits for them.
// Closing twice is a no-op.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
