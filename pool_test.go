package sluice

import (
	"sync"
	"testing"
	"time"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(2, 8)
	defer p.Close()

	var mu sync.Mutex
	seen := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		ok := p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			seen++
			mu.Unlock()
		})
		if !ok {
			wg.Done()
			t.Fatalf("Submit %d rejected", i)
		}
	}
	wg.Wait()
	if seen != 10 {
		t.Fatalf("ran %d tasks, want 10", seen)
	}
}

func TestPool_SaturationFailsFast(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	// Occupy the single worker, then the single queue slot.
	if !p.Submit(func() { close(started); <-release }) {
		t.Fatal("first Submit rejected")
	}
	// Wait for the task to actually run: only then has the worker dequeued
	// it and freed the queue slot for the next one.
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the blocking task")
	}
	if !p.Submit(func() {}) {
		t.Fatal("queue-slot Submit rejected")
	}
	if p.Submit(func() {}) {
		t.Fatal("Submit beyond capacity accepted; want fail-fast")
	}

	close(release)
	deadline := time.After(2 * time.Second)
	for p.InFlight() != 0 {
		select {
		case <-deadline:
			t.Fatalf("InFlight = %d after release, want 0", p.InFlight())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestPool_CloseIdempotentAndDrains(t *testing.T) {
	p := NewPool(1, 4)
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		if !p.Submit(func() { done <- struct{}{} }) {
			t.Fatalf("Submit %d rejected", i)
		}
	}
	p.Close()
	p.Close()
	if len(done) != 3 {
		t.Fatalf("Close drained %d tasks, want 3", len(done))
	}
	if p.Submit(func() {}) {
		t.Fatal("Submit after Close accepted")
	}
}
