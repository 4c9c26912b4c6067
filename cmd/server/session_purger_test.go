package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time {
	return f.ch
}

func (f *fakeTicker) Stop() {
	f.stopped = true
}

type countingPurger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *countingPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestSessionPurgeWorkerPurgesOnTick(t *testing.T) {
	ticker := &fakeTicker{ch: make(chan time.Time)}
	purger := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runSessionPurgeWorkerWithTicker(ctx, nil, purger, time.Minute, func(time.Duration) purgeTicker {
			return ticker
		})
		close(done)
	}()

	ticker.ch <- time.Now()
	ticker.ch <- time.Now()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	if got := purger.count(); got != 2 {
		t.Fatalf("expected 2 purge calls, got %d", got)
	}
	if !ticker.stopped {
		t.Fatal("expected ticker to be stopped")
	}
}

func TestSessionPurgeWorkerLogsErrors(t *testing.T) {
	ticker := &fakeTicker{ch: make(chan time.Time)}
	purger := &countingPurger{err: errors.New("store offline")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runSessionPurgeWorkerWithTicker(ctx, nil, purger, time.Minute, func(time.Duration) purgeTicker {
			return ticker
		})
		close(done)
	}()

	ticker.ch <- time.Now()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	if got := purger.count(); got != 1 {
		t.Fatalf("expected purge to be attempted despite errors, got %d calls", got)
	}
}

func TestSessionPurgeWorkerRequiresInterval(t *testing.T) {
	purger := &countingPurger{}
	called := false

	runSessionPurgeWorkerWithTicker(context.Background(), nil, purger, 0, func(time.Duration) purgeTicker {
		called = true
		return &fakeTicker{ch: make(chan time.Time)}
	})

	if called {
		t.Fatal("expected no ticker for zero interval")
	}
	if purger.count() != 0 {
		t.Fatal("expected no purge calls for zero interval")
	}
}

func TestSessionPurgeWorkerRequiresPurger(t *testing.T) {
	runSessionPurgeWorkerWithTicker(context.Background(), nil, nil, time.Minute, func(time.Duration) purgeTicker {
		t.Fatal("expected no ticker without a purger")
		return nil
	})
}
