// Package lifecycle provides the one-goroutine-per-component run loop that
// CursorWriter, AckReader, and Output are all built from: a context
// carrying a stopping flag, a single background goroutine, and ordered
// shutdown hooks.
package lifecycle

import (
	"context"
	"sync"
)

// Runnable is the behavior a Worker drives. Run executes on the
// background goroutine until ctx is cancelled or it returns on its own.
// OnStopping fires synchronously from Stop, before the goroutine is
// necessarily done, and must only perform non-blocking wakeups (closing a
// channel, signalling a condition variable) — it must never block waiting
// on Run to observe it. OnStop fires after Run has returned, from the
// same goroutine that called Stop.
type Runnable interface {
	Run(ctx context.Context)
	OnStopping()
	OnStop()
}

// Worker drives a Runnable on its own goroutine with Start/Stop/
// IsStopping semantics, matching the "thread lifecycle framework" every
// long-running component in this module is built from.
type Worker struct {
	target Runnable

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewWorker wraps target in a Worker. Start must be called before any
// other method is meaningful.
func NewWorker(target Runnable) *Worker {
	return &Worker{target: target}
}

// Start launches the background goroutine. Calling Start twice without an
// intervening Stop is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.ctx = ctx
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true

	done := w.done
	go func() {
		defer close(done)
		w.target.Run(ctx)
	}()
}

// IsStopping reports whether Stop has been called. Run implementations
// poll this (or select on the context passed to Run) to notice shutdown.
func (w *Worker) IsStopping() bool {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		return false
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Stop signals shutdown, waits for Run to return, then runs OnStop. It is
// safe to call Stop more than once or before Start; both are no-ops after
// the first successful stop.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.target.OnStopping()
	cancel()
	<-done
	w.target.OnStop()

	w.mu.Lock()
	w.started = false
	w.mu.Unlock()
}
