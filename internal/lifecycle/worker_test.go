package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunnable struct {
	running    atomic.Bool
	stopping   atomic.Bool
	stopped    atomic.Bool
	runEntered chan struct{}
}

func newFakeRunnable() *fakeRunnable {
	return &fakeRunnable{runEntered: make(chan struct{}, 1)}
}

func (f *fakeRunnable) Run(ctx context.Context) {
	f.running.Store(true)
	f.runEntered <- struct{}{}
	<-ctx.Done()
	f.running.Store(false)
}

func (f *fakeRunnable) OnStopping() { f.stopping.Store(true) }
func (f *fakeRunnable) OnStop()     { f.stopped.Store(true) }

func TestWorkerStartStop(t *testing.T) {
	f := newFakeRunnable()
	w := NewWorker(f)

	w.Start()
	select {
	case <-f.runEntered:
	case <-time.After(time.Second):
		t.Fatal("Run never started")
	}

	if w.IsStopping() {
		t.Fatal("IsStopping should be false immediately after Start")
	}

	w.Stop()

	if !f.stopping.Load() {
		t.Error("OnStopping was not called")
	}
	if !f.stopped.Load() {
		t.Error("OnStop was not called")
	}
	if f.running.Load() {
		t.Error("Run should have observed context cancellation and returned")
	}
}

func TestWorkerStopBeforeStartIsNoOp(t *testing.T) {
	f := newFakeRunnable()
	w := NewWorker(f)
	w.Stop() // must not panic or block
	if f.stopped.Load() {
		t.Error("OnStop should not fire for a worker that never started")
	}
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	f := newFakeRunnable()
	w := NewWorker(f)
	w.Start()
	<-f.runEntered
	w.Stop()
	w.Stop() // second call must not block or re-fire hooks incorrectly
}

func TestWorkerOnStoppingFiresBeforeRunReturns(t *testing.T) {
	order := make(chan string, 2)
	f := &orderedRunnable{order: order, started: make(chan struct{})}
	w := NewWorker(f)
	w.Start()
	<-f.started
	w.Stop()

	first := <-order
	if first != "stopping" {
		t.Errorf("expected OnStopping to fire before Run observes cancellation, got %q first", first)
	}
}

type orderedRunnable struct {
	order   chan string
	started chan struct{}
}

func (o *orderedRunnable) Run(ctx context.Context) {
	close(o.started)
	<-ctx.Done()
	o.order <- "run-returned"
}

func (o *orderedRunnable) OnStopping() { o.order <- "stopping" }
func (o *orderedRunnable) OnStop()     {}
