package memqueue

import (
	"context"
	"testing"
	"time"

	"github.com/ehrlich-b/auditfwd/internal/wireq"
)

func TestPutGetRoundTrip(t *testing.T) {
	q := New(4096)
	if _, err := q.Put([]byte("hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	buf := make([]byte, 64)
	n, next, status, err := q.Get(context.Background(), wireq.Head, buf, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if status != wireq.StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("expected payload %q, got %q", "hello", buf[:n])
	}
	if next == wireq.Head {
		t.Error("next cursor should have advanced past Head")
	}
}

func TestGetTimesOutWhenEmpty(t *testing.T) {
	q := New(4096)
	buf := make([]byte, 64)
	_, _, status, err := q.Get(context.Background(), wireq.Head, buf, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if status != wireq.StatusTimeout {
		t.Fatalf("expected StatusTimeout, got %v", status)
	}
}

func TestGetMultipleItemsInOrder(t *testing.T) {
	q := New(4096)
	q.Put([]byte("first"))
	q.Put([]byte("second"))

	buf := make([]byte, 64)
	n, next, status, err := q.Get(context.Background(), wireq.Head, buf, 50*time.Millisecond)
	if err != nil || status != wireq.StatusOK {
		t.Fatalf("first Get failed: status=%v err=%v", status, err)
	}
	if string(buf[:n]) != "first" {
		t.Fatalf("expected first, got %q", buf[:n])
	}

	n, _, status, err = q.Get(context.Background(), next, buf, 50*time.Millisecond)
	if err != nil || status != wireq.StatusOK {
		t.Fatalf("second Get failed: status=%v err=%v", status, err)
	}
	if string(buf[:n]) != "second" {
		t.Fatalf("expected second, got %q", buf[:n])
	}
}

func TestGetBufferTooSmall(t *testing.T) {
	q := New(4096)
	q.Put([]byte("a long enough payload"))

	buf := make([]byte, 4)
	_, _, status, err := q.Get(context.Background(), wireq.Head, buf, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if status != wireq.StatusBufferTooSmall {
		t.Fatalf("expected StatusBufferTooSmall, got %v", status)
	}
}

func TestInterruptUnblocksGet(t *testing.T) {
	q := New(4096)
	buf := make([]byte, 64)

	done := make(chan wireq.Status, 1)
	go func() {
		_, _, status, _ := q.Get(context.Background(), wireq.Head, buf, time.Second)
		done <- status
	}()

	time.Sleep(20 * time.Millisecond)
	q.Interrupt()

	select {
	case status := <-done:
		if status != wireq.StatusInterrupted {
			t.Errorf("expected StatusInterrupted, got %v", status)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Interrupt")
	}
}

func TestResetDropsContents(t *testing.T) {
	q := New(4096)
	q.Put([]byte("stale"))
	if err := q.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	buf := make([]byte, 64)
	_, _, status, _ := q.Get(context.Background(), wireq.Head, buf, 20*time.Millisecond)
	if status != wireq.StatusTimeout {
		t.Fatalf("expected empty queue after Reset, got status %v", status)
	}
}
