// Package ackqueue tracks outstanding downstream acknowledgements for
// in-flight events and computes the safest queue cursor to persist as
// acks land, including an auxiliary auto-cursor path for events the
// writer chose never to send.
package ackqueue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/ehrlich-b/auditfwd/internal/audit"
	"github.com/ehrlich-b/auditfwd/internal/wireq"
)

type pendingAck struct {
	seq     uint64
	eventID audit.EventId
	cursor  wireq.Cursor
}

// AckQueue is a bounded, sequence-ordered pending-ack tracker. All
// methods are safe for concurrent use.
type AckQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	maxSize int
	closed  bool
	nextSeq uint64

	eventIDs     map[audit.EventId]uint64
	cursors      *list.List // ordered by seq ascending; Value is *pendingAck
	cursorsBySeq map[uint64]*list.Element

	haveAutoCursor bool
	autoCursorSeq  uint64
	autoCursor     wireq.Cursor
}

// New creates an AckQueue that admits at most maxSize outstanding acks.
func New(maxSize int) *AckQueue {
	a := &AckQueue{
		maxSize:      maxSize,
		eventIDs:     make(map[audit.EventId]uint64),
		cursors:      list.New(),
		cursorsBySeq: make(map[uint64]*list.Element),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Add registers event_id as awaiting an ack for cursor, blocking up to
// timeout for capacity if the queue is full. It returns false only on
// timeout. If the queue is closed, the wait predicate is already
// satisfied and Add proceeds to insert regardless — callers rely on the
// writer loop exiting shortly after rather than on Add itself refusing
// new entries once closed.
func (a *AckQueue) Add(ctx context.Context, eventID audit.EventId, cursor wireq.Cursor, timeout time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for !(a.closed || len(a.eventIDs) < a.maxSize) {
		if !a.waitUntil(ctx, deadline) {
			return false
		}
	}

	seq := a.nextSeq
	a.nextSeq++
	a.eventIDs[eventID] = seq
	elem := a.cursors.PushBack(&pendingAck{seq: seq, eventID: eventID, cursor: cursor})
	a.cursorsBySeq[seq] = elem
	return true
}

// SetAutoCursor records cursor as the progress point for an event the
// writer chose not to transmit (filtered, or formatted to NOOP). A later
// SetAutoCursor replaces it. It is consumed by GetAutoCursor, or by an
// Ack once no pending ack older than it remains.
func (a *AckQueue) SetAutoCursor(cursor wireq.Cursor) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.autoCursorSeq = a.nextSeq
	a.nextSeq++
	a.autoCursor = cursor
	a.haveAutoCursor = true
}

// GetAutoCursor consumes the pending auto-cursor, if any.
func (a *AckQueue) GetAutoCursor() (wireq.Cursor, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.haveAutoCursor {
		cursor := a.autoCursor
		a.haveAutoCursor = false
		return cursor, true
	}
	return wireq.Cursor{}, false
}

// Remove cancels a pending ack, typically paired with a subsequent
// SetAutoCursor when the writer decides post-hoc to skip an event.
func (a *AckQueue) Remove(eventID audit.EventId) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seq, ok := a.eventIDs[eventID]
	if !ok {
		return
	}
	delete(a.eventIDs, eventID)
	if elem, ok := a.cursorsBySeq[seq]; ok {
		a.cursors.Remove(elem)
		delete(a.cursorsBySeq, seq)
	}
}

// Ack records an acknowledgement for eventID. It returns the furthest
// cursor now safe to persist: every pending ack whose sequence is at or
// below the acked event's sequence is retired along with it, since
// persisting the highest-acked cursor implies all lower ones are
// durable too. If the auto-cursor is newer than what Ack would
// otherwise report and nothing older is still outstanding, it is
// returned instead.
func (a *AckQueue) Ack(eventID audit.EventId) (wireq.Cursor, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var cursor wireq.Cursor
	found := false
	var seq uint64

	if s, ok := a.eventIDs[eventID]; ok {
		seq = s
		delete(a.eventIDs, eventID)
		a.cond.Broadcast()

		for {
			front := a.cursors.Front()
			if front == nil {
				break
			}
			pa := front.Value.(*pendingAck)
			if pa.seq > seq {
				break
			}
			cursor = pa.cursor
			found = true
			delete(a.eventIDs, pa.eventID)
			delete(a.cursorsBySeq, pa.seq)
			a.cursors.Remove(front)
		}
	}

	if a.haveAutoCursor {
		if !found || a.autoCursorSeq > seq {
			oldestClear := a.cursors.Len() == 0
			if !oldestClear {
				oldest := a.cursors.Front().Value.(*pendingAck)
				oldestClear = oldest.seq > a.autoCursorSeq
			}
			if oldestClear {
				found = true
				cursor = a.autoCursor
				a.haveAutoCursor = false
			}
		}
	}

	return cursor, found
}

// Wait blocks up to timeout for every pending ack to clear, returning
// true if the queue drained in time.
func (a *AckQueue) Wait(ctx context.Context, timeout time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for len(a.eventIDs) != 0 {
		if !a.waitUntil(ctx, deadline) {
			return false
		}
	}
	return true
}

// Close unblocks every waiter permanently, until the next Reset.
func (a *AckQueue) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.cond.Broadcast()
}

// Reset reinitializes all state, including next_seq, for reuse across a
// reconnect.
func (a *AckQueue) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = false
	a.eventIDs = make(map[audit.EventId]uint64)
	a.cursors = list.New()
	a.cursorsBySeq = make(map[uint64]*list.Element)
	a.nextSeq = 0
	a.haveAutoCursor = false
	a.autoCursorSeq = 0
}

// waitUntil blocks on the condition variable until woken, the deadline
// passes, or ctx is done. Must be called with a.mu held. It returns
// false if the deadline has already passed or ctx is already done,
// signaling the caller should stop waiting.
func (a *AckQueue) waitUntil(ctx context.Context, deadline time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	waitCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.cond.Broadcast()
		case <-waitCh:
		}
	}()
	timer := time.AfterFunc(remaining, a.cond.Broadcast)
	a.cond.Wait()
	timer.Stop()
	close(waitCh)

	return ctx.Err() == nil
}
