// Package memqueue is an in-memory reference implementation of
// wireq.Queue: a fixed-capacity byte ring holding length-prefixed items,
// addressed by cursor = absolute write offset. It loses its backlog on
// restart, which is the accepted trade-off for a queue with no file
// backing. The ring's data region is sharded under independent
// sync.RWMutexes, adapted from the block-backend sharding technique used
// elsewhere in this module's corpus so that Get and Put never contend on
// a single lock for the payload bytes — only the small head/tail/offset
// metadata is single-mutex-guarded.
package memqueue

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ehrlich-b/auditfwd/internal/wireq"
)

// ShardSize bounds how much of the ring a single shard lock covers.
const ShardSize = 64 * 1024

const lengthPrefixSize = 4

// Queue is a bounded in-memory ring buffer implementing wireq.Queue.
type Queue struct {
	data   []byte
	shards []sync.RWMutex
	cap    int

	mu          sync.Mutex
	cond        *sync.Cond
	writeOffset uint64 // absolute bytes ever written; cursor values are absolute offsets
	readLimit   uint64 // writeOffset is always >= readLimit; readLimit tracks what's been durably appended
	interrupted bool
}

// New creates a ring with the given byte capacity.
func New(capacity int) *Queue {
	numShards := (capacity + ShardSize - 1) / ShardSize
	if numShards < 1 {
		numShards = 1
	}
	q := &Queue{
		data:   make([]byte, capacity),
		shards: make([]sync.RWMutex, numShards),
		cap:    capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) shardRange(off, length int) (start, end int) {
	start = off / ShardSize
	end = (off + length - 1) / ShardSize
	if end >= len(q.shards) {
		end = len(q.shards) - 1
	}
	return start, end
}

// Put appends data as one length-prefixed item and returns its encoded
// size. It wraps the ring, overwriting the oldest bytes if the item
// pushes past capacity — callers are expected to size the ring well
// beyond their working set, matching the "durable FIFO-ish storage" the
// rest of this module treats the queue as providing.
func (q *Queue) Put(data []byte) (int, error) {
	total := lengthPrefixSize + len(data)
	frame := make([]byte, total)
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[lengthPrefixSize:], data)

	q.mu.Lock()
	off := int(q.writeOffset % uint64(q.cap))
	q.mu.Unlock()

	q.writeAt(off, frame)

	q.mu.Lock()
	q.writeOffset += uint64(total)
	q.readLimit = q.writeOffset
	q.mu.Unlock()
	q.cond.Broadcast()

	return total, nil
}

func (q *Queue) writeAt(off int, frame []byte) {
	remaining := frame
	pos := off
	for len(remaining) > 0 {
		n := len(remaining)
		if pos+n > q.cap {
			n = q.cap - pos
		}
		start, end := q.shardRange(pos, n)
		for i := start; i <= end; i++ {
			q.shards[i].Lock()
		}
		copy(q.data[pos:pos+n], remaining[:n])
		for i := start; i <= end; i++ {
			q.shards[i].Unlock()
		}
		remaining = remaining[n:]
		pos = (pos + n) % q.cap
	}
}

func (q *Queue) readAt(off, n int) []byte {
	out := make([]byte, n)
	pos := off
	remaining := n
	written := 0
	for remaining > 0 {
		chunk := remaining
		if pos+chunk > q.cap {
			chunk = q.cap - pos
		}
		start, end := q.shardRange(pos, chunk)
		for i := start; i <= end; i++ {
			q.shards[i].RLock()
		}
		copy(out[written:written+chunk], q.data[pos:pos+chunk])
		for i := start; i <= end; i++ {
			q.shards[i].RUnlock()
		}
		written += chunk
		remaining -= chunk
		pos = (pos + chunk) % q.cap
	}
	return out
}

// Get reads the item immediately after cursor, blocking up to timeout
// for one to be written.
func (q *Queue) Get(ctx context.Context, cursor wireq.Cursor, buf []byte, timeout time.Duration) (int, wireq.Cursor, wireq.Status, error) {
	start := cursorToOffset(cursor)

	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	for q.readLimit <= start {
		if q.interrupted {
			q.interrupted = false
			q.mu.Unlock()
			return 0, cursor, wireq.StatusInterrupted, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			q.mu.Unlock()
			return 0, cursor, wireq.StatusTimeout, nil
		}
		waitCh := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.cond.Broadcast()
			case <-waitCh:
			}
		}()
		timer := time.AfterFunc(remaining, q.cond.Broadcast)
		q.cond.Wait()
		timer.Stop()
		close(waitCh)
		if ctx.Err() != nil {
			q.mu.Unlock()
			return 0, cursor, wireq.StatusInterrupted, ctx.Err()
		}
	}
	q.mu.Unlock()

	lenBuf := q.readAt(int(start%uint64(q.cap)), lengthPrefixSize)
	itemLen := int(binary.BigEndian.Uint32(lenBuf))
	if itemLen > len(buf) {
		return 0, cursor, wireq.StatusBufferTooSmall, nil
	}

	payloadOff := int((start + lengthPrefixSize) % uint64(q.cap))
	payload := q.readAt(payloadOff, itemLen)
	n := copy(buf, payload)

	next := offsetToCursor(start + uint64(lengthPrefixSize+itemLen))
	return n, next, wireq.StatusOK, nil
}

// Reset drops all queued data and rewinds to Head.
func (q *Queue) Reset() error {
	q.mu.Lock()
	q.writeOffset = 0
	q.readLimit = 0
	q.mu.Unlock()
	for i := range q.data {
		q.data[i] = 0
	}
	return nil
}

// Interrupt unblocks exactly one in-progress Get with StatusInterrupted.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	q.interrupted = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func cursorToOffset(c wireq.Cursor) uint64 {
	return binary.BigEndian.Uint64(c[:8])
}

func offsetToCursor(off uint64) wireq.Cursor {
	var c wireq.Cursor
	binary.BigEndian.PutUint64(c[:8], off)
	return c
}

var _ wireq.Queue = (*Queue)(nil)
