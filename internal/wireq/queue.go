// Package wireq defines the durable FIFO-ish queue this module consumes
// as a collaborator (it does not implement queue storage itself) and
// ships a reference in-memory implementation, memqueue, used by tests and
// by any deployment that accepts losing its backlog on restart.
package wireq

import (
	"context"
	"time"

	"github.com/ehrlich-b/auditfwd/internal/constants"
)

// Cursor is an opaque fixed-width position inside the durable queue;
// Get(cursor) resumes reading immediately after it. The zero value is
// Head, the beginning of the queue.
type Cursor [constants.DataSize]byte

// Head is the sentinel cursor denoting the start of the queue.
var Head = Cursor{}

// Status is the outcome of a Get call.
type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusInterrupted
	StatusBufferTooSmall
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusInterrupted:
		return "INTERRUPTED"
	case StatusBufferTooSmall:
		return "BUFFER_TOO_SMALL"
	default:
		return "UNKNOWN"
	}
}

// Queue is the durable, cursor-addressed FIFO this module's Output
// pipeline reads from and its accumulator writes to. Implementations
// must make Interrupt safe to call concurrently with a blocked Get, and
// must make Get safe to call concurrently with Put.
type Queue interface {
	// Get reads the item immediately after cursor into buf, blocking up
	// to timeout for one to arrive. next is the cursor to pass on the
	// following call. If buf is too small for the next item, Get returns
	// StatusBufferTooSmall without consuming it.
	Get(ctx context.Context, cursor Cursor, buf []byte, timeout time.Duration) (n int, next Cursor, status Status, err error)

	// Put appends data, returning the number of bytes written.
	Put(data []byte) (int, error)

	// Reset discards the queue's contents. Used when the consumer
	// believes the queue is corrupted and would rather lose data than
	// poison itself on a malformed frame.
	Reset() error

	// Interrupt unblocks any Get in progress, causing it to return
	// StatusInterrupted.
	Interrupt()
}
