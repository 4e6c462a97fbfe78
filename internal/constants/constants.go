// Package constants holds the tunable ceilings and timing defaults shared
// across the accumulator, ack queue, and output pipeline.
package constants

import "time"

// Accumulator limits. These bound a single in-progress RawEvent and the
// coalescing cache that holds many of them concurrently.
const (
	// MaxEventSize is the maximum serialized size, in bytes, of one emitted
	// event (all retained records, including stitched EXECVE fragments).
	MaxEventSize = 64 * 1024

	// MaxExecveAccumSize bounds the combined size of retained EXECVE
	// records for a single event, independent of MaxEventSize.
	MaxExecveAccumSize = 48 * 1024

	// MaxNumExecveRecords bounds how many EXECVE fragments a single event
	// accepts before each further fragment evicts a retained one: the
	// newest fragment just outside the NumExecveRHPreserve tail.
	MaxNumExecveRecords = 64

	// NumExecveRHPreserve is the number of most-recent EXECVE fragments
	// that eviction skips while more than that many are retained. "RH"
	// names the right-hand (most recent) end of the fragment list, which
	// carries the tail of the argument vector. When no more than this many
	// are retained, eviction removes the oldest retained fragment.
	NumExecveRHPreserve = 4

	// MaxCacheEntry bounds how many distinct EventIds the accumulator
	// tracks concurrently before it force-evicts the oldest, regardless of
	// completeness.
	MaxCacheEntry = 2048
)

// Ack queue / output defaults.
const (
	// DefaultAckQueueSize is used when ack_queue_size is absent from config.
	DefaultAckQueueSize = 1024

	// MinAckTimeout is the floor ack_timeout is clamped to; a configured
	// value of 0 or anything in (0, MinAckTimeout) is raised to this.
	MinAckTimeout = 1000 * time.Millisecond

	// StartSleepPeriod is the initial backoff delay in check_open's
	// reconnect loop.
	StartSleepPeriod = 1 * time.Second

	// MaxSleepPeriod caps the doubling backoff delay in check_open.
	MaxSleepPeriod = 60 * time.Second

	// QueueGetTimeout is the poll interval used for Queue.Get while
	// waiting for new events; it also doubles as the producer loop's
	// "are we stopping yet" heartbeat.
	QueueGetTimeout = 100 * time.Millisecond

	// AckQueueDrainWait is how long handle_events waits, on loop exit, for
	// in-flight acks to land before tearing the connection down.
	AckQueueDrainWait = 100 * time.Millisecond

	// CursorWriteCoalesceInterval is the sleep between CursorWriter
	// writeback passes; it coalesces bursts of UpdateCursor calls into one
	// fsync'd write.
	CursorWriteCoalesceInterval = 100 * time.Millisecond
)

// Wire format sizes.
const (
	// DataSize is the fixed on-disk width of a serialized QueueCursor.
	DataSize = 16

	// MaxItemSize is the largest single item the durable Queue accepts.
	MaxItemSize = 1 << 20
)

// CursorFileMode is the permission mode CursorWriter creates its file
// with; the cursor file often captures filesystem position state and is
// kept process-owner-only.
const CursorFileMode = 0o600
