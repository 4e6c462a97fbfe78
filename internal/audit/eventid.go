// Package audit implements the RawEventAccumulator: the bounded,
// time-aware coalescing cache that assembles multi-record audit events
// (notably EXECVE argument fragmentation) into one logical Event before
// handing it to the durable queue.
package audit

import "fmt"

// EventId is the monotone identifier a record's originating event
// carries. Equality is full-tuple, matching the audit subsystem's
// (timestamp, serial) addressing scheme.
type EventId struct {
	Seconds      uint32
	Milliseconds uint32
	Serial       uint64
}

func (id EventId) String() string {
	return fmt.Sprintf("%d.%03d:%d", id.Seconds, id.Milliseconds, id.Serial)
}
