// Package writer formats parsed events for a downstream peer and reads
// back its acknowledgements. Every format (oms, json, msgpack, raw,
// syslog) implements the same narrow EventWriter capability so Output
// never branches on format after Load chooses one.
package writer

import (
	"encoding/binary"
	"io"

	"github.com/ehrlich-b/auditfwd/internal/audit"
)

// WriteStatus is the outcome of one WriteEvent call.
type WriteStatus int

const (
	// WriteOK means the event was transmitted.
	WriteOK WriteStatus = iota
	// WriteNoop means the formatter deliberately produced no output for
	// this event (e.g. content-based filtering inside the formatter
	// itself, distinct from the pipeline's Filter stage).
	WriteNoop
	// WriteFail means the connection is lost or the formatter hit a
	// fatal error; the caller should treat this like a closed writer.
	WriteFail
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "OK"
	case WriteNoop:
		return "NOOP"
	case WriteFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// ReadStatus is the outcome of one ReadAck call.
type ReadStatus int

const (
	ReadOK ReadStatus = iota
	ReadFail
)

// EventWriter formats events onto a connection and parses acks back off
// it. Implementations own their own wire format entirely; Output only
// ever calls WriteEvent and (in ack mode) ReadAck.
type EventWriter interface {
	WriteEvent(event *audit.Event, w io.Writer) (WriteStatus, error)
	ReadAck(r io.Reader) (audit.EventId, ReadStatus, error)
}

// Filter decides whether an event should be suppressed before it ever
// reaches an EventWriter.
type Filter interface {
	IsFiltered(event *audit.Event) bool
}

// ackFrameSize is the wire size of one ack: EventId as
// seconds(4) + milliseconds(4) + serial(8). Every format shares this
// ack encoding; only the forward event encoding differs per format.
const ackFrameSize = 16

// decodeAck reads one ack frame, shared by every EventWriter
// implementation in this package.
func decodeAck(r io.Reader) (audit.EventId, ReadStatus, error) {
	var buf [ackFrameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return audit.EventId{}, ReadFail, err
	}
	return audit.EventId{
		Seconds:      binary.BigEndian.Uint32(buf[0:4]),
		Milliseconds: binary.BigEndian.Uint32(buf[4:8]),
		Serial:       binary.BigEndian.Uint64(buf[8:16]),
	}, ReadOK, nil
}
