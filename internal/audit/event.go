package audit

import (
	"encoding/binary"
	"errors"

	auditfwd "github.com/ehrlich-b/auditfwd"
)

var errTruncated = errors.New("audit: truncated frame")

// Field is one decoded name/value pair within an Event record.
type Field struct {
	Name  string
	Value string
	Type  FieldType
}

// EventRecord is one decoded record within a parsed Event. Unlike the
// Record interface RawEvent consumes while assembling an event, this is
// the read-side representation a Writer formats for transmission.
type EventRecord struct {
	Type   RecordType
	Fields []Field
}

// Event is the decoded form of one frame read from the durable queue:
// an EventId plus its ordered records. It is immutable once parsed.
type Event struct {
	Version uint16
	ID      EventId
	Records []EventRecord

	// Raw is the exact frame ParseEvent decoded, kept for writers (like
	// the raw passthrough format) that transmit bytes as received
	// instead of re-serializing the decoded records.
	Raw []byte
}

// ParseEvent decodes one frame as produced by EventQueue.EndEvent. frame
// must be exactly the n-byte slice Queue.Get returned — ParseEvent
// checks the frame's self-reported size against len(frame) and treats
// any mismatch as queue corruption, matching the Output pipeline's
// frame-integrity check against the bytes actually read.
func ParseEvent(frame []byte) (*Event, error) {
	if len(frame) < headerSize {
		return nil, auditfwd.NewError("ParseEvent", auditfwd.ErrCodeCorruptFrame, "frame shorter than header")
	}
	version := binary.BigEndian.Uint16(frame[0:2])
	declaredSize := binary.BigEndian.Uint32(frame[2:6])
	payload := frame[headerSize:]
	if int(declaredSize) != len(payload) {
		return nil, auditfwd.NewError("ParseEvent", auditfwd.ErrCodeCorruptFrame, "declared size does not match bytes read")
	}

	r := &byteReader{buf: payload}
	id := EventId{
		Seconds:      r.uint32(),
		Milliseconds: r.uint32(),
		Serial:       r.uint64(),
	}
	numRecords := r.uint16()
	if r.err != nil {
		return nil, auditfwd.NewError("ParseEvent", auditfwd.ErrCodeCorruptFrame, "truncated event header")
	}

	records := make([]EventRecord, 0, numRecords)
	for i := uint16(0); i < numRecords; i++ {
		rtype := RecordType(r.uint32())
		numFields := r.uint16()
		fields := make([]Field, 0, numFields)
		for j := uint16(0); j < numFields; j++ {
			name := r.string()
			value := r.string()
			ftype := FieldType(r.uint8())
			fields = append(fields, Field{Name: name, Value: value, Type: ftype})
		}
		if r.err != nil {
			return nil, auditfwd.NewError("ParseEvent", auditfwd.ErrCodeCorruptFrame, "truncated event record")
		}
		records = append(records, EventRecord{Type: rtype, Fields: fields})
	}

	return &Event{Version: version, ID: id, Records: records, Raw: frame}, nil
}

// byteReader sequentially decodes the wire format eventqueue.go writes.
// Once err is set every subsequent read is a no-op, so callers can defer
// the single error check to the end of a decode sequence.
type byteReader struct {
	buf []byte
	off int
	err error
}

func (r *byteReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.buf) {
		r.err = errTruncated
		return false
	}
	return true
}

func (r *byteReader) uint8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *byteReader) uint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *byteReader) uint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *byteReader) uint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *byteReader) string() string {
	n := r.uint32()
	if !r.need(int(n)) {
		return ""
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s
}
