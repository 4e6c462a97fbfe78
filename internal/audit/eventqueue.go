package audit

import (
	"encoding/binary"
	"fmt"

	"github.com/ehrlich-b/auditfwd/internal/wireq"
)

// wireFormatVersion is stamped into every frame's header so a reader can
// reject events from an incompatible writer outright.
const wireFormatVersion uint16 = 1

// headerSize is the length, in bytes, of the (version, size) prefix
// Output validates against the number of bytes Queue.Get actually read.
const headerSize = 6

// EventQueue adapts a wireq.Queue into an EventBuilder: it owns a
// resizable scratch buffer, accumulates one event's serialized bytes
// across the Begin/Add/End calls, and commits by calling Queue.Put. It
// collapses the original implementation's allocator/builder split (a
// layer that exists there to let multiple serializers share one buffer)
// into a single type, since Go's builder interface already lets callers
// substitute a different EventQueue for a different wire format instead.
type EventQueue struct {
	queue wireq.Queue

	buf []byte // in-progress payload, header-sized gap reserved at the front

	id             EventId
	numRecords     uint16
	recordsWritten uint16

	inRecord       bool
	fieldsExpected uint16
	fieldsWritten  uint16
}

// NewEventQueue creates an EventBuilder that commits completed events to
// queue.
func NewEventQueue(queue wireq.Queue) *EventQueue {
	return &EventQueue{queue: queue}
}

// BeginEvent starts accumulating a new event. Calling BeginEvent while
// another event is in progress is a programming error.
func (q *EventQueue) BeginEvent(id EventId, numRecords uint16) error {
	q.id = id
	q.numRecords = numRecords
	q.recordsWritten = 0
	q.inRecord = false

	q.buf = q.buf[:0]
	q.grow(headerSize)
	q.appendUint32(id.Seconds)
	q.appendUint32(id.Milliseconds)
	q.appendUint64(id.Serial)
	q.appendUint16(numRecords)
	return nil
}

// BeginRecord starts one record within the current event.
func (q *EventQueue) BeginRecord(rtype RecordType, numFields uint16) error {
	if q.inRecord {
		return fmt.Errorf("audit: BeginRecord called while a record is already open")
	}
	q.appendUint32(uint32(rtype))
	q.appendUint16(numFields)
	q.inRecord = true
	q.fieldsExpected = numFields
	q.fieldsWritten = 0
	return nil
}

// AddField appends one field to the currently open record.
func (q *EventQueue) AddField(name, value string, ftype FieldType) error {
	if !q.inRecord {
		return fmt.Errorf("audit: AddField called with no open record")
	}
	q.appendString(name)
	q.appendString(value)
	q.appendUint8(uint8(ftype))
	q.fieldsWritten++
	return nil
}

// EndRecord closes the current record.
func (q *EventQueue) EndRecord() error {
	if !q.inRecord {
		return fmt.Errorf("audit: EndRecord called with no open record")
	}
	if q.fieldsWritten != q.fieldsExpected {
		return fmt.Errorf("audit: record declared %d fields, got %d", q.fieldsExpected, q.fieldsWritten)
	}
	q.inRecord = false
	q.recordsWritten++
	return nil
}

// EndEvent finalizes the event and commits it to the underlying queue.
func (q *EventQueue) EndEvent() error {
	if q.recordsWritten != q.numRecords {
		return fmt.Errorf("audit: event declared %d records, got %d", q.numRecords, q.recordsWritten)
	}
	payloadSize := uint32(len(q.buf) - headerSize)
	binary.BigEndian.PutUint16(q.buf[0:2], wireFormatVersion)
	binary.BigEndian.PutUint32(q.buf[2:6], payloadSize)
	_, err := q.queue.Put(q.buf)
	q.buf = q.buf[:0]
	return err
}

// CancelEvent discards the in-progress event without committing it.
func (q *EventQueue) CancelEvent() {
	q.buf = q.buf[:0]
	q.inRecord = false
}

func (q *EventQueue) grow(n int) {
	q.buf = append(q.buf, make([]byte, n)...)
}

func (q *EventQueue) appendUint8(v uint8)   { q.buf = append(q.buf, v) }
func (q *EventQueue) appendUint16(v uint16) { q.buf = binary.BigEndian.AppendUint16(q.buf, v) }
func (q *EventQueue) appendUint32(v uint32) { q.buf = binary.BigEndian.AppendUint32(q.buf, v) }
func (q *EventQueue) appendUint64(v uint64) { q.buf = binary.BigEndian.AppendUint64(q.buf, v) }

func (q *EventQueue) appendString(s string) {
	q.appendUint32(uint32(len(s)))
	q.buf = append(q.buf, s...)
}

var _ EventBuilder = (*EventQueue)(nil)
