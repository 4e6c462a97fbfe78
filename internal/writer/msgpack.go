package writer

import (
	"encoding/binary"
	"io"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/ehrlich-b/auditfwd/internal/audit"
)

type msgpackField struct {
	Name  string `codec:"name"`
	Value string `codec:"value"`
}

type msgpackRecord struct {
	RecordType string         `codec:"recordType"`
	Fields     []msgpackField `codec:"fields"`
}

type msgpackEvent struct {
	Seconds      uint32          `codec:"seconds"`
	Milliseconds uint32          `codec:"milliseconds"`
	Serial       uint64          `codec:"serial"`
	Records      []msgpackRecord `codec:"records"`
}

// MsgpackEventWriter serializes each event with MessagePack, a more
// compact alternative to JSON for high-volume downstream consumers.
type MsgpackEventWriter struct{}

var msgpackHandle codec.MsgpackHandle

func (MsgpackEventWriter) WriteEvent(event *audit.Event, w io.Writer) (WriteStatus, error) {
	me := msgpackEvent{
		Seconds:      event.ID.Seconds,
		Milliseconds: event.ID.Milliseconds,
		Serial:       event.ID.Serial,
		Records:      make([]msgpackRecord, 0, len(event.Records)),
	}
	for _, rec := range event.Records {
		mr := msgpackRecord{RecordType: audit.RecordTypeToName(rec.Type), Fields: make([]msgpackField, 0, len(rec.Fields))}
		for _, f := range rec.Fields {
			mr.Fields = append(mr.Fields, msgpackField{Name: f.Name, Value: f.Value})
		}
		me.Records = append(me.Records, mr)
	}

	var data []byte
	enc := codec.NewEncoderBytes(&data, &msgpackHandle)
	if err := enc.Encode(me); err != nil {
		return WriteFail, err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return WriteFail, err
	}
	if _, err := w.Write(data); err != nil {
		return WriteFail, err
	}
	return WriteOK, nil
}

func (MsgpackEventWriter) ReadAck(r io.Reader) (audit.EventId, ReadStatus, error) {
	return decodeAck(r)
}

var _ EventWriter = MsgpackEventWriter{}
