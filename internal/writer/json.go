package writer

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/ehrlich-b/auditfwd/internal/audit"
)

type jsonField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type jsonRecord struct {
	RecordType string      `json:"recordType"`
	Fields     []jsonField `json:"fields"`
}

type jsonEvent struct {
	Seconds      uint32       `json:"seconds"`
	Milliseconds uint32       `json:"milliseconds"`
	Serial       uint64       `json:"serial"`
	Records      []jsonRecord `json:"records"`
}

// JSONEventWriter serializes each event as one JSON object preceded by
// its 4-byte big-endian length, so the peer can frame reads; no
// delimiter is written between objects.
type JSONEventWriter struct{}

func (JSONEventWriter) WriteEvent(event *audit.Event, w io.Writer) (WriteStatus, error) {
	je := jsonEvent{
		Seconds:      event.ID.Seconds,
		Milliseconds: event.ID.Milliseconds,
		Serial:       event.ID.Serial,
		Records:      make([]jsonRecord, 0, len(event.Records)),
	}
	for _, rec := range event.Records {
		jr := jsonRecord{RecordType: audit.RecordTypeToName(rec.Type), Fields: make([]jsonField, 0, len(rec.Fields))}
		for _, f := range rec.Fields {
			jr.Fields = append(jr.Fields, jsonField{Name: f.Name, Value: f.Value})
		}
		je.Records = append(je.Records, jr)
	}

	data, err := json.Marshal(je)
	if err != nil {
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

func (JSONEventWriter) ReadAck(r io.Reader) (audit.EventId, ReadStatus, error) {
	return decodeAck(r)
}

var _ EventWriter = JSONEventWriter{}
