package writer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ehrlich-b/auditfwd/internal/audit"
)

// OMSEventWriter reconstructs the classic auditd line format
// (`type=X msg=audit(secs.msecs:serial): field=value ...`) one line per
// record, which is what the OMS agent on the other end of the socket
// expects to tail.
type OMSEventWriter struct{}

func (OMSEventWriter) WriteEvent(event *audit.Event, w io.Writer) (WriteStatus, error) {
	var buf bytes.Buffer
	for _, rec := range event.Records {
		fmt.Fprintf(&buf, "type=%s msg=audit(%d.%03d:%d):",
			audit.RecordTypeToName(rec.Type), event.ID.Seconds, event.ID.Milliseconds, event.ID.Serial)
		for _, f := range rec.Fields {
			fmt.Fprintf(&buf, " %s=%s", f.Name, f.Value)
		}
		buf.WriteByte('\n')
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(buf.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return WriteFail, err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return WriteFail, err
	}
	return WriteOK, nil
}

func (OMSEventWriter) ReadAck(r io.Reader) (audit.EventId, ReadStatus, error) {
	return decodeAck(r)
}

var _ EventWriter = OMSEventWriter{}
