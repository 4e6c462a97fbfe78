package writer

import (
	"encoding/binary"
	"io"

	"github.com/ehrlich-b/auditfwd/internal/audit"
)

// RawEventWriter transmits the exact frame bytes ParseEvent decoded,
// length-prefixed, with no reformatting. Acks are read with the shared
// 16-byte ack frame, like every other socket format.
type RawEventWriter struct{}

func (RawEventWriter) WriteEvent(event *audit.Event, w io.Writer) (WriteStatus, error) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(event.Raw)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return WriteFail, err
	}
	if _, err := w.Write(event.Raw); err != nil {
		return WriteFail, err
	}
	return WriteOK, nil
}

func (RawEventWriter) ReadAck(r io.Reader) (audit.EventId, ReadStatus, error) {
	return decodeAck(r)
}

var _ EventWriter = RawEventWriter{}
