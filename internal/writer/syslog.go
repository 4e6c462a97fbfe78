package writer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	gsyslog "github.com/hashicorp/go-syslog"

	"github.com/ehrlich-b/auditfwd/internal/audit"
)

// SyslogEventWriter writes each event directly to the local syslog
// daemon instead of a downstream socket — the one format that bypasses
// Output's connect/reconnect machinery entirely, since gsyslog owns its
// own connection to the syslog transport.
type SyslogEventWriter struct {
	logger gsyslog.Syslogger
}

// NewSyslogEventWriter opens a connection to syslog tagged as tag.
func NewSyslogEventWriter(tag string) (*SyslogEventWriter, error) {
	logger, err := gsyslog.NewLogger(gsyslog.LOG_INFO, "DAEMON", tag)
	if err != nil {
		return nil, err
	}
	return &SyslogEventWriter{logger: logger}, nil
}

func (s *SyslogEventWriter) WriteEvent(event *audit.Event, _ io.Writer) (WriteStatus, error) {
	for _, rec := range event.Records {
		var sb strings.Builder
		fmt.Fprintf(&sb, "type=%s msg=audit(%d.%03d:%d):",
			audit.RecordTypeToName(rec.Type), event.ID.Seconds, event.ID.Milliseconds, event.ID.Serial)
		for _, f := range rec.Fields {
			fmt.Fprintf(&sb, " %s=%s", f.Name, f.Value)
		}
		if err := s.logger.WriteLevel(gsyslog.LOG_INFO, []byte(sb.String())); err != nil {
			return WriteFail, err
		}
	}
	return WriteOK, nil
}

// ReadAck always fails: syslog is a one-way sink, so ack mode must
// never be paired with this writer.
func (s *SyslogEventWriter) ReadAck(io.Reader) (audit.EventId, ReadStatus, error) {
	return audit.EventId{}, ReadFail, errors.New("writer: syslog does not support acknowledgements")
}

var _ EventWriter = (*SyslogEventWriter)(nil)
