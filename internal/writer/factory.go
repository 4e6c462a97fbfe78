package writer

import "fmt"

// NewEventWriter builds the EventWriter registered under format. tag is
// only used by the syslog format, as the process identity syslog
// messages are tagged with.
func NewEventWriter(format, tag string) (EventWriter, error) {
	switch format {
	case "oms", "":
		return OMSEventWriter{}, nil
	case "json":
		return JSONEventWriter{}, nil
	case "msgpack":
		return MsgpackEventWriter{}, nil
	case "raw":
		return RawEventWriter{}, nil
	case "syslog":
		return NewSyslogEventWriter(tag)
	default:
		return nil, fmt.Errorf("writer: unknown output format %q", format)
	}
}
