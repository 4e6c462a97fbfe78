// Command auditfwd reads audit records on stdin, one per line in
// auditd's "type=X key=val ..." text form, coalesces them into complete
// events, and forwards those events to a downstream peer over a Unix
// domain socket.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	auditfwd "github.com/ehrlich-b/auditfwd"
	"github.com/ehrlich-b/auditfwd/internal/audit"
	"github.com/ehrlich-b/auditfwd/internal/config"
	"github.com/ehrlich-b/auditfwd/internal/constants"
	"github.com/ehrlich-b/auditfwd/internal/cursor"
	"github.com/ehrlich-b/auditfwd/internal/logging"
	"github.com/ehrlich-b/auditfwd/internal/output"
	"github.com/ehrlich-b/auditfwd/internal/wireq/memqueue"
)

func main() {
	var (
		socketPath   = flag.String("socket", "", "Unix domain socket to forward events to (required unless -format=syslog)")
		format       = flag.String("format", "oms", "Output format: oms, json, msgpack, raw, syslog")
		syslogTag    = flag.String("syslog-tag", "auditfwd", "Syslog tag used when -format=syslog")
		cursorPath   = flag.String("cursor", "/var/lib/auditfwd/cursor", "Path to the persisted progress cursor")
		ackMode      = flag.Bool("ack", false, "Require downstream acknowledgement before advancing the cursor")
		ackTimeout   = flag.Duration("ack-timeout", constants.MinAckTimeout, "How long to wait for an ack before giving up on a connection")
		ackQueueSize = flag.Int("ack-queue-size", constants.DefaultAckQueueSize, "Maximum outstanding unacknowledged events")
		queueBytes   = flag.Int("queue-bytes", 8<<20, "Capacity, in bytes, of the in-memory event queue")
		verbose      = flag.Bool("v", false, "Verbose (debug) logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = hclog.Debug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	metrics := auditfwd.NewMetrics()
	observer := auditfwd.NewMetricsObserver(metrics)

	queue := memqueue.New(*queueBytes)
	cursorWriter := cursor.New(*cursorPath, logger)
	cursorWriter.SetObserver(observer)

	out := output.New("auditfwd", queue, cursorWriter, logger, observer)
	cfg := config.Spec{
		OutputFormat:  *format,
		OutputSocket:  *socketPath,
		EnableAckMode: *ackMode,
		AckQueueSize:  *ackQueueSize,
		AckTimeout:    *ackTimeout,
	}
	if cfg.OutputFormat == "syslog" {
		// NewEventWriter's factory threads the process-wide name through
		// as the syslog tag; Load doesn't expose a separate knob for it,
		// so give the Output a name matching what the operator asked for.
		out = output.New(*syslogTag, queue, cursorWriter, logger, observer)
	}
	if err := out.Load(cfg); err != nil {
		logger.Error("failed to load output config", "error", err)
		os.Exit(1)
	}

	limits := audit.Limits{
		MaxEventSize:        constants.MaxEventSize,
		MaxExecveAccumSize:  constants.MaxExecveAccumSize,
		MaxNumExecveRecords: constants.MaxNumExecveRecords,
		NumExecveRHPreserve: constants.NumExecveRHPreserve,
	}
	builder := audit.NewEventQueue(queue)
	accumulator := audit.NewRawEventAccumulator(builder, limits, constants.MaxCacheEntry, observer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out.Start()
	defer out.Stop()

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		ingestStdin(ctx, logger, accumulator)
	}()

	flushTicker := time.NewTicker(time.Second)
	defer flushTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-flushTicker.C:
				if err := accumulator.Flush(time.Second.Milliseconds()); err != nil {
					logger.Warn("periodic flush failed", "error", err)
				}
			}
		}
	}()

	logger.Info("auditfwd started", "socket", *socketPath, "format", *format, "ack_mode", *ackMode)

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go dumpStacksOnSignal(stackDumpCh, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	cancel()
	<-ingestDone

	if err := accumulator.Flush(0); err != nil {
		logger.Warn("final flush failed", "error", err)
	}
}

// ingestStdin reads "type=X key=val ..." lines from stdin until ctx is
// cancelled or stdin closes, feeding each parsed record to accumulator.
// This is the minimal stand-in for the real kernel-side audit source,
// which is a consumed collaborator outside this module's scope.
func ingestStdin(ctx context.Context, logger logging.Logger, accumulator *audit.RawEventAccumulator) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, err := parseTextRecord(line)
		if err != nil {
			logger.Warn("dropping unparseable audit line", "error", err)
			continue
		}
		if err := accumulator.AddRecord(record); err != nil {
			logger.Warn("accumulator rejected record", "error", err)
		}
	}
}

// textRecord is a single "type=X id=sec.ms:serial key=val ..." line
// parsed off stdin.
type textRecord struct {
	rtype  audit.RecordType
	id     audit.EventId
	fields []audit.Field
}

func (r *textRecord) Type() audit.RecordType { return r.rtype }
func (r *textRecord) Size() int              { return len(r.fields) * 32 }
func (r *textRecord) IsEmpty() bool          { return len(r.fields) == 0 }
func (r *textRecord) EventID() audit.EventId { return r.id }

func (r *textRecord) Append(builder audit.EventBuilder) error {
	if err := builder.BeginRecord(r.rtype, uint16(len(r.fields))); err != nil {
		return err
	}
	for _, f := range r.fields {
		if err := builder.AddField(f.Name, f.Value, f.Type); err != nil {
			return err
		}
	}
	return builder.EndRecord()
}

var textRecordTypes = map[string]audit.RecordType{
	"SYSCALL":               audit.RecordTypeSyscall,
	"EXECVE":                audit.RecordTypeExecve,
	"EOE":                   audit.RecordTypeEOE,
	"CWD":                   audit.RecordTypeCwd,
	"PATH":                  audit.RecordTypePath,
	"USER_START":            audit.RecordTypeUserStart,
	"USER_END":              audit.RecordTypeUserEnd,
	"USER_LOGIN":            audit.RecordTypeUserLogin,
	"USER_AUTH":             audit.RecordTypeUserAuth,
	"DAEMON_START":          audit.RecordTypeDaemonStart,
	"DAEMON_END":            audit.RecordTypeDaemonEnd,
	"AUOMS_DROPPED_RECORDS": audit.RecordTypeAuomsDroppedRecords,
}

// parseTextRecord decodes one auditd-style line: "type=TYPE id=S.MS:SER
// k1=v1 k2=v2 ...". id defaults to 0.0:0 when absent, which coalesces
// every such record into a single event — callers feeding this parser
// real audit output are expected to always include id.
func parseTextRecord(line string) (*textRecord, error) {
	var rtype audit.RecordType
	var id audit.EventId
	var fields []audit.Field

	for _, tok := range strings.Fields(line) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		switch key {
		case "type":
			rt, known := textRecordTypes[value]
			if !known {
				return nil, fmt.Errorf("auditfwd: unknown record type %q", value)
			}
			rtype = rt
		case "id":
			parsedID, err := parseEventID(value)
			if err != nil {
				return nil, err
			}
			id = parsedID
		default:
			fields = append(fields, audit.Field{Name: key, Value: value, Type: audit.FieldTypeString})
		}
	}

	if rtype == audit.RecordTypeUnknown {
		return nil, fmt.Errorf("auditfwd: line missing type= field")
	}
	return &textRecord{rtype: rtype, id: id, fields: fields}, nil
}

// parseEventID parses "seconds.millis:serial" into an EventId.
func parseEventID(s string) (audit.EventId, error) {
	tsPart, serialPart, ok := strings.Cut(s, ":")
	if !ok {
		return audit.EventId{}, fmt.Errorf("auditfwd: malformed id %q", s)
	}
	secPart, msPart, ok := strings.Cut(tsPart, ".")
	if !ok {
		return audit.EventId{}, fmt.Errorf("auditfwd: malformed id timestamp %q", tsPart)
	}
	sec, err := strconv.ParseUint(secPart, 10, 32)
	if err != nil {
		return audit.EventId{}, fmt.Errorf("auditfwd: malformed id seconds %q: %w", secPart, err)
	}
	ms, err := strconv.ParseUint(msPart, 10, 32)
	if err != nil {
		return audit.EventId{}, fmt.Errorf("auditfwd: malformed id milliseconds %q: %w", msPart, err)
	}
	serial, err := strconv.ParseUint(serialPart, 10, 64)
	if err != nil {
		return audit.EventId{}, fmt.Errorf("auditfwd: malformed id serial %q: %w", serialPart, err)
	}
	return audit.EventId{Seconds: uint32(sec), Milliseconds: uint32(ms), Serial: serial}, nil
}

func dumpStacksOnSignal(ch <-chan os.Signal, logger logging.Logger) {
	for range ch {
		logger.Info("=== GOROUTINE STACK TRACE DUMP ===")
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		fmt.Fprintf(os.Stderr, "\n=== FULL GOROUTINE STACK DUMP ===\n%s\n=== END STACK DUMP ===\n\n", buf[:n])

		filename := fmt.Sprintf("auditfwd-stacks-%d.txt", time.Now().Unix())
		if f, err := os.Create(filename); err == nil {
			fmt.Fprintf(f, "Goroutine stack dump at %s\nProcess ID: %d\n\n", time.Now().Format(time.RFC3339), os.Getpid())
			f.Write(buf[:n])
			fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
			pprof.Lookup("goroutine").WriteTo(f, 2)
			f.Close()
			logger.Info("stack trace written to file", "file", filename)
		}
	}
}
