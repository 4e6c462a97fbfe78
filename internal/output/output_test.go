package output

import (
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	auditfwd "github.com/ehrlich-b/auditfwd"
	"github.com/ehrlich-b/auditfwd/internal/ackqueue"
	"github.com/ehrlich-b/auditfwd/internal/audit"
	"github.com/ehrlich-b/auditfwd/internal/config"
	"github.com/ehrlich-b/auditfwd/internal/constants"
	"github.com/ehrlich-b/auditfwd/internal/cursor"
	"github.com/ehrlich-b/auditfwd/internal/ioconn"
	"github.com/ehrlich-b/auditfwd/internal/wireq"
	"github.com/ehrlich-b/auditfwd/internal/wireq/memqueue"
	"github.com/ehrlich-b/auditfwd/internal/writer"
)

func testLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

// countingObserver implements auditfwd.Observer, recording just the
// counts these tests assert on.
type countingObserver struct {
	mu            sync.Mutex
	writes        int
	noops         int
	filtered      int
	acks          int
	ackTimeouts   int
	queueResets   int
	corruptFrames int
	reconnects    int
}

func (o *countingObserver) ObserveRecord(int)  {}
func (o *countingObserver) ObserveDrop(uint64) {}
func (o *countingObserver) ObserveEmit()       {}

func (o *countingObserver) ObserveWrite(noop bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if noop {
		o.noops++
	} else {
		o.writes++
	}
}

func (o *countingObserver) ObserveFilter() {
	o.mu.Lock()
	o.filtered++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveAck() {
	o.mu.Lock()
	o.acks++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveAckTimeout() {
	o.mu.Lock()
	o.ackTimeouts++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveQueueReset() {
	o.mu.Lock()
	o.queueResets++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveCorruptFrame() {
	o.mu.Lock()
	o.corruptFrames++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveReconnect() {
	o.mu.Lock()
	o.reconnects++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveCursorWrite(error) {}

func (o *countingObserver) snapshot() countingObserver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return countingObserver{
		writes: o.writes, noops: o.noops, filtered: o.filtered,
		acks: o.acks, ackTimeouts: o.ackTimeouts, queueResets: o.queueResets,
		corruptFrames: o.corruptFrames, reconnects: o.reconnects,
	}
}

var _ auditfwd.Observer = (*countingObserver)(nil)

func newTestCursorWriter(t *testing.T) *cursor.CursorWriter {
	t.Helper()
	cw := cursor.New(filepath.Join(t.TempDir(), "cursor"), testLogger())
	if err := cw.Read(); err != nil {
		t.Fatalf("cursor Read failed: %v", err)
	}
	return cw
}

// pushEvent writes one single-record event to q and returns its id.
func pushEvent(t *testing.T, q wireq.Queue, serial uint64) audit.EventId {
	t.Helper()
	id := audit.EventId{Seconds: 1000, Milliseconds: 0, Serial: serial}
	b := audit.NewEventQueue(q)
	if err := b.BeginEvent(id, 1); err != nil {
		t.Fatalf("BeginEvent: %v", err)
	}
	if err := b.BeginRecord(audit.RecordTypeUserStart, 1); err != nil {
		t.Fatalf("BeginRecord: %v", err)
	}
	if err := b.AddField("pid", "1", audit.FieldTypeNumber); err != nil {
		t.Fatalf("AddField: %v", err)
	}
	if err := b.EndRecord(); err != nil {
		t.Fatalf("EndRecord: %v", err)
	}
	if err := b.EndEvent(); err != nil {
		t.Fatalf("EndEvent: %v", err)
	}
	return id
}

func encodeAck(id audit.EventId) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], id.Seconds)
	binary.BigEndian.PutUint32(buf[4:8], id.Milliseconds)
	binary.BigEndian.PutUint64(buf[8:16], id.Serial)
	return buf[:]
}

// sinkServer accepts exactly one connection and discards everything it
// reads, never replying. Good enough for a peer in non-ack-mode tests.
func sinkServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sock")
	ua, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	l, err := net.ListenUnix("unix", ua)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	return path, func() { l.Close() }
}

func TestOutputLoadRequiresSocketForNonSyslogFormats(t *testing.T) {
	o := New("t1", memqueue.New(4096), newTestCursorWriter(t), testLogger(), nil)
	err := o.Load(config.Spec{OutputFormat: "json"})
	if err == nil {
		t.Fatal("expected error when output_socket is missing for a non-syslog format")
	}
	if !auditfwd.IsCode(err, auditfwd.ErrCodeInvalidConfig) {
		t.Fatalf("expected ErrCodeInvalidConfig, got %v", err)
	}
}

func TestOutputLoadRejectsUnknownFormat(t *testing.T) {
	o := New("t2", memqueue.New(4096), newTestCursorWriter(t), testLogger(), nil)
	err := o.Load(config.Spec{OutputFormat: "carrier-pigeon", OutputSocket: "/tmp/x"})
	if err == nil {
		t.Fatal("expected error for an unrecognized output_format")
	}
}

func TestOutputLoadClampsAckTimeoutBelowMinimum(t *testing.T) {
	o := New("t3", memqueue.New(4096), newTestCursorWriter(t), testLogger(), nil)
	err := o.Load(config.Spec{
		OutputFormat:  "raw",
		OutputSocket:  "/tmp/x",
		EnableAckMode: true,
		AckTimeout:    10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if o.ackTimeout != constants.MinAckTimeout {
		t.Fatalf("expected ack timeout clamped to %v, got %v", constants.MinAckTimeout, o.ackTimeout)
	}
}

func TestOutputLoadDefaultsAckQueueSize(t *testing.T) {
	o := New("t4", memqueue.New(4096), newTestCursorWriter(t), testLogger(), nil)
	if err := o.Load(config.Spec{OutputFormat: "raw", OutputSocket: "/tmp/x", EnableAckMode: true}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if o.ackQueue == nil {
		t.Fatal("expected an ack queue to be created")
	}
}

func TestOutputIsConfigDifferent(t *testing.T) {
	o := New("t5", memqueue.New(4096), newTestCursorWriter(t), testLogger(), nil)
	cfg := config.Spec{OutputFormat: "raw", OutputSocket: "/tmp/x"}
	if !o.IsConfigDifferent(cfg) {
		t.Fatal("expected a never-loaded Output to report its config as different")
	}
	if err := o.Load(cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if o.IsConfigDifferent(cfg) {
		t.Fatal("expected the same config to no longer be different after Load")
	}
	cfg.OutputSocket = "/tmp/y"
	if !o.IsConfigDifferent(cfg) {
		t.Fatal("expected a changed socket path to be reported as different")
	}
}

func TestHandleEventsWritesEventAndAdvancesCursorWithoutAckMode(t *testing.T) {
	q := memqueue.New(1 << 16)
	pushEvent(t, q, 1)

	path, stop := sinkServer(t)
	defer stop()

	obs := &countingObserver{}
	cw := newTestCursorWriter(t)
	o := New("noack", q, cw, testLogger(), obs)
	o.eventWriter = writer.RawEventWriter{}
	o.checkOpen = true
	o.conn = ioconn.New(path)
	if err := o.conn.Open(); err != nil {
		t.Fatalf("conn.Open failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	o.handleEvents(ctx)

	if cw.GetCursor() == wireq.Head {
		t.Fatal("expected the cursor to advance past Head after a successful write")
	}
	snap := obs.snapshot()
	if snap.writes != 1 {
		t.Fatalf("expected exactly one observed write, got %d", snap.writes)
	}
}

func TestHandleEventsCorruptFrameResetsQueue(t *testing.T) {
	q := memqueue.New(1 << 16)
	// Shorter than headerSize: ParseEvent will reject it outright.
	if _, err := q.Put([]byte{0x01}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	path, stop := sinkServer(t)
	defer stop()

	obs := &countingObserver{}
	cw := newTestCursorWriter(t)
	o := New("corrupt", q, cw, testLogger(), obs)
	o.eventWriter = writer.RawEventWriter{}
	o.checkOpen = true
	o.conn = ioconn.New(path)
	if err := o.conn.Open(); err != nil {
		t.Fatalf("conn.Open failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	o.handleEvents(ctx)

	snap := obs.snapshot()
	if snap.corruptFrames != 1 {
		t.Fatalf("expected one corrupt frame observation, got %d", snap.corruptFrames)
	}
	if snap.queueResets != 1 {
		t.Fatalf("expected one queue reset observation, got %d", snap.queueResets)
	}

	// After Reset the queue has nothing at Head: a Get times out rather
	// than replaying the corrupt frame.
	buf := make([]byte, 256)
	_, _, status, err := q.Get(context.Background(), wireq.Head, buf, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Get after reset failed: %v", err)
	}
	if status != wireq.StatusTimeout {
		t.Fatalf("expected StatusTimeout on an empty reset queue, got %v", status)
	}
}

func TestHandleEventsAckModeAdvancesCursorOnAck(t *testing.T) {
	q := memqueue.New(1 << 16)
	id := pushEvent(t, q, 42)

	socketPath := filepath.Join(t.TempDir(), "sock")
	ua, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	l, err := net.ListenUnix("unix", ua)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var lenBuf [4]byte
		if _, err := readFull(conn, lenBuf[:]); err != nil {
			return
		}
		frameLen := binary.BigEndian.Uint32(lenBuf[:])
		frame := make([]byte, frameLen)
		if _, err := readFull(conn, frame); err != nil {
			return
		}
		conn.Write(encodeAck(id))
	}()

	obs := &countingObserver{}
	cw := newTestCursorWriter(t)
	o := New("ack", q, cw, testLogger(), obs)
	o.eventWriter = writer.RawEventWriter{}
	o.checkOpen = true
	o.ackMode = true
	o.ackTimeout = constants.MinAckTimeout
	o.ackQueue = ackqueue.New(constants.DefaultAckQueueSize)
	o.conn = ioconn.New(socketPath)
	if err := o.conn.Open(); err != nil {
		t.Fatalf("conn.Open failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	o.handleEvents(ctx)

	select {
	case <-serverDone:
	case <-time.After(time.Second):
		t.Fatal("server goroutine never finished")
	}

	if cw.GetCursor() == wireq.Head {
		t.Fatal("expected the cursor to advance once the ack landed")
	}
}

func TestCheckOpenConnRetriesUntilListenerAvailable(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "sock")

	go func() {
		time.Sleep(200 * time.Millisecond)
		ua, err := net.ResolveUnixAddr("unix", socketPath)
		if err != nil {
			return
		}
		l, err := net.ListenUnix("unix", ua)
		if err != nil {
			return
		}
		defer l.Close()
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	o := New("reconnect", memqueue.New(4096), newTestCursorWriter(t), testLogger(), nil)
	o.conn = ioconn.New(socketPath)
	o.checkOpen = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !o.checkOpenConn(ctx) {
		t.Fatal("expected checkOpenConn to eventually succeed once the listener appears")
	}
	if !o.conn.IsOpen() {
		t.Fatal("expected the connection to be open after checkOpenConn succeeds")
	}
}

func TestCheckOpenConnReturnsFalseWhenContextCancelled(t *testing.T) {
	o := New("cancelled", memqueue.New(4096), newTestCursorWriter(t), testLogger(), nil)
	o.conn = ioconn.New(filepath.Join(t.TempDir(), "never-exists"))
	o.checkOpen = true

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if o.checkOpenConn(ctx) {
		t.Fatal("expected checkOpenConn to fail when no listener ever appears")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected context cancellation to short-circuit backoff quickly, took %v", elapsed)
	}
}

// readFull reads exactly len(buf) bytes from r, short of io.ReadFull only
// to avoid importing io solely for this helper.
func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
