package output

import (
	"context"

	auditfwd "github.com/ehrlich-b/auditfwd"
	"github.com/ehrlich-b/auditfwd/internal/ackqueue"
	"github.com/ehrlich-b/auditfwd/internal/cursor"
	"github.com/ehrlich-b/auditfwd/internal/ioconn"
	"github.com/ehrlich-b/auditfwd/internal/lifecycle"
	"github.com/ehrlich-b/auditfwd/internal/logging"
	"github.com/ehrlich-b/auditfwd/internal/writer"
)

// AckReader drains acks off the downstream connection and advances the
// persisted cursor as they land. It runs on its own goroutine for the
// lifetime of one connection.
type AckReader struct {
	eventWriter  writer.EventWriter
	conn         *ioconn.Conn
	ackQueue     *ackqueue.AckQueue
	cursorWriter cursor.Writer
	logger       logging.Logger
	observer     auditfwd.Observer

	worker *lifecycle.Worker
}

// NewAckReader creates an AckReader reading acks for conn.
func NewAckReader(eventWriter writer.EventWriter, conn *ioconn.Conn, ackQueue *ackqueue.AckQueue, cursorWriter cursor.Writer, logger logging.Logger, observer auditfwd.Observer) *AckReader {
	r := &AckReader{
		eventWriter:  eventWriter,
		conn:         conn,
		ackQueue:     ackQueue,
		cursorWriter: cursorWriter,
		logger:       logger,
		observer:     observer,
	}
	r.worker = lifecycle.NewWorker(r)
	return r
}

// Start launches the ack-reading goroutine.
func (r *AckReader) Start() { r.worker.Start() }

// Stop waits for the ack-reading goroutine to exit. It is idempotent:
// once the connection drops, Run exits on its own and a subsequent Stop
// just joins that already-finished goroutine.
func (r *AckReader) Stop() { r.worker.Stop() }

// Run implements lifecycle.Runnable. It blocks on ReadAck until the
// connection is closed or errors, then unwinds: closing the connection
// (forcing the producer loop's write to unblock), draining any pending
// auto-cursor, and closing the ack queue so any blocked Add returns
// immediately.
func (r *AckReader) Run(ctx context.Context) {
	for {
		id, status, err := r.eventWriter.ReadAck(r.conn)
		if status != writer.ReadOK {
			if err != nil {
				r.logger.Debug("ack reader stopping", "error", err)
			}
			break
		}
		if r.observer != nil {
			r.observer.ObserveAck()
		}
		if cur, ok := r.ackQueue.Ack(id); ok {
			r.cursorWriter.UpdateCursor(cur)
		}
	}

	r.conn.Close()
	if cur, ok := r.ackQueue.GetAutoCursor(); ok {
		r.cursorWriter.UpdateCursor(cur)
	}
	r.ackQueue.Close()
}

// OnStopping implements lifecycle.Runnable. Output fully closes the
// connection before it calls Stop, which is what unblocks a pending
// ReadAck; AckReader has nothing further to do here.
func (r *AckReader) OnStopping() {}

// OnStop implements lifecycle.Runnable. Cleanup already happened
// synchronously at the end of Run.
func (r *AckReader) OnStop() {}

var _ lifecycle.Runnable = (*AckReader)(nil)
