// Package output implements the connection-managed consumer that pairs
// a producer (writer) loop and an AckReader loop against a downstream
// peer, coordinating them through an AckQueue and driving a
// cursor.Writer that persists progress.
package output

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"

	auditfwd "github.com/ehrlich-b/auditfwd"
	"github.com/ehrlich-b/auditfwd/internal/ackqueue"
	"github.com/ehrlich-b/auditfwd/internal/audit"
	"github.com/ehrlich-b/auditfwd/internal/config"
	"github.com/ehrlich-b/auditfwd/internal/constants"
	"github.com/ehrlich-b/auditfwd/internal/cursor"
	"github.com/ehrlich-b/auditfwd/internal/ioconn"
	"github.com/ehrlich-b/auditfwd/internal/lifecycle"
	"github.com/ehrlich-b/auditfwd/internal/logging"
	"github.com/ehrlich-b/auditfwd/internal/wireq"
	"github.com/ehrlich-b/auditfwd/internal/writer"
)

// Output is one configured downstream destination: it owns a connection
// to the peer, an optional AckQueue/AckReader pair when ack mode is
// enabled, and the cursor.Writer tracking how far it has progressed
// through the durable queue.
type Output struct {
	name   string
	logger logging.Logger

	queue        wireq.Queue
	cursorWriter cursor.Writer
	observer     auditfwd.Observer

	eventWriter writer.EventWriter
	filter      writer.Filter
	conn        *ioconn.Conn
	checkOpen   bool

	ackMode    bool
	ackTimeout time.Duration
	ackQueue   *ackqueue.AckQueue
	ackReader  *AckReader

	lastConfig config.Spec
	loaded     bool

	worker *lifecycle.Worker
}

// New creates an Output named name, reading events from queue and
// persisting progress through cursorWriter. Call Load before Start.
func New(name string, queue wireq.Queue, cursorWriter cursor.Writer, logger logging.Logger, observer auditfwd.Observer) *Output {
	if logger == nil {
		logger = logging.Default()
	}
	o := &Output{
		name:         name,
		queue:        queue,
		cursorWriter: cursorWriter,
		logger:       logger,
		observer:     observer,
		filter:       writer.NoopFilter{},
	}
	o.worker = lifecycle.NewWorker(o)
	return o
}

// IsConfigDifferent reports whether cfg differs from the last
// successfully loaded configuration.
func (o *Output) IsConfigDifferent(cfg config.Spec) bool {
	return !o.loaded || cfg != o.lastConfig
}

// Load validates cfg and (re)builds the writer, connection, and ack
// queue it describes. On failure the Output's prior state is left
// untouched.
func (o *Output) Load(cfg config.Spec) error {
	o.logger.Info("output loading config", "name", o.name)

	ew, err := writer.NewEventWriter(cfg.OutputFormat, o.name)
	if err != nil {
		return auditfwd.WrapError("Output.Load", auditfwd.ErrCodeUnknownFormat, err)
	}

	// The original implementation checks format.compare("syslog"), which
	// under C-string-compare semantics is truthy whenever the format is
	// NOT syslog. Re-expressed explicitly: every format except syslog
	// needs a connected socket, since syslog writes to the local syslog
	// daemon directly instead.
	checkOpen := cfg.OutputFormat != "syslog"
	if checkOpen && cfg.OutputSocket == "" {
		return auditfwd.NewError("Output.Load", auditfwd.ErrCodeInvalidConfig, "output_socket is required unless output_format is syslog")
	}

	var conn *ioconn.Conn
	if checkOpen {
		conn = ioconn.New(cfg.OutputSocket)
	}

	var ackQueue *ackqueue.AckQueue
	ackTimeout := cfg.AckTimeout
	if cfg.EnableAckMode {
		switch {
		case ackTimeout == 0:
			ackTimeout = constants.MinAckTimeout
		case ackTimeout < constants.MinAckTimeout:
			o.logger.Warn("ack_timeout below minimum, clamping",
				"configured", ackTimeout, "minimum", constants.MinAckTimeout)
			ackTimeout = constants.MinAckTimeout
		}
		size := cfg.AckQueueSize
		if size <= 0 {
			size = constants.DefaultAckQueueSize
		}
		ackQueue = ackqueue.New(size)
	}

	o.eventWriter = ew
	o.checkOpen = checkOpen
	o.conn = conn
	o.ackMode = cfg.EnableAckMode
	o.ackTimeout = ackTimeout
	o.ackQueue = ackQueue
	o.lastConfig = cfg
	o.loaded = true
	return nil
}

// Delete removes any on-disk state associated with this Output,
// typically called once it has been decommissioned.
func (o *Output) Delete() error {
	return o.cursorWriter.Delete()
}

// Start launches the producer/send loop on its own goroutine.
func (o *Output) Start() { o.worker.Start() }

// Stop signals shutdown and waits for a clean exit.
func (o *Output) Stop() { o.worker.Stop() }

// Run implements lifecycle.Runnable: the top-level run() loop.
func (o *Output) Run(ctx context.Context) {
	if err := o.cursorWriter.Read(); err != nil {
		o.logger.Error("cursor file unreadable, aborting output", "name", o.name, "error", err)
		return
	}

	for ctx.Err() == nil {
		if o.checkOpen {
			if !o.checkOpenConn(ctx) {
				return
			}
		}
		if !o.handleEvents(ctx) {
			return
		}
	}
}

// checkOpenConn dials the downstream socket with exponential backoff,
// doubling from StartSleepPeriod up to MaxSleepPeriod. It returns false
// if ctx is cancelled before a connection succeeds, or if ctx is
// cancelled in the narrow window right after a connection succeeds —
// closing the just-opened connection rather than handing it to the
// caller.
func (o *Output) checkOpenConn(ctx context.Context) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = constants.StartSleepPeriod
	b.MaxInterval = constants.MaxSleepPeriod
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err := o.conn.Open(); err != nil {
			o.logger.Warn("output connect failed, retrying", "name", o.name, "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))

	if err != nil {
		return false
	}

	if ctx.Err() != nil {
		o.conn.Close()
		return false
	}

	if id, uerr := uuid.GenerateUUID(); uerr == nil {
		o.logger.Info("output connected", "name", o.name, "conn_id", id)
	}
	if o.observer != nil {
		o.observer.ObserveReconnect()
	}
	return true
}

// handleEvents is the heart of the pipeline: it drains the queue
// starting from the persisted cursor, writing each admitted event to
// the connection and advancing the cursor (directly, or via the ack
// queue when ack mode is on) as progress becomes durable. It returns
// true if the caller should reconnect and call handleEvents again,
// false if the Output is shutting down.
func (o *Output) handleEvents(ctx context.Context) bool {
	currentCursor := o.cursorWriter.GetCursor()
	o.cursorWriter.Start()

	if o.ackMode {
		o.ackQueue.Reset()
		o.ackReader = NewAckReader(o.eventWriter, o.conn, o.ackQueue, o.cursorWriter, o.logger, o.observer)
		o.ackReader.Start()
	}

	buf := make([]byte, constants.MaxItemSize)

drain:
	for ctx.Err() == nil {
		if o.checkOpen && !o.conn.IsOpen() {
			break
		}

		n, next, status, err := o.queue.Get(ctx, currentCursor, buf, constants.QueueGetTimeout)
		if err != nil {
			break
		}

		switch status {
		case wireq.StatusTimeout, wireq.StatusInterrupted:
			continue drain

		case wireq.StatusBufferTooSmall:
			o.logger.Error("queue corruption detected (buffer too small), resetting", "name", o.name)
			if o.observer != nil {
				o.observer.ObserveCorruptFrame()
				o.observer.ObserveQueueReset()
			}
			o.queue.Reset()
			break drain

		case wireq.StatusOK:
			event, perr := audit.ParseEvent(buf[:n])
			if perr != nil {
				o.logger.Error("corrupt event frame, resetting queue", "name", o.name, "error", perr)
				if o.observer != nil {
					o.observer.ObserveCorruptFrame()
					o.observer.ObserveQueueReset()
				}
				o.queue.Reset()
				break drain
			}

			if o.filter.IsFiltered(event) {
				if o.observer != nil {
					o.observer.ObserveFilter()
				}
				if o.ackMode {
					o.ackQueue.SetAutoCursor(next)
				} else {
					o.cursorWriter.UpdateCursor(next)
				}
				currentCursor = next
				continue drain
			}

			if o.ackMode {
				if !o.ackQueue.Add(ctx, event.ID, next, o.ackTimeout) {
					if o.observer != nil {
						o.observer.ObserveAckTimeout()
					}
					if o.conn.IsOpen() {
						o.logger.Error("ack queue add timed out", "name", o.name)
					}
					break drain
				}
			}

			wstatus, werr := o.eventWriter.WriteEvent(event, o.conn)
			if o.observer != nil {
				o.observer.ObserveWrite(wstatus == writer.WriteNoop)
			}
			switch wstatus {
			case writer.WriteNoop:
				if o.ackMode {
					o.ackQueue.Remove(event.ID)
					o.ackQueue.SetAutoCursor(next)
				}
			case writer.WriteOK:
				if !o.ackMode {
					o.cursorWriter.UpdateCursor(next)
				}
			default:
				if werr != nil {
					o.logger.Warn("write event failed", "name", o.name, "error", werr)
				}
				break drain
			}
			currentCursor = next
		}
	}

	if o.ackMode {
		o.ackQueue.Wait(context.Background(), constants.AckQueueDrainWait)
	}
	if o.conn != nil {
		o.conn.Close()
	}
	if o.ackReader != nil {
		o.ackReader.Stop()
		o.ackReader = nil
	}
	o.cursorWriter.Stop()

	return ctx.Err() == nil
}

// OnStopping implements lifecycle.Runnable: unblock every long wait
// without joining anything, so Run can notice shutdown promptly.
func (o *Output) OnStopping() {
	o.queue.Interrupt()
	if o.conn != nil {
		o.conn.CloseWrite()
	}
	if o.ackQueue != nil {
		o.ackQueue.Close()
	}
}

// OnStop implements lifecycle.Runnable: final cleanup once Run has
// returned. Errors from the individual steps are aggregated so none are
// silently lost.
func (o *Output) OnStop() {
	var result *multierror.Error

	if o.ackReader != nil {
		o.ackReader.Stop()
		o.ackReader = nil
	}
	if o.conn != nil {
		if err := o.conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	o.cursorWriter.Stop()
	if err := o.cursorWriter.Write(); err != nil {
		result = multierror.Append(result, err)
	}

	if result != nil && result.Len() > 0 {
		o.logger.Error("output shutdown encountered errors", "name", o.name, "error", result)
	}
}

var _ lifecycle.Runnable = (*Output)(nil)
