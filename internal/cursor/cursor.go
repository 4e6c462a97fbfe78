// Package cursor persists the Output pipeline's progress cursor to a
// local file, coalescing bursts of updates through a background
// writeback loop so a fast producer never turns every ack into its own
// fsync.
package cursor

import (
	"context"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	auditfwd "github.com/ehrlich-b/auditfwd"
	"github.com/ehrlich-b/auditfwd/internal/constants"
	"github.com/ehrlich-b/auditfwd/internal/lifecycle"
	"github.com/ehrlich-b/auditfwd/internal/logging"
	"github.com/ehrlich-b/auditfwd/internal/wireq"
)

// Writer is the CursorWriter contract the Output pipeline and AckReader
// depend on.
type Writer interface {
	Read() error
	Write() error
	Delete() error
	UpdateCursor(c wireq.Cursor)
	GetCursor() wireq.Cursor
	Start()
	Stop()
}

// CursorWriter tracks the current progress cursor in memory and persists
// it to path on a background goroutine whenever it changes, coalescing
// bursts by waiting CursorWriteCoalesceInterval between writes.
type CursorWriter struct {
	path string

	mu       sync.Mutex
	cond     *sync.Cond
	cursor   wireq.Cursor
	updated  bool
	stopping bool

	logger   logging.Logger
	worker   *lifecycle.Worker
	observer auditfwd.Observer
}

// New creates a CursorWriter backed by path. Call Read before Start to
// load any existing cursor.
func New(path string, logger logging.Logger) *CursorWriter {
	if logger == nil {
		logger = logging.Default()
	}
	cw := &CursorWriter{path: path, logger: logger}
	cw.cond = sync.NewCond(&cw.mu)
	cw.worker = lifecycle.NewWorker(cw)
	return cw
}

// Read loads the persisted cursor. A missing file is not an error: the
// cursor is initialized to Head, matching a fresh deployment.
func (cw *CursorWriter) Read() error {
	data, err := os.ReadFile(cw.path)
	if err != nil {
		if os.IsNotExist(err) {
			cw.mu.Lock()
			cw.cursor = wireq.Head
			cw.mu.Unlock()
			return nil
		}
		return auditfwd.WrapError("CursorWriter.Read", auditfwd.ErrCodeCursorUnreadable, err)
	}
	if len(data) != constants.DataSize {
		return auditfwd.NewError("CursorWriter.Read", auditfwd.ErrCodeCursorUnreadable, "short cursor file")
	}

	var c wireq.Cursor
	copy(c[:], data)
	cw.mu.Lock()
	cw.cursor = c
	cw.mu.Unlock()
	return nil
}

// Write persists the in-memory cursor, fsyncing before returning so a
// crash immediately after Write cannot observe a half-written file.
func (cw *CursorWriter) Write() error {
	cw.mu.Lock()
	c := cw.cursor
	cw.mu.Unlock()

	f, err := os.OpenFile(cw.path, os.O_WRONLY|os.O_CREATE, constants.CursorFileMode)
	if err != nil {
		return auditfwd.WrapError("CursorWriter.Write", auditfwd.ErrCodeCursorWrite, err)
	}
	defer f.Close()

	n, err := f.Write(c[:])
	if err != nil {
		return auditfwd.WrapError("CursorWriter.Write", auditfwd.ErrCodeCursorWrite, err)
	}
	if n != constants.DataSize {
		return auditfwd.NewError("CursorWriter.Write", auditfwd.ErrCodeCursorWrite, "short write")
	}
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return auditfwd.WrapError("CursorWriter.Write", auditfwd.ErrCodeCursorWrite, err)
	}
	return nil
}

// Delete removes the cursor file. A missing file counts as success.
func (cw *CursorWriter) Delete() error {
	err := os.Remove(cw.path)
	if err != nil && !os.IsNotExist(err) {
		return auditfwd.WrapError("CursorWriter.Delete", auditfwd.ErrCodeCursorWrite, err)
	}
	return nil
}

// UpdateCursor stores c as the latest progress and wakes the writeback
// loop.
func (cw *CursorWriter) UpdateCursor(c wireq.Cursor) {
	cw.mu.Lock()
	cw.cursor = c
	cw.updated = true
	cw.mu.Unlock()
	cw.cond.Broadcast()
}

// SetObserver wires a metrics observer; nil disables observation. Not
// safe to call concurrently with Start.
func (cw *CursorWriter) SetObserver(observer auditfwd.Observer) {
	cw.observer = observer
}

// GetCursor snapshots the in-memory cursor.
func (cw *CursorWriter) GetCursor() wireq.Cursor {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.cursor
}

// Start launches the background writeback loop.
func (cw *CursorWriter) Start() { cw.worker.Start() }

// Stop signals the writeback loop to exit and waits for its final Write.
func (cw *CursorWriter) Stop() { cw.worker.Stop() }

// Run implements lifecycle.Runnable: wait for an update, write it,
// briefly sleep to coalesce any further updates, repeat until stopping.
func (cw *CursorWriter) Run(ctx context.Context) {
	for {
		cw.mu.Lock()
		for !cw.updated && !cw.stopping {
			cw.cond.Wait()
		}
		updated := cw.updated
		cw.updated = false
		stopping := cw.stopping
		cw.mu.Unlock()

		if updated {
			err := cw.Write()
			if cw.observer != nil {
				cw.observer.ObserveCursorWrite(err)
			}
			if err != nil {
				cw.logger.Error("cursor write failed", "path", cw.path, "error", err)
			}
		}
		if stopping {
			return
		}
		time.Sleep(constants.CursorWriteCoalesceInterval)
	}
}

// OnStopping implements lifecycle.Runnable. It must not block, so it
// only flips a flag and wakes Run's wait.
func (cw *CursorWriter) OnStopping() {
	cw.mu.Lock()
	cw.stopping = true
	cw.mu.Unlock()
	cw.cond.Broadcast()
}

// OnStop implements lifecycle.Runnable: one final write so nothing
// accumulated between the last loop iteration and shutdown is lost.
func (cw *CursorWriter) OnStop() {
	cw.mu.Lock()
	cw.stopping = false
	cw.mu.Unlock()
	err := cw.Write()
	if cw.observer != nil {
		cw.observer.ObserveCursorWrite(err)
	}
	if err != nil {
		cw.logger.Error("final cursor write failed", "path", cw.path, "error", err)
	}
}

var (
	_ lifecycle.Runnable = (*CursorWriter)(nil)
	_ Writer             = (*CursorWriter)(nil)
)
