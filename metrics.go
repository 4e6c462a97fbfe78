package auditfwd

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for one Output pipeline, from
// records entering the accumulator to events leaving acknowledged.
type Metrics struct {
	// Accumulator counters
	RecordsReceived atomic.Uint64
	BytesReceived   atomic.Uint64
	RecordsDropped  atomic.Uint64
	EventsEmitted   atomic.Uint64

	// Output counters
	EventsWritten   atomic.Uint64
	EventsNoop      atomic.Uint64
	EventsFiltered  atomic.Uint64
	EventsAcked     atomic.Uint64
	AckTimeouts     atomic.Uint64
	QueueResets     atomic.Uint64
	CorruptFrames   atomic.Uint64
	Reconnects      atomic.Uint64

	// CursorWriter counters
	CursorWrites      atomic.Uint64
	CursorWriteErrors atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAdded accounts for one record admitted into the accumulator.
func (m *Metrics) RecordAdded(bytes int) {
	m.RecordsReceived.Add(1)
	m.BytesReceived.Add(uint64(bytes))
}

// RecordDropped accounts for one record the accumulator discarded rather
// than retaining.
func (m *Metrics) RecordDropped(n uint64) {
	m.RecordsDropped.Add(n)
}

// EventEmitted accounts for one event the accumulator handed to the queue.
func (m *Metrics) EventEmitted() {
	m.EventsEmitted.Add(1)
}

// Stop marks the pipeline as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics safe to read without
// racing the live counters.
type MetricsSnapshot struct {
	RecordsReceived uint64
	BytesReceived   uint64
	RecordsDropped  uint64
	EventsEmitted   uint64

	EventsWritten  uint64
	EventsNoop     uint64
	EventsFiltered uint64
	EventsAcked    uint64
	AckTimeouts    uint64
	QueueResets    uint64
	CorruptFrames  uint64
	Reconnects     uint64

	CursorWrites      uint64
	CursorWriteErrors uint64

	UptimeNs uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		RecordsReceived:   m.RecordsReceived.Load(),
		BytesReceived:     m.BytesReceived.Load(),
		RecordsDropped:    m.RecordsDropped.Load(),
		EventsEmitted:     m.EventsEmitted.Load(),
		EventsWritten:     m.EventsWritten.Load(),
		EventsNoop:        m.EventsNoop.Load(),
		EventsFiltered:    m.EventsFiltered.Load(),
		EventsAcked:       m.EventsAcked.Load(),
		AckTimeouts:       m.AckTimeouts.Load(),
		QueueResets:       m.QueueResets.Load(),
		CorruptFrames:     m.CorruptFrames.Load(),
		Reconnects:        m.Reconnects.Load(),
		CursorWrites:      m.CursorWrites.Load(),
		CursorWriteErrors: m.CursorWriteErrors.Load(),
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return snap
}

// Observer allows pluggable metrics collection. One Observer may be
// shared by the accumulator's callers, Output's producer goroutine, the
// AckReader goroutine and the CursorWriter goroutine, so implementations
// must be safe for concurrent use.
type Observer interface {
	ObserveRecord(bytes int)
	ObserveDrop(n uint64)
	ObserveEmit()
	ObserveWrite(noop bool)
	ObserveFilter()
	ObserveAck()
	ObserveAckTimeout()
	ObserveQueueReset()
	ObserveCorruptFrame()
	ObserveReconnect()
	ObserveCursorWrite(err error)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRecord(int)       {}
func (NoOpObserver) ObserveDrop(uint64)      {}
func (NoOpObserver) ObserveEmit()            {}
func (NoOpObserver) ObserveWrite(bool)       {}
func (NoOpObserver) ObserveFilter()          {}
func (NoOpObserver) ObserveAck()             {}
func (NoOpObserver) ObserveAckTimeout()      {}
func (NoOpObserver) ObserveQueueReset()      {}
func (NoOpObserver) ObserveCorruptFrame()    {}
func (NoOpObserver) ObserveReconnect()       {}
func (NoOpObserver) ObserveCursorWrite(error) {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer backed by m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRecord(bytes int) { o.metrics.RecordAdded(bytes) }
func (o *MetricsObserver) ObserveDrop(n uint64)    { o.metrics.RecordDropped(n) }
func (o *MetricsObserver) ObserveEmit()            { o.metrics.EventEmitted() }

func (o *MetricsObserver) ObserveWrite(noop bool) {
	if noop {
		o.metrics.EventsNoop.Add(1)
	} else {
		o.metrics.EventsWritten.Add(1)
	}
}

func (o *MetricsObserver) ObserveFilter()       { o.metrics.EventsFiltered.Add(1) }
func (o *MetricsObserver) ObserveAck()          { o.metrics.EventsAcked.Add(1) }
func (o *MetricsObserver) ObserveAckTimeout()   { o.metrics.AckTimeouts.Add(1) }
func (o *MetricsObserver) ObserveQueueReset()   { o.metrics.QueueResets.Add(1) }
func (o *MetricsObserver) ObserveCorruptFrame() { o.metrics.CorruptFrames.Add(1) }
func (o *MetricsObserver) ObserveReconnect()    { o.metrics.Reconnects.Add(1) }

func (o *MetricsObserver) ObserveCursorWrite(err error) {
	o.metrics.CursorWrites.Add(1)
	if err != nil {
		o.metrics.CursorWriteErrors.Add(1)
	}
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)
