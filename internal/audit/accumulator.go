package audit

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry is one in-flight RawEvent tracked by the accumulator's
// oldest-first eviction list.
type cacheEntry struct {
	id          EventId
	event       *RawEvent
	lastTouched time.Time
}

// RawEventAccumulator coalesces multi-record audit events, keyed by
// EventId, into complete Events handed to builder. A mutex serializes
// every call, matching the source implementation's single-lock design —
// the downstream EventBuilder is only ever invoked while that lock is
// held, so queue writes from the accumulator are strictly serial.
type RawEventAccumulator struct {
	mu            sync.Mutex
	builder       EventBuilder
	limits        Limits
	maxCacheEntry int
	observer      Observer

	cache map[EventId]*list.Element // EventId -> element in order
	order *list.List                // oldest at Front, most-recently-touched at Back
}

// Observer receives accumulator-side metrics; nil is valid and disables
// all observation.
type Observer interface {
	ObserveRecord(bytes int)
	ObserveDrop(n uint64)
	ObserveEmit()
}

// NewRawEventAccumulator creates an accumulator that emits completed
// events into builder, enforcing limits and a cache bound of
// maxCacheEntry in-flight events.
func NewRawEventAccumulator(builder EventBuilder, limits Limits, maxCacheEntry int, observer Observer) *RawEventAccumulator {
	return &RawEventAccumulator{
		builder:       builder,
		limits:        limits,
		maxCacheEntry: maxCacheEntry,
		observer:      observer,
		cache:         make(map[EventId]*list.Element),
		order:         list.New(),
	}
}

// AddRecord admits one record. Empty records are dropped unless they are
// EOE (which carries no payload but still signals completion). Completed
// events are serialized into the builder before AddRecord returns.
func (a *RawEventAccumulator) AddRecord(record Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.observer != nil {
		a.observer.ObserveRecord(record.Size())
	}

	if record.IsEmpty() && record.Type() != RecordTypeEOE {
		return nil
	}

	id := record.EventID()

	if elem, ok := a.cache[id]; ok {
		entry := elem.Value.(*cacheEntry)
		if entry.event.AddRecord(record) {
			delete(a.cache, id)
			a.order.Remove(elem)
			if err := a.emit(entry.event); err != nil {
				return err
			}
		} else {
			entry.lastTouched = time.Now()
			a.order.MoveToBack(elem)
		}
	} else {
		event := NewRawEvent(id, a.limits)
		if event.AddRecord(record) {
			if err := a.emit(event); err != nil {
				return err
			}
		} else {
			elem := a.order.PushBack(&cacheEntry{id: id, event: event, lastTouched: time.Now()})
			a.cache[id] = elem
		}
	}

	a.evictOverflow()
	return nil
}

// Flush emits in-progress events. With millis > 0 it emits entries whose
// last touch is older than millis, or that sit past the cache size
// ceiling; with millis <= 0 it emits everything.
func (a *RawEventAccumulator) Flush(millis int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if millis <= 0 {
		return a.evictAll()
	}

	now := time.Now()
	threshold := time.Duration(millis) * time.Millisecond
	for {
		front := a.order.Front()
		if front == nil {
			return nil
		}
		entry := front.Value.(*cacheEntry)
		overCount := a.order.Len() > a.maxCacheEntry
		overAge := now.Sub(entry.lastTouched) > threshold
		if !overCount && !overAge {
			return nil
		}
		a.order.Remove(front)
		delete(a.cache, entry.id)
		if err := a.emit(entry.event); err != nil {
			return err
		}
	}
}

// evictOverflow drops the oldest in-flight events, emitting each, until
// the cache is back within maxCacheEntry.
func (a *RawEventAccumulator) evictOverflow() {
	for a.order.Len() > a.maxCacheEntry {
		front := a.order.Front()
		entry := front.Value.(*cacheEntry)
		a.order.Remove(front)
		delete(a.cache, entry.id)
		// Emission failures here are not actionable mid-overflow-sweep;
		// the original drops the event rather than poisoning the sweep.
		_ = a.emit(entry.event)
	}
}

func (a *RawEventAccumulator) evictAll() error {
	for {
		front := a.order.Front()
		if front == nil {
			return nil
		}
		entry := front.Value.(*cacheEntry)
		a.order.Remove(front)
		delete(a.cache, entry.id)
		if err := a.emit(entry.event); err != nil {
			return err
		}
	}
}

func (a *RawEventAccumulator) emit(event *RawEvent) error {
	dropped := uint64(event.NumDropped())
	if err := event.AddEvent(a.builder); err != nil {
		return err
	}
	if a.observer != nil {
		a.observer.ObserveEmit()
		if dropped > 0 {
			a.observer.ObserveDrop(dropped)
		}
	}
	return nil
}
