package audit

import "testing"

// countingObserver records accumulator-side metric calls for assertions.
type countingObserver struct {
	records int
	bytes   int
	drops   uint64
	emits   int
}

func (o *countingObserver) ObserveRecord(bytes int) { o.records++; o.bytes += bytes }
func (o *countingObserver) ObserveDrop(n uint64)     { o.drops += n }
func (o *countingObserver) ObserveEmit()             { o.emits++ }

func TestAccumulatorEmitsOnEOE(t *testing.T) {
	b := &recordingBuilder{}
	obs := &countingObserver{}
	a := NewRawEventAccumulator(b, testLimits(), 10, obs)

	id := EventId{Seconds: 10, Serial: 1}
	if err := a.AddRecord(&fakeRecord{rtype: RecordTypeSyscall, id: id, size: 10, name: "syscall"}); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	if err := a.AddRecord(&fakeRecord{rtype: RecordTypeEOE, id: id}); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}

	if len(b.events) != 1 {
		t.Fatalf("expected 1 emitted event, got %d", len(b.events))
	}
	if obs.emits != 1 {
		t.Fatalf("expected 1 ObserveEmit call, got %d", obs.emits)
	}
	if obs.records != 2 {
		t.Fatalf("expected 2 ObserveRecord calls, got %d", obs.records)
	}
	if _, stillCached := a.cache[id]; stillCached {
		t.Fatal("completed event must be removed from the cache")
	}
}

func TestAccumulatorCoalescesAcrossAddRecordCalls(t *testing.T) {
	b := &recordingBuilder{}
	a := NewRawEventAccumulator(b, testLimits(), 10, nil)

	id := EventId{Seconds: 11, Serial: 1}
	a.AddRecord(&fakeRecord{rtype: RecordTypeSyscall, id: id, size: 10, name: "syscall"})
	if _, ok := a.cache[id]; !ok {
		t.Fatal("an incomplete event must remain cached")
	}
	a.AddRecord(&fakeRecord{rtype: RecordTypeCwd, id: id, size: 10, name: "cwd"})
	a.AddRecord(&fakeRecord{rtype: RecordTypeEOE, id: id})

	if len(b.events) != 1 {
		t.Fatalf("expected the two records to coalesce into 1 event, got %d", len(b.events))
	}
	if len(b.events[0].records) != 2 {
		t.Fatalf("expected 2 records in the coalesced event, got %d", len(b.events[0].records))
	}
}

func TestAccumulatorEmitsSingleRecordEventImmediately(t *testing.T) {
	b := &recordingBuilder{}
	a := NewRawEventAccumulator(b, testLimits(), 10, nil)

	id := EventId{Seconds: 12, Serial: 1}
	if err := a.AddRecord(&fakeRecord{rtype: RecordTypeUserLogin, id: id, size: 10, name: "login"}); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	if len(b.events) != 1 {
		t.Fatalf("expected USER_LOGIN to emit immediately, got %d events", len(b.events))
	}
	if _, ok := a.cache[id]; ok {
		t.Fatal("a single-record event must never enter the cache")
	}
}

func TestAccumulatorDropsEmptyNonEOERecords(t *testing.T) {
	b := &recordingBuilder{}
	a := NewRawEventAccumulator(b, testLimits(), 10, nil)

	id := EventId{Seconds: 13, Serial: 1}
	if err := a.AddRecord(&fakeRecord{rtype: RecordTypeCwd, id: id, size: 0, empty: true, name: "cwd"}); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	if _, ok := a.cache[id]; ok {
		t.Fatal("an empty non-EOE record must not create a cache entry")
	}
}

func TestAccumulatorEvictsOverflowOldestFirst(t *testing.T) {
	b := &recordingBuilder{}
	a := NewRawEventAccumulator(b, testLimits(), 2, nil)

	ids := []EventId{
		{Seconds: 14, Serial: 1},
		{Seconds: 14, Serial: 2},
		{Seconds: 14, Serial: 3},
	}
	for _, id := range ids {
		a.AddRecord(&fakeRecord{rtype: RecordTypeSyscall, id: id, size: 10, name: "syscall"})
	}

	if a.order.Len() != 2 {
		t.Fatalf("expected cache bounded to 2 entries, got %d", a.order.Len())
	}
	if len(b.events) != 1 {
		t.Fatalf("expected 1 eviction emission, got %d", len(b.events))
	}
	if b.events[0].id != ids[0] {
		t.Fatalf("expected the oldest entry (serial 1) evicted first, got %v", b.events[0].id)
	}
}

func TestAccumulatorFlushZeroEmitsEverything(t *testing.T) {
	b := &recordingBuilder{}
	a := NewRawEventAccumulator(b, testLimits(), 10, nil)

	for i := uint64(1); i <= 3; i++ {
		id := EventId{Seconds: 15, Serial: i}
		a.AddRecord(&fakeRecord{rtype: RecordTypeSyscall, id: id, size: 10, name: "syscall"})
	}

	if err := a.Flush(0); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if a.order.Len() != 0 {
		t.Fatalf("expected Flush(0) to drain the cache, %d entries remain", a.order.Len())
	}
	if len(b.events) != 3 {
		t.Fatalf("expected 3 emitted events, got %d", len(b.events))
	}
}

func TestAccumulatorFlushAgeOnlyEmitsStaleEntries(t *testing.T) {
	b := &recordingBuilder{}
	a := NewRawEventAccumulator(b, testLimits(), 10, nil)

	id := EventId{Seconds: 16, Serial: 1}
	a.AddRecord(&fakeRecord{rtype: RecordTypeSyscall, id: id, size: 10, name: "syscall"})

	// A very large age threshold means the just-touched entry is not stale.
	if err := a.Flush(1000 * 60 * 60); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(b.events) != 0 {
		t.Fatalf("expected nothing emitted for a freshly touched entry, got %d", len(b.events))
	}
	if a.order.Len() != 1 {
		t.Fatalf("expected the entry to remain cached, got %d entries", a.order.Len())
	}
}
