package audit

import "strconv"

// RawEvent is the in-progress assembly buffer for one EventId: it holds
// ordered records (the first EXECVE record included, as its placeholder),
// a separately tracked ordered list of later EXECVE fragments (split out
// because EXECVE alone may arrive fragmented), and enough bookkeeping to
// enforce the size ceilings and emit a well-formed Event.
type RawEvent struct {
	id EventId

	records       []Record // in arrival order, plus the first EXECVE record as its placeholder; a nil slot marks "already emitted" (the promoted SYSCALL)
	execveRecords []Record // execve fragments after the first, oldest first

	syscallIdx int // index into records of the SYSCALL record, or -1

	size              int
	execveSize        int
	numExecveRecords  int
	numDroppedRecords int
	dropCount         map[RecordType]int

	maxEventSize        int
	maxExecveAccumSize  int
	maxNumExecveRecords int
	numExecveRHPreserve int
}

// NewRawEvent creates an empty assembly buffer for id, using limits to
// decide when records must be dropped or evicted.
func NewRawEvent(id EventId, limits Limits) *RawEvent {
	return &RawEvent{
		id:                  id,
		syscallIdx:          -1,
		dropCount:           make(map[RecordType]int),
		maxEventSize:        limits.MaxEventSize,
		maxExecveAccumSize:  limits.MaxExecveAccumSize,
		maxNumExecveRecords: limits.MaxNumExecveRecords,
		numExecveRHPreserve: limits.NumExecveRHPreserve,
	}
}

// Limits bundles the accumulator's size ceilings so every RawEvent in a
// cache shares the same configuration without a back-pointer to the
// accumulator itself.
type Limits struct {
	MaxEventSize        int
	MaxExecveAccumSize  int
	MaxNumExecveRecords int
	NumExecveRHPreserve int
}

// AddRecord admits record into the event. It returns true when the event
// is now complete — either because an EOE arrived or because record's
// type completes an event by itself (IsSingleRecordEvent).
func (e *RawEvent) AddRecord(record Record) bool {
	rtype := record.Type()

	if rtype == RecordTypeEOE {
		return true
	}

	if rtype == RecordTypeExecve {
		e.numExecveRecords++
		size := record.Size()
		if e.numExecveRecords == 1 {
			e.size += size
			e.execveSize += size
			e.records = append(e.records, record)
		} else {
			if size+e.size > e.maxEventSize || size+e.execveSize > e.maxExecveAccumSize || e.numExecveRecords > e.maxNumExecveRecords {
				e.numDroppedRecords++
				e.dropCount[rtype]++
				idx := 0
				if len(e.execveRecords) > e.numExecveRHPreserve {
					idx = len(e.execveRecords) - e.numExecveRHPreserve - 1
				}
				dropped := e.execveRecords[idx]
				e.size -= dropped.Size()
				e.execveSize -= dropped.Size()
				e.execveRecords = append(e.execveRecords[:idx], e.execveRecords[idx+1:]...)
			}
			e.size += size
			e.execveSize += size
			e.execveRecords = append(e.execveRecords, record)
		}
		return false
	}

	if record.Size()+e.size > e.maxEventSize || e.numExecveRecords > e.maxNumExecveRecords {
		e.numDroppedRecords++
		e.dropCount[rtype]++
	} else {
		e.size += record.Size()
		e.records = append(e.records, record)
		if rtype == RecordTypeSyscall && e.syscallIdx < 0 {
			e.syscallIdx = len(e.records) - 1
		}
	}

	return IsSingleRecordEvent(rtype)
}

// Size reports the current retained byte total across records and
// execveRecords.
func (e *RawEvent) Size() int { return e.size }

// NumDropped reports how many records this event has discarded so far.
func (e *RawEvent) NumDropped() int { return e.numDroppedRecords }

// AddEvent serializes the accumulated records into builder, returning
// the first builder error (after calling CancelEvent). A RawEvent with
// no retained records and no drops emits nothing and returns nil (a
// pure-EOE / all-empty event is simply discarded).
func (e *RawEvent) AddEvent(builder EventBuilder) error {
	if len(e.records) == 0 && e.numDroppedRecords == 0 {
		return nil
	}

	numRecords := len(e.records) + len(e.execveRecords)
	if e.numDroppedRecords > 0 && len(e.dropCount) > 0 {
		numRecords++
	}

	if err := builder.BeginEvent(e.id, uint16(numRecords)); err != nil {
		return err
	}

	if e.syscallIdx > -1 {
		if err := e.records[e.syscallIdx].Append(builder); err != nil {
			builder.CancelEvent()
			return err
		}
		e.records[e.syscallIdx] = nil
	}

	for _, rec := range e.records {
		if rec == nil {
			continue
		}
		if err := rec.Append(builder); err != nil {
			builder.CancelEvent()
			return err
		}
		if rec.Type() == RecordTypeExecve {
			for _, erec := range e.execveRecords {
				if err := erec.Append(builder); err != nil {
					builder.CancelEvent()
					return err
				}
			}
		}
	}

	if e.numDroppedRecords > 0 && len(e.dropCount) > 0 {
		if err := builder.BeginRecord(RecordTypeAuomsDroppedRecords, uint16(len(e.dropCount))); err != nil {
			builder.CancelEvent()
			return err
		}
		for rtype, count := range e.dropCount {
			if err := builder.AddField(RecordTypeToName(rtype), strconv.Itoa(count), FieldTypeUnclassified); err != nil {
				builder.CancelEvent()
				return err
			}
		}
		if err := builder.EndRecord(); err != nil {
			builder.CancelEvent()
			return err
		}
	}

	return builder.EndEvent()
}
