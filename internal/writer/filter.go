package writer

import "github.com/ehrlich-b/auditfwd/internal/audit"

// NoopFilter never filters anything; it is the default when no filter
// configuration is present.
type NoopFilter struct{}

func (NoopFilter) IsFiltered(*audit.Event) bool { return false }

// RecordTypeFilter suppresses an event if any of its records carry a
// blocked record type.
type RecordTypeFilter struct {
	blocked map[audit.RecordType]bool
}

// NewRecordTypeFilter builds a filter blocking the given record types.
func NewRecordTypeFilter(types ...audit.RecordType) *RecordTypeFilter {
	blocked := make(map[audit.RecordType]bool, len(types))
	for _, t := range types {
		blocked[t] = true
	}
	return &RecordTypeFilter{blocked: blocked}
}

func (f *RecordTypeFilter) IsFiltered(event *audit.Event) bool {
	for _, rec := range event.Records {
		if f.blocked[rec.Type] {
			return true
		}
	}
	return false
}

var (
	_ Filter = NoopFilter{}
	_ Filter = (*RecordTypeFilter)(nil)
)
