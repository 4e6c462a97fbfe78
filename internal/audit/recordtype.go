package audit

// RecordType tags one audit record. The numeric values are internal to
// this module; they need only be stable for the lifetime of a process.
type RecordType uint32

const (
	RecordTypeUnknown RecordType = iota
	RecordTypeSyscall
	RecordTypeExecve
	RecordTypeEOE
	RecordTypeCwd
	RecordTypePath
	RecordTypeUserStart
	RecordTypeUserEnd
	RecordTypeUserLogin
	RecordTypeUserAuth
	RecordTypeDaemonStart
	RecordTypeDaemonEnd
	RecordTypeAuomsDroppedRecords
)

var recordTypeNames = map[RecordType]string{
	RecordTypeUnknown:             "UNKNOWN",
	RecordTypeSyscall:             "SYSCALL",
	RecordTypeExecve:              "EXECVE",
	RecordTypeEOE:                 "EOE",
	RecordTypeCwd:                 "CWD",
	RecordTypePath:                "PATH",
	RecordTypeUserStart:           "USER_START",
	RecordTypeUserEnd:             "USER_END",
	RecordTypeUserLogin:           "USER_LOGIN",
	RecordTypeUserAuth:            "USER_AUTH",
	RecordTypeDaemonStart:         "DAEMON_START",
	RecordTypeDaemonEnd:           "DAEMON_END",
	RecordTypeAuomsDroppedRecords: "AUOMS_DROPPED_RECORDS",
}

// RecordTypeToName returns the record type's canonical name, or
// "UNKNOWN" for unregistered values.
func RecordTypeToName(rt RecordType) string {
	if name, ok := recordTypeNames[rt]; ok {
		return name
	}
	return "UNKNOWN"
}

// singleRecordEventTypes form a complete Event on their own: the kernel
// never emits a paired EOE for them, so the accumulator must finish the
// event the moment the first (and only) record arrives.
var singleRecordEventTypes = map[RecordType]bool{
	RecordTypeUserStart:   true,
	RecordTypeUserEnd:     true,
	RecordTypeUserLogin:   true,
	RecordTypeUserAuth:    true,
	RecordTypeDaemonStart: true,
	RecordTypeDaemonEnd:   true,
}

// IsSingleRecordEvent reports whether rtype completes an Event by itself.
func IsSingleRecordEvent(rtype RecordType) bool {
	return singleRecordEventTypes[rtype]
}
