package auditfwd

import "github.com/ehrlich-b/auditfwd/internal/constants"

// Re-export tunables for the public API.
const (
	MaxEventSize         = constants.MaxEventSize
	MaxExecveAccumSize   = constants.MaxExecveAccumSize
	MaxNumExecveRecords  = constants.MaxNumExecveRecords
	NumExecveRHPreserve  = constants.NumExecveRHPreserve
	MaxCacheEntry        = constants.MaxCacheEntry
	DefaultAckQueueSize  = constants.DefaultAckQueueSize
	MinAckTimeout        = constants.MinAckTimeout
	StartSleepPeriod     = constants.StartSleepPeriod
	MaxSleepPeriod       = constants.MaxSleepPeriod
	DataSize             = constants.DataSize
	MaxItemSize          = constants.MaxItemSize
)
