package diskaio

import "github.com/ehrlich-b/go-diskaio/internal/constants"

// Re-export constants for public API
const (
	DefaultDepth          = constants.DefaultDepth
	DefaultQueueCapacity  = constants.DefaultQueueCapacity
	DefaultBatchSize      = constants.DefaultBatchSize
	DefaultPollInterval   = constants.DefaultPollInterval
	DefaultDrainTimeout   = constants.DefaultDrainTimeout
	BaseBlockSize         = constants.BaseBlockSize
	SectorSize            = constants.SectorSize
	MaxOverTimesSlowDisk  = constants.MaxOverTimesSlowDisk
	SlowDiskSampleIgnore  = constants.SlowDiskSampleIgnore
	SlowDiskCheckInterval = constants.SlowDiskCheckInterval
)
