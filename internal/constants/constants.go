package constants

import "time"

// Engine defaults
const (
	// DefaultDepth is the default maximum number of in-flight operations
	DefaultDepth = 128

	// DefaultQueueCapacity is the default completion hand-off queue capacity
	DefaultQueueCapacity = 1024

	// DefaultDispatchers is the default number of completion delivery workers
	DefaultDispatchers = 1

	// DefaultBatchSize is the maximum completions delivered per queue take
	DefaultBatchSize = 32

	// BaseBlockSize is the storage page size (8KB)
	BaseBlockSize = 8192

	// SectorSize is the minimum direct I/O alignment
	SectorSize = 512
)

// Engine timing
const (
	// DefaultPollInterval bounds each wait on the facility for completions
	DefaultPollInterval = 10 * time.Millisecond

	// DefaultDrainTimeout bounds how long shutdown waits for in-flight work
	DefaultDrainTimeout = 5 * time.Second

	// DefaultFullBackoff is the pause before retrying a full hand-off queue
	DefaultFullBackoff = 200 * time.Microsecond

	// SubmitRetryBackoff is the pause after the facility accepts nothing
	SubmitRetryBackoff = 50 * time.Microsecond
)

// Slow-disk detection defaults
const (
	// MaxOverTimesSlowDisk is the consecutive-violation streak that marks a class slow
	MaxOverTimesSlowDisk = 3

	// SlowDiskSampleIgnore is the minimum samples in a window before it is judged
	SlowDiskSampleIgnore = 6000

	// SlowDiskCheckInterval is the number of samples between evaluations
	SlowDiskCheckInterval = 10000

	// AwaitRingCapacity is the ring size per class under the await policy
	AwaitRingCapacity = 600

	// RandomRingCapacity is the ring size for random I/O under the cost policy
	RandomRingCapacity = 1000

	// SequentialRingCapacity is the ring size for sequential I/O under the cost policy
	SequentialRingCapacity = 30000

	// DefaultMinRatio is the minimum share of window traffic a class needs to be judged
	DefaultMinRatio = 0.1

	// DefaultRandomThreshold is the cost threshold for random I/O
	DefaultRandomThreshold = 50 * time.Millisecond

	// DefaultSequentialThreshold is the cost threshold for sequential I/O
	DefaultSequentialThreshold = 20 * time.Millisecond

	// DefaultAwaitThreshold is the queueing-delay threshold under the await policy
	DefaultAwaitThreshold = 10 * time.Millisecond
)
