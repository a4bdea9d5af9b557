package tracegen

import "time"

// Runner configuration constants.
const (
	WorkerChannelMultiplier = 2
	PollInterval            = 250 * time.Millisecond
	PercentageMultiplier    = 100
	directoryPermission     = 0o750
	logFilePermission       = 0o600
)
