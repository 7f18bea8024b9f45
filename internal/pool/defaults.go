package pool

import "time"

const (
	DefaultLimit = 100

	DefaultMinSize = 25

	// DefaultBatches is the number of concurrent create calls while the
	// pool is filled. Each call may create many items at once.
	DefaultBatches = 4

	// DefaultPingInterval is the idle time after which Maintain pings an item.
	DefaultPingInterval = 50 * time.Minute

	defaultCloseTimeout = 5 * time.Second
)
