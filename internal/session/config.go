package session

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/spanner-go/spanner-go-sdk/internal/pool"
	"github.com/spanner-go/spanner-go-sdk/log"
)

const (
	DefaultPollInterval    = 10 * time.Minute
	DefaultRefreshInterval = 7 * 24 * time.Hour

	// DefaultMaintainInterval is the period of the regular pool keep-alive pass.
	DefaultMaintainInterval = time.Minute
	DefaultCreateTimeout    = 30 * time.Second
)

type Config struct {
	minSize          int
	maxSize          int
	batches          int
	pingInterval     time.Duration
	maintainInterval time.Duration
	createTimeout    time.Duration
	labels           map[string]string
	databaseRole     string

	multiplexed          bool
	multiplexedReadWrite bool
	pollInterval         time.Duration
	refreshInterval      time.Duration

	clock  clockwork.Clock
	logger log.Logger
}

type Option func(c *Config)

func defaultConfig() Config {
	return Config{
		minSize:              pool.DefaultMinSize,
		maxSize:              pool.DefaultLimit,
		batches:              pool.DefaultBatches,
		pingInterval:         pool.DefaultPingInterval,
		maintainInterval:     DefaultMaintainInterval,
		createTimeout:        DefaultCreateTimeout,
		multiplexed:          true,
		multiplexedReadWrite: true,
		pollInterval:         DefaultPollInterval,
		refreshInterval:      DefaultRefreshInterval,
		clock:                clockwork.NewRealClock(),
		logger:               log.Nop(),
	}
}

func WithMinSize(size int) Option {
	return func(c *Config) {
		c.minSize = size
	}
}

func WithMaxSize(size int) Option {
	return func(c *Config) {
		c.maxSize = size
	}
}

// WithBatches sets the number of concurrent BatchCreateSessions calls of a warm-up.
func WithBatches(n int) Option {
	return func(c *Config) {
		c.batches = n
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Config) {
		c.pingInterval = d
	}
}

func WithMaintainInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.maintainInterval = d
		}
	}
}

func WithCreateTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.createTimeout = d
	}
}

func WithLabels(labels map[string]string) Option {
	return func(c *Config) {
		c.labels = labels
	}
}

func WithDatabaseRole(role string) Option {
	return func(c *Config) {
		c.databaseRole = role
	}
}

// WithMultiplexed allows read-only and partitioned transactions on the multiplexed session.
func WithMultiplexed(enabled bool) Option {
	return func(c *Config) {
		c.multiplexed = enabled
	}
}

// WithMultiplexedReadWrite allows read-write transactions on the multiplexed session.
func WithMultiplexedReadWrite(enabled bool) Option {
	return func(c *Config) {
		c.multiplexedReadWrite = enabled
	}
}

// WithMultiplexedRefresh sets how often the multiplexed session age is checked
// and the age after which it is replaced.
func WithMultiplexedRefresh(poll, refresh time.Duration) Option {
	return func(c *Config) {
		if poll > 0 {
			c.pollInterval = poll
		}
		if refresh > 0 {
			c.refreshInterval = refresh
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		c.clock = clock
	}
}

func WithLogger(l log.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

func (c *Config) MinSize() int {
	return c.minSize
}

func (c *Config) MaxSize() int {
	return c.maxSize
}

func (c *Config) Labels() map[string]string {
	return c.labels
}

// MultiplexedFor reports whether the configuration lets kind use the multiplexed session.
func (c *Config) MultiplexedFor(kind Kind) bool {
	if kind == KindReadWrite {
		return c.multiplexed && c.multiplexedReadWrite
	}

	return c.multiplexed
}
