package config

import (
	"time"

	"github.com/spanner-go/spanner-go-sdk/internal/pool"
	"github.com/spanner-go/spanner-go-sdk/internal/session"
)

// SessionPoolConfig groups the settings of regular sessions and of the
// multiplexed session.
type SessionPoolConfig struct {
	// MinOpened is the number of sessions created by warm-up and kept by maintenance.
	MinOpened int

	// MaxOpened is the limit of regular sessions. Get blocks while the limit is reached.
	MaxOpened int

	// Batches is the number of concurrent BatchCreateSessions calls of a warm-up.
	Batches int

	// HealthCheckInterval is the idle time after which a session is pinged.
	HealthCheckInterval time.Duration

	Labels       map[string]string
	DatabaseRole string

	// Multiplexed allows read-only and partitioned transactions on the multiplexed session.
	Multiplexed bool

	// MultiplexedReadWrite also allows read-write transactions on it.
	MultiplexedReadWrite bool

	// MultiplexedRefreshInterval is the age after which the multiplexed session is replaced.
	MultiplexedRefreshInterval time.Duration
}

var DefaultSessionPoolConfig = SessionPoolConfig{
	MinOpened:                  pool.DefaultMinSize,
	MaxOpened:                  pool.DefaultLimit,
	Batches:                    pool.DefaultBatches,
	HealthCheckInterval:        pool.DefaultPingInterval,
	Multiplexed:                true,
	MultiplexedReadWrite:       true,
	MultiplexedRefreshInterval: session.DefaultRefreshInterval,
}

// Options converts the group to session manager options.
func (c SessionPoolConfig) Options() []session.Option {
	return []session.Option{
		session.WithMinSize(c.MinOpened),
		session.WithMaxSize(c.MaxOpened),
		session.WithBatches(c.Batches),
		session.WithPingInterval(c.HealthCheckInterval),
		session.WithLabels(c.Labels),
		session.WithDatabaseRole(c.DatabaseRole),
		session.WithMultiplexed(c.Multiplexed),
		session.WithMultiplexedReadWrite(c.MultiplexedReadWrite),
		session.WithMultiplexedRefresh(0, c.MultiplexedRefreshInterval),
	}
}

func WithSessionPoolConfig(pool SessionPoolConfig) Option {
	return func(c *Config) {
		c.sessionPool = pool
	}
}

func WithMinOpened(n int) Option {
	return func(c *Config) {
		c.sessionPool.MinOpened = n
	}
}

func WithMaxOpened(n int) Option {
	return func(c *Config) {
		c.sessionPool.MaxOpened = n
	}
}

func WithSessionLabels(labels map[string]string) Option {
	return func(c *Config) {
		c.sessionPool.Labels = labels
	}
}

// WithDatabaseRole sets the fine-grained access control role of created sessions.
func WithDatabaseRole(role string) Option {
	return func(c *Config) {
		c.sessionPool.DatabaseRole = role
	}
}

func WithMultiplexedSessions(enabled bool) Option {
	return func(c *Config) {
		c.sessionPool.Multiplexed = enabled
	}
}

func WithMultiplexedSessionsForReadWrite(enabled bool) Option {
	return func(c *Config) {
		c.sessionPool.MultiplexedReadWrite = enabled
	}
}
