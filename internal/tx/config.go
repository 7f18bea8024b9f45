package tx

import (
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/jonboulle/clockwork"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/stream"
	"github.com/spanner-go/spanner-go-sdk/internal/tracing"
	"github.com/spanner-go/spanner-go-sdk/log"
	"github.com/spanner-go/spanner-go-sdk/retry"
	"github.com/spanner-go/spanner-go-sdk/retry/budget"
)

var logNames = []string{"spanner", "tx"}

// Session is the part of a session used by transactions.
type Session interface {
	Name() string
	Multiplexed() bool
	// MarkUsed records an RPC sent on the session.
	MarkUsed()
	// Check inspects the error of an RPC sent on the session.
	Check(err error)
}

// Config is shared by the transactions of one database handle.
type Config struct {
	client spannerpb.SpannerClient
	meta   *meta.Meta

	clock             clockwork.Clock
	logger            log.Logger
	tracer            *tracing.Tracer
	queryOptions      *spannerpb.ExecuteSqlRequest_QueryOptions
	defaults          []Option
	commitOptions     []CommitOption
	timeout           time.Duration
	retryDelay        time.Duration
	retryBudget       budget.Budget
	maxBufferedChunks int
}

type ConfigOption func(c *Config)

func WithClock(clock clockwork.Clock) ConfigOption {
	return func(c *Config) {
		c.clock = clock
	}
}

func WithLogger(l log.Logger) ConfigOption {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithTracer(t *tracing.Tracer) ConfigOption {
	return func(c *Config) {
		c.tracer = t
	}
}

// WithDefaultQueryOptions sets the client and environment layers of query options.
func WithDefaultQueryOptions(opts *spannerpb.ExecuteSqlRequest_QueryOptions) ConfigOption {
	return func(c *Config) {
		c.queryOptions = opts
	}
}

// WithDefaultSettings are applied to every read-write transaction before its own options.
func WithDefaultSettings(opts ...Option) ConfigOption {
	return func(c *Config) {
		c.defaults = append(c.defaults, opts...)
	}
}

// WithDefaultCommitOptions are applied to every commit before its own options.
func WithDefaultCommitOptions(opts ...CommitOption) ConfigOption {
	return func(c *Config) {
		c.commitOptions = append(c.commitOptions, opts...)
	}
}

// WithTimeout bounds the retries of aborted transactions.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDefaultRetryDelay replaces exponential backoff when the server sends no retry delay.
func WithDefaultRetryDelay(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.retryDelay = d
	}
}

// WithRetryBudget shares a quota of aborted transaction retries between all transactions.
func WithRetryBudget(b budget.Budget) ConfigOption {
	return func(c *Config) {
		c.retryBudget = b
	}
}

func WithMaxBufferedChunks(n int) ConfigOption {
	return func(c *Config) {
		if n > 0 {
			c.maxBufferedChunks = n
		}
	}
}

func NewConfig(client spannerpb.SpannerClient, m *meta.Meta, opts ...ConfigOption) *Config {
	c := &Config{
		client:            client,
		meta:              m,
		clock:             clockwork.NewRealClock(),
		logger:            log.Nop(),
		timeout:           retry.DefaultTimeout,
		maxBufferedChunks: stream.DefaultMaxBufferedChunks,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

func (c *Config) Meta() *meta.Meta {
	return c.meta
}

func (c *Config) Timeout() time.Duration {
	return c.timeout
}

func (c *Config) retryOptions(label string) []retry.Option {
	opts := []retry.Option{
		retry.WithLabel(label),
		retry.WithTimeout(c.timeout),
		retry.WithDefaultDelay(c.retryDelay),
		retry.WithClock(c.clock),
		retry.WithLogger(c.logger),
	}
	if c.retryBudget != nil {
		opts = append(opts, retry.WithBudget(c.retryBudget))
	}

	return opts
}

func (c *Config) streamOptions() []stream.Option {
	return []stream.Option{
		stream.WithMaxBufferedChunks(c.maxBufferedChunks),
		stream.WithClock(c.clock),
		stream.WithLogger(c.logger),
	}
}
