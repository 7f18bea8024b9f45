package config

import (
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"

	"github.com/spanner-go/spanner-go-sdk/internal/stream"
	"github.com/spanner-go/spanner-go-sdk/internal/tx"
	"github.com/spanner-go/spanner-go-sdk/retry"
	"github.com/spanner-go/spanner-go-sdk/retry/budget"
)

const DefaultMaxBufferedChunks = stream.DefaultMaxBufferedChunks

// TransactionConfig groups the defaults of read-write transactions and commits.
type TransactionConfig struct {
	// Timeout bounds the retries of an aborted transaction.
	Timeout time.Duration

	// RetryDelay is used when the server gives no retry hint. Zero means exponential backoff.
	RetryDelay time.Duration

	// RetryBudget limits retries of aborted transactions across the client. Nil means no limit.
	RetryBudget budget.Budget

	IsolationLevel           spannerpb.TransactionOptions_IsolationLevel
	ReadLockMode             spannerpb.TransactionOptions_ReadWrite_ReadLockMode
	ExcludeFromChangeStreams bool

	// CommitStats requests mutation counts in commit responses.
	CommitStats    bool
	MaxCommitDelay time.Duration
	CommitPriority spannerpb.RequestOptions_Priority
}

var DefaultTransactionConfig = TransactionConfig{
	Timeout: retry.DefaultTimeout,
}

// Settings converts the group to transaction defaults.
func (c TransactionConfig) Settings() []tx.Option {
	opts := []tx.Option{
		tx.WithExcludeFromChangeStreams(c.ExcludeFromChangeStreams),
	}
	if c.IsolationLevel != spannerpb.TransactionOptions_ISOLATION_LEVEL_UNSPECIFIED {
		opts = append(opts, tx.WithIsolationLevel(c.IsolationLevel))
	}
	if c.ReadLockMode != spannerpb.TransactionOptions_ReadWrite_READ_LOCK_MODE_UNSPECIFIED {
		opts = append(opts, tx.WithReadLockMode(c.ReadLockMode))
	}

	return opts
}

// CommitOptions converts the group to commit defaults.
func (c TransactionConfig) CommitOptions() []tx.CommitOption {
	var opts []tx.CommitOption
	if c.CommitStats {
		opts = append(opts, tx.WithCommitStats())
	}
	if c.MaxCommitDelay > 0 {
		opts = append(opts, tx.WithMaxCommitDelay(c.MaxCommitDelay))
	}
	if c.CommitPriority != spannerpb.RequestOptions_PRIORITY_UNSPECIFIED {
		opts = append(opts, tx.WithCommitPriority(c.CommitPriority))
	}

	return opts
}

func WithTransactionConfig(transaction TransactionConfig) Option {
	return func(c *Config) {
		c.transaction = transaction
	}
}

// WithTransactionTimeout bounds the retries of aborted transactions.
func WithTransactionTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.transaction.Timeout = timeout
	}
}

func WithRetryBudget(b budget.Budget) Option {
	return func(c *Config) {
		c.transaction.RetryBudget = b
	}
}

func WithIsolationLevel(level spannerpb.TransactionOptions_IsolationLevel) Option {
	return func(c *Config) {
		c.transaction.IsolationLevel = level
	}
}

func WithCommitStats(enabled bool) Option {
	return func(c *Config) {
		c.transaction.CommitStats = enabled
	}
}

func WithMaxCommitDelay(d time.Duration) Option {
	return func(c *Config) {
		c.transaction.MaxCommitDelay = d
	}
}
