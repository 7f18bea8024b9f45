package tx

import (
	"cloud.google.com/go/spanner/apiv1/spannerpb"
)

// Settings configure a read-write transaction.
type Settings struct {
	isolationLevel           spannerpb.TransactionOptions_IsolationLevel
	readLockMode             spannerpb.TransactionOptions_ReadWrite_ReadLockMode
	excludeFromChangeStreams bool
	tag                      string
	previousID               ID
}

type Option func(s *Settings)

func WithIsolationLevel(level spannerpb.TransactionOptions_IsolationLevel) Option {
	return func(s *Settings) {
		s.isolationLevel = level
	}
}

func WithReadLockMode(mode spannerpb.TransactionOptions_ReadWrite_ReadLockMode) Option {
	return func(s *Settings) {
		s.readLockMode = mode
	}
}

// WithExcludeFromChangeStreams keeps the writes of the transaction out of change streams
// watching the modified tables.
func WithExcludeFromChangeStreams(exclude bool) Option {
	return func(s *Settings) {
		s.excludeFromChangeStreams = exclude
	}
}

// WithTransactionTag attaches tag to every request of the transaction.
// Read-only transactions ignore it.
func WithTransactionTag(tag string) Option {
	return func(s *Settings) {
		s.tag = tag
	}
}

// WithPreviousTransactionID hints the id of an aborted attempt, so that the retry
// keeps the lock priority of the previous one on a multiplexed session.
func WithPreviousTransactionID(id ID) Option {
	return func(s *Settings) {
		s.previousID = id
	}
}

func NewSettings(opts ...Option) Settings {
	var s Settings
	s.apply(opts...)

	return s
}

func (s *Settings) apply(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
}

func (s *Settings) Tag() string {
	return s.tag
}

func (s *Settings) readWrite(multiplexed bool) *spannerpb.TransactionOptions {
	rw := &spannerpb.TransactionOptions_ReadWrite{
		ReadLockMode: s.readLockMode,
	}
	if multiplexed && s.previousID.Valid() {
		rw.MultiplexedSessionPreviousTransactionId = s.previousID
	}

	return &spannerpb.TransactionOptions{
		Mode:                        &spannerpb.TransactionOptions_ReadWrite_{ReadWrite: rw},
		ExcludeTxnFromChangeStreams: s.excludeFromChangeStreams,
		IsolationLevel:              s.isolationLevel,
	}
}

func (s *Settings) partitionedDML() *spannerpb.TransactionOptions {
	return &spannerpb.TransactionOptions{
		Mode: &spannerpb.TransactionOptions_PartitionedDml_{
			PartitionedDml: &spannerpb.TransactionOptions_PartitionedDml{},
		},
		ExcludeTxnFromChangeStreams: s.excludeFromChangeStreams,
	}
}
