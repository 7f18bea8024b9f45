package spanner

import (
	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
	"github.com/spanner-go/spanner-go-sdk/internal/session"
	"github.com/spanner-go/spanner-go-sdk/internal/stream"
	"github.com/spanner-go/spanner-go-sdk/internal/tx"
	"github.com/spanner-go/spanner-go-sdk/internal/value"
)

type (
	Statement = tx.Statement

	// RowIterator streams the rows of a query or read. It sends no RPC until
	// the first call of Next or Do.
	RowIterator = stream.Reader
	Row         = stream.Row

	ReadOnlyTransaction  = tx.ReadOnlyTransaction
	ReadWriteTransaction = tx.ReadWriteTransaction
	TimestampBound       = tx.TimestampBound
	CommitResponse       = tx.CommitResponse
	Partition            = tx.Partition
	PartitionOptions     = tx.PartitionOptions

	MutationGroup      = tx.MutationGroup
	BatchWriteIterator = tx.BatchWriteIterator

	TransactionOption = tx.Option
	QueryOption       = tx.StatementOption
	CommitOption      = tx.CommitOption

	Mutation     = mutation.Mutation
	Key          = mutation.Key
	KeySet       = mutation.KeySet
	KeyRange     = mutation.KeyRange
	KeyRangeKind = mutation.KeyRangeKind

	JSON        = value.JSON
	NullValue   = value.Null
	Struct      = value.Struct
	StructField = value.StructField
	Interval    = value.Interval

	SessionStats = session.Stats
)

// CommitTimestamp is replaced by the commit timestamp of the transaction when
// written to a column allowing it.
var CommitTimestamp = value.CommitTimestamp

func NewStatement(sql string) Statement {
	return tx.NewStatement(sql)
}

var (
	StrongRead       = tx.StrongRead
	ReadTimestamp    = tx.ReadTimestamp
	MinReadTimestamp = tx.MinReadTimestamp
	MaxStaleness     = tx.MaxStaleness
	ExactStaleness   = tx.ExactStaleness
)

const (
	ClosedOpen   = mutation.ClosedOpen
	ClosedClosed = mutation.ClosedClosed
	OpenClosed   = mutation.OpenClosed
	OpenOpen     = mutation.OpenOpen
)

var (
	Insert         = mutation.Insert
	Update         = mutation.Update
	InsertOrUpdate = mutation.InsertOrUpdate
	Replace        = mutation.Replace
	Delete         = mutation.Delete
	FromMap        = mutation.FromMap

	AllKeys = mutation.AllKeys
	Keys    = mutation.Keys
	Ranges  = mutation.Ranges
	Union   = mutation.Union
)

var (
	WithIsolationLevel           = tx.WithIsolationLevel
	WithReadLockMode             = tx.WithReadLockMode
	WithExcludeFromChangeStreams = tx.WithExcludeFromChangeStreams
	WithTransactionTag           = tx.WithTransactionTag

	WithPriority              = tx.WithPriority
	WithRequestTag            = tx.WithRequestTag
	WithQueryMode             = tx.WithQueryMode
	WithStatementQueryOptions = tx.WithQueryOptions
	WithDataBoost             = tx.WithDataBoost
	WithLastStatement         = tx.WithLastStatement
	WithIndex                 = tx.WithIndex
	WithLimit                 = tx.WithLimit

	WithCommitStats    = tx.WithCommitStats
	WithMaxCommitDelay = tx.WithMaxCommitDelay
	WithCommitPriority = tx.WithCommitPriority
)
