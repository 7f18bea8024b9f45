package tx

import (
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
)

type statementOptions struct {
	priority      spannerpb.RequestOptions_Priority
	requestTag    string
	queryMode     spannerpb.ExecuteSqlRequest_QueryMode
	queryOptions  *spannerpb.ExecuteSqlRequest_QueryOptions
	dataBoost     bool
	lastStatement bool
	index         string
	limit         int64
}

// StatementOption configures one query, DML statement or read.
type StatementOption func(o *statementOptions)

func WithPriority(p spannerpb.RequestOptions_Priority) StatementOption {
	return func(o *statementOptions) {
		o.priority = p
	}
}

// WithRequestTag tags the single request it is passed to.
func WithRequestTag(tag string) StatementOption {
	return func(o *statementOptions) {
		o.requestTag = tag
	}
}

func WithQueryMode(mode spannerpb.ExecuteSqlRequest_QueryMode) StatementOption {
	return func(o *statementOptions) {
		o.queryMode = mode
	}
}

// WithQueryOptions merges opts over the options of the client.
func WithQueryOptions(opts *spannerpb.ExecuteSqlRequest_QueryOptions) StatementOption {
	return func(o *statementOptions) {
		o.queryOptions = MergeQueryOptions(o.queryOptions, opts)
	}
}

func WithDataBoost(enabled bool) StatementOption {
	return func(o *statementOptions) {
		o.dataBoost = enabled
	}
}

// WithLastStatement tells the server no other statement follows in the transaction.
func WithLastStatement() StatementOption {
	return func(o *statementOptions) {
		o.lastStatement = true
	}
}

// WithIndex reads through a secondary index instead of the primary key.
func WithIndex(index string) StatementOption {
	return func(o *statementOptions) {
		o.index = index
	}
}

func WithLimit(limit int64) StatementOption {
	return func(o *statementOptions) {
		o.limit = limit
	}
}

func newStatementOptions(defaults *spannerpb.ExecuteSqlRequest_QueryOptions, opts []StatementOption) statementOptions {
	o := statementOptions{queryOptions: defaults}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return o
}

// MergeQueryOptions layers the options from lowest to highest priority.
// A non-empty field of a later layer replaces the field of the earlier ones.
func MergeQueryOptions(layers ...*spannerpb.ExecuteSqlRequest_QueryOptions) *spannerpb.ExecuteSqlRequest_QueryOptions {
	var merged *spannerpb.ExecuteSqlRequest_QueryOptions
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if merged == nil {
			merged = &spannerpb.ExecuteSqlRequest_QueryOptions{}
		}
		if v := layer.GetOptimizerVersion(); v != "" {
			merged.OptimizerVersion = v
		}
		if p := layer.GetOptimizerStatisticsPackage(); p != "" {
			merged.OptimizerStatisticsPackage = p
		}
	}

	return merged
}

type commitOptions struct {
	returnStats    bool
	maxCommitDelay time.Duration
	priority       spannerpb.RequestOptions_Priority
}

type CommitOption func(o *commitOptions)

// WithCommitStats asks the server for the mutation count of the commit.
func WithCommitStats() CommitOption {
	return func(o *commitOptions) {
		o.returnStats = true
	}
}

// WithMaxCommitDelay lets the server delay the commit up to d to batch it with others.
func WithMaxCommitDelay(d time.Duration) CommitOption {
	return func(o *commitOptions) {
		o.maxCommitDelay = d
	}
}

func WithCommitPriority(p spannerpb.RequestOptions_Priority) CommitOption {
	return func(o *commitOptions) {
		o.priority = p
	}
}

func (o *commitOptions) apply(req *spannerpb.CommitRequest) {
	req.ReturnCommitStats = o.returnStats
	if o.maxCommitDelay > 0 {
		req.MaxCommitDelay = durationpb.New(o.maxCommitDelay)
	}
	if o.priority != spannerpb.RequestOptions_PRIORITY_UNSPECIFIED {
		if req.RequestOptions == nil {
			req.RequestOptions = &spannerpb.RequestOptions{}
		}
		req.RequestOptions.Priority = o.priority
	}
}

func cloneQueryOptions(o *spannerpb.ExecuteSqlRequest_QueryOptions) *spannerpb.ExecuteSqlRequest_QueryOptions {
	if o == nil {
		return nil
	}

	return proto.Clone(o).(*spannerpb.ExecuteSqlRequest_QueryOptions) //nolint:forcetypeassert
}
