package tx

import (
	"context"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
	"github.com/spanner-go/spanner-go-sdk/internal/stream"
	"github.com/spanner-go/spanner-go-sdk/internal/tracing"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

// ReadOnlyTransaction reads a consistent snapshot of the database.
// A single-use snapshot serves exactly one read or query.
type ReadOnlyTransaction struct {
	txn

	bound    TimestampBound
	multiUse bool
}

// NewSingleUse returns a snapshot for one read or query. release is called once
// the operation is over.
func NewSingleUse(cfg *Config, s Session, bound TimestampBound, release func()) *ReadOnlyTransaction {
	t := &ReadOnlyTransaction{
		txn:   newTxn(cfg, s, release),
		bound: bound,
	}
	t.readOnly = true
	t.singleUse = singleUseSelector(bound.options())

	return t
}

// NewReadOnly returns a multi-use snapshot. The transaction begins inline with the
// first read or query, or explicitly with Begin. release is called by Close.
func NewReadOnly(cfg *Config, s Session, bound TimestampBound, release func()) (*ReadOnlyTransaction, error) {
	if bound.SingleUseOnly() {
		return nil, xerrors.WithStackTrace(xerrors.InvalidArgument(
			"timestamp bound %s is not allowed for multi-use read-only transactions", bound,
		))
	}

	t := &ReadOnlyTransaction{
		txn:      newTxn(cfg, s, release),
		bound:    bound,
		multiUse: true,
	}
	t.readOnly = true
	t.beginOptions = bound.options()

	return t, nil
}

func (t *ReadOnlyTransaction) MultiUse() bool {
	return t.multiUse
}

func (t *ReadOnlyTransaction) TimestampBound() TimestampBound {
	return t.bound
}

func (t *ReadOnlyTransaction) Query(ctx context.Context, stmt Statement, opts ...StatementOption) (*stream.Reader, error) {
	return t.query(ctx, stmt, opts)
}

func (t *ReadOnlyTransaction) Read(
	ctx context.Context, table string, keys mutation.KeySet, columns []string, opts ...StatementOption,
) (*stream.Reader, error) {
	return t.read(ctx, table, keys, columns, opts)
}

func (t *ReadOnlyTransaction) ReadRow(
	ctx context.Context, table string, key mutation.Key, columns []string, opts ...StatementOption,
) (*stream.Row, error) {
	return t.readRow(ctx, table, key, columns, opts)
}

// Begin starts a multi-use snapshot explicitly. It is needed before partitioning.
func (t *ReadOnlyTransaction) Begin(ctx context.Context) error {
	if !t.multiUse {
		return xerrors.WithStackTrace(xerrors.ErrSingleUseReused)
	}

	return t.begin(ctx, nil)
}

// Timestamp returns the read timestamp, known once the snapshot has begun.
func (t *ReadOnlyTransaction) Timestamp() (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.readTimestamp.IsZero() {
		return time.Time{}, xerrors.WithStackTrace(xerrors.ErrTransactionNotBegun)
	}

	return t.readTimestamp, nil
}

// Close ends the snapshot. Further operations fail.
func (t *ReadOnlyTransaction) Close() {
	t.mu.Lock()
	if t.state == stateActive {
		t.state = stateClosed
	}
	t.mu.Unlock()
	t.releaseSession()
}

// Partition is a part of a query or read which can run on its own.
type Partition struct {
	Token []byte

	query *spannerpb.ExecuteSqlRequest
	read  *spannerpb.ReadRequest
}

type PartitionOptions struct {
	// PartitionSizeBytes is a hint of the desired data size of a partition.
	PartitionSizeBytes int64
	// MaxPartitions is a hint of the desired partition count.
	MaxPartitions int64
}

func (o PartitionOptions) proto() *spannerpb.PartitionOptions {
	return &spannerpb.PartitionOptions{
		PartitionSizeBytes: o.PartitionSizeBytes,
		MaxPartitions:      o.MaxPartitions,
	}
}

func (t *ReadOnlyTransaction) partitionSelector() (*spannerpb.TransactionSelector, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.stateErr(); err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	if !t.id.Valid() {
		return nil, xerrors.WithStackTrace(xerrors.ErrTransactionNotBegun)
	}

	return idSelector(t.id), nil
}

// PartitionQuery splits the query into partitions executed by Execute.
func (t *ReadOnlyTransaction) PartitionQuery(
	ctx context.Context, stmt Statement, po PartitionOptions, opts ...StatementOption,
) (_ []*Partition, finalErr error) {
	selector, err := t.partitionSelector()
	if err != nil {
		return nil, err
	}
	params, types, err := stmt.encode()
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	o := newStatementOptions(t.cfg.queryOptions, opts)

	ctx, span := t.cfg.tracer.StartStatement(ctx, "spanner.PartitionQuery", stmt.SQL, t.spanAttributes()...)
	defer func() {
		tracing.Finish(span, finalErr)
	}()

	var trailer metadata.MD
	resp, err := t.cfg.client.PartitionQuery(t.callContext(ctx, t.cfg.meta.NextRequestID()),
		&spannerpb.PartitionQueryRequest{
			Session:          t.session.Name(),
			Transaction:      selector,
			Sql:              stmt.SQL,
			Params:           params,
			ParamTypes:       types,
			PartitionOptions: po.proto(),
		},
		grpc.Trailer(&trailer),
	)
	if err != nil {
		return nil, t.rpcError(err, trailer)
	}

	partitions := make([]*Partition, 0, len(resp.GetPartitions()))
	for _, p := range resp.GetPartitions() {
		partitions = append(partitions, &Partition{
			Token: p.GetPartitionToken(),
			query: &spannerpb.ExecuteSqlRequest{
				Sql:              stmt.SQL,
				Params:           params,
				ParamTypes:       types,
				QueryOptions:     cloneQueryOptions(o.queryOptions),
				RequestOptions:   t.requestOptions(o),
				DataBoostEnabled: o.dataBoost,
				PartitionToken:   p.GetPartitionToken(),
			},
		})
	}

	return partitions, nil
}

// PartitionRead splits the read into partitions executed by Execute.
func (t *ReadOnlyTransaction) PartitionRead(
	ctx context.Context, table string, keys mutation.KeySet, columns []string, po PartitionOptions,
	opts ...StatementOption,
) (_ []*Partition, finalErr error) {
	selector, err := t.partitionSelector()
	if err != nil {
		return nil, err
	}
	keySet, err := keys.Proto()
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	o := newStatementOptions(nil, opts)

	ctx, span := t.cfg.tracer.Start(ctx, "spanner.PartitionRead", t.spanAttributes(tracing.KeyTable.String(table))...)
	defer func() {
		tracing.Finish(span, finalErr)
	}()

	var trailer metadata.MD
	resp, err := t.cfg.client.PartitionRead(t.callContext(ctx, t.cfg.meta.NextRequestID()),
		&spannerpb.PartitionReadRequest{
			Session:          t.session.Name(),
			Transaction:      selector,
			Table:            table,
			Index:            o.index,
			Columns:          columns,
			KeySet:           keySet,
			PartitionOptions: po.proto(),
		},
		grpc.Trailer(&trailer),
	)
	if err != nil {
		return nil, t.rpcError(err, trailer)
	}

	partitions := make([]*Partition, 0, len(resp.GetPartitions()))
	for _, p := range resp.GetPartitions() {
		partitions = append(partitions, &Partition{
			Token: p.GetPartitionToken(),
			read: &spannerpb.ReadRequest{
				Table:            table,
				Index:            o.index,
				Columns:          columns,
				KeySet:           keySet,
				RequestOptions:   t.requestOptions(o),
				DataBoostEnabled: o.dataBoost,
				PartitionToken:   p.GetPartitionToken(),
			},
		})
	}

	return partitions, nil
}

// Execute runs one partition in the snapshot it was created by.
func (t *ReadOnlyTransaction) Execute(ctx context.Context, p *Partition) (*stream.Reader, error) {
	selector, err := t.partitionSelector()
	if err != nil {
		return nil, err
	}

	switch {
	case p.query != nil:
		req := proto.Clone(p.query).(*spannerpb.ExecuteSqlRequest) //nolint:forcetypeassert
		req.Session = t.session.Name()
		ctx, span := t.cfg.tracer.StartStatement(ctx, "spanner.ExecuteStreamingSql", req.GetSql(), t.spanAttributes()...)

		return t.stream(ctx, span, selector, noop, func(
			ctx context.Context, selector *spannerpb.TransactionSelector, resumeToken []byte,
		) (stream.Receiver, error) {
			req.Transaction = selector
			req.ResumeToken = resumeToken

			return t.cfg.client.ExecuteStreamingSql(ctx, req)
		})
	case p.read != nil:
		req := proto.Clone(p.read).(*spannerpb.ReadRequest) //nolint:forcetypeassert
		req.Session = t.session.Name()
		ctx, span := t.cfg.tracer.Start(ctx, "spanner.StreamingRead",
			t.spanAttributes(tracing.KeyTable.String(req.GetTable()))...,
		)

		return t.stream(ctx, span, selector, noop, func(
			ctx context.Context, selector *spannerpb.TransactionSelector, resumeToken []byte,
		) (stream.Receiver, error) {
			req.Transaction = selector
			req.ResumeToken = resumeToken

			return t.cfg.client.StreamingRead(ctx, req)
		})
	default:
		return nil, xerrors.WithStackTrace(xerrors.InvalidArgument("empty partition"))
	}
}
