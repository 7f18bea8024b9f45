package tx

import (
	"context"
	"slices"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
	"github.com/spanner-go/spanner-go-sdk/internal/stream"
	"github.com/spanner-go/spanner-go-sdk/internal/tracing"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
	"github.com/spanner-go/spanner-go-sdk/retry"
)

// CommitResponse describes a successful commit.
type CommitResponse struct {
	CommitTimestamp time.Time
	// MutationCount is set when commit stats were requested.
	MutationCount int64
}

// ReadWriteTransaction runs reads, queries and DML under one server transaction
// and buffers mutations until Commit.
type ReadWriteTransaction struct {
	txn

	settings Settings
}

// NewReadWrite returns a read-write transaction which begins inline with its first
// statement. release is called after commit or rollback.
func NewReadWrite(cfg *Config, s Session, release func(), opts ...Option) *ReadWriteTransaction {
	t := &ReadWriteTransaction{
		txn: newTxn(cfg, s, release),
	}
	t.settings.apply(cfg.defaults...)
	t.settings.apply(opts...)
	t.tag = t.settings.tag
	t.beginOptions = t.settings.readWrite(s.Multiplexed())

	return t
}

func (t *ReadWriteTransaction) Query(ctx context.Context, stmt Statement, opts ...StatementOption) (*stream.Reader, error) {
	return t.query(ctx, stmt, opts)
}

func (t *ReadWriteTransaction) Read(
	ctx context.Context, table string, keys mutation.KeySet, columns []string, opts ...StatementOption,
) (*stream.Reader, error) {
	return t.read(ctx, table, keys, columns, opts)
}

func (t *ReadWriteTransaction) ReadRow(
	ctx context.Context, table string, key mutation.Key, columns []string, opts ...StatementOption,
) (*stream.Row, error) {
	return t.readRow(ctx, table, key, columns, opts)
}

// Update executes a DML statement and returns the number of modified rows.
// DML is never retried implicitly.
func (t *ReadWriteTransaction) Update(
	ctx context.Context, stmt Statement, opts ...StatementOption,
) (rowCount int64, finalErr error) {
	params, types, err := stmt.encode()
	if err != nil {
		return 0, xerrors.WithStackTrace(err)
	}
	o := newStatementOptions(t.cfg.queryOptions, opts)

	ctx, span := t.cfg.tracer.StartStatement(ctx, "spanner.ExecuteSql", stmt.SQL, t.spanAttributes()...)
	defer func() {
		tracing.Finish(span, finalErr, tracing.KeyRowCount.Int64(rowCount))
	}()

	selector, seqno, done, err := t.acquire(ctx, true)
	if err != nil {
		return 0, xerrors.WithStackTrace(err)
	}
	defer done()

	var trailer metadata.MD
	resp, err := t.cfg.client.ExecuteSql(t.callContext(ctx, t.cfg.meta.NextRequestID()),
		&spannerpb.ExecuteSqlRequest{
			Session:        t.session.Name(),
			Transaction:    selector,
			Sql:            stmt.SQL,
			Params:         params,
			ParamTypes:     types,
			QueryMode:      o.queryMode,
			QueryOptions:   cloneQueryOptions(o.queryOptions),
			RequestOptions: t.requestOptions(o),
			Seqno:          seqno,
			LastStatement:  o.lastStatement,
		},
		grpc.Trailer(&trailer),
	)
	if err != nil {
		return 0, t.rpcError(err, trailer)
	}
	t.adopt(resp.GetMetadata().GetTransaction())
	t.mergePrecommitToken(resp.GetPrecommitToken())

	return rowCountOf(resp.GetStats()), nil
}

func rowCountOf(stats *spannerpb.ResultSetStats) int64 {
	switch c := stats.GetRowCount().(type) {
	case *spannerpb.ResultSetStats_RowCountExact:
		return c.RowCountExact
	case *spannerpb.ResultSetStats_RowCountLowerBound:
		return c.RowCountLowerBound
	default:
		return 0
	}
}

// BatchUpdate executes DML statements in order and stops at the first failing one.
// The counts of the statements executed before the failure are returned with the error
// of the failing statement.
func (t *ReadWriteTransaction) BatchUpdate(
	ctx context.Context, stmts []Statement, opts ...StatementOption,
) (counts []int64, finalErr error) {
	if len(stmts) == 0 {
		return nil, xerrors.WithStackTrace(xerrors.InvalidArgument("no statements in batch update"))
	}
	statements := make([]*spannerpb.ExecuteBatchDmlRequest_Statement, 0, len(stmts))
	for _, stmt := range stmts {
		params, types, err := stmt.encode()
		if err != nil {
			return nil, xerrors.WithStackTrace(err)
		}
		statements = append(statements, &spannerpb.ExecuteBatchDmlRequest_Statement{
			Sql:        stmt.SQL,
			Params:     params,
			ParamTypes: types,
		})
	}
	o := newStatementOptions(nil, opts)

	ctx, span := t.cfg.tracer.Start(ctx, "spanner.ExecuteBatchDml", t.spanAttributes()...)
	defer func() {
		tracing.Finish(span, finalErr)
	}()

	selector, seqno, done, err := t.acquire(ctx, true)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	defer done()

	var trailer metadata.MD
	resp, err := t.cfg.client.ExecuteBatchDml(t.callContext(ctx, t.cfg.meta.NextRequestID()),
		&spannerpb.ExecuteBatchDmlRequest{
			Session:        t.session.Name(),
			Transaction:    selector,
			Statements:     statements,
			Seqno:          seqno,
			RequestOptions: t.requestOptions(o),
			LastStatements: o.lastStatement,
		},
		grpc.Trailer(&trailer),
	)
	if err != nil {
		return nil, t.rpcError(err, trailer)
	}

	counts = make([]int64, 0, len(resp.GetResultSets()))
	for _, rs := range resp.GetResultSets() {
		t.adopt(rs.GetMetadata().GetTransaction())
		t.mergePrecommitToken(rs.GetPrecommitToken())
		counts = append(counts, rowCountOf(rs.GetStats()))
	}
	t.mergePrecommitToken(resp.GetPrecommitToken())

	if st := resp.GetStatus(); st != nil && st.GetCode() != 0 {
		err = xerrors.Transport(status.ErrorProto(st), xerrors.WithTrailer(trailer))
		t.session.Check(err)

		return counts, xerrors.WithStackTrace(err)
	}

	return counts, nil
}

// BufferWrite adds mutations applied atomically by Commit.
func (t *ReadWriteTransaction) BufferWrite(ms ...*mutation.Mutation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.stateErr(); err != nil {
		return xerrors.WithStackTrace(err)
	}
	t.mutations = append(t.mutations, ms...)

	return nil
}

// Begin starts the transaction explicitly instead of inline with the first statement.
func (t *ReadWriteTransaction) Begin(ctx context.Context) error {
	key, err := t.mutationKey()
	if err != nil {
		return xerrors.WithStackTrace(err)
	}

	return t.begin(ctx, key)
}

// mutationKey picks the mutation a multiplexed session needs to begin a
// transaction which has only mutations.
func (t *ReadWriteTransaction) mutationKey() (*spannerpb.Mutation, error) {
	if !t.session.Multiplexed() {
		return nil, nil //nolint:nilnil
	}

	t.mu.Lock()
	ms := slices.Clone(t.mutations)
	t.mu.Unlock()
	if len(ms) == 0 {
		return nil, nil //nolint:nilnil
	}

	// an insert is the least selective key, anything else is preferred
	key := ms[0]
	for _, m := range ms {
		if m.Op() != mutation.OpInsert {
			key = m
			break
		}
	}

	return key.Proto()
}

// Commit applies the statements and mutations of the transaction. A commit
// aborted by the server is retried with the same transaction until the retry
// deadline.
func (t *ReadWriteTransaction) Commit(ctx context.Context, opts ...CommitOption) (*CommitResponse, error) {
	return t.commit(ctx, true, opts)
}

func (t *ReadWriteTransaction) commit(
	ctx context.Context, retryAborted bool, opts []CommitOption,
) (_ *CommitResponse, finalErr error) {
	t.mu.Lock()
	err := t.stateErr()
	ms := slices.Clone(t.mutations)
	t.mu.Unlock()
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	mutations, err := mutation.ToProto(ms)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	ctx, span := t.cfg.tracer.Start(ctx, "spanner.Commit", t.spanAttributes()...)
	defer func() {
		tracing.Finish(span, finalErr)
	}()

	if !t.ID().Valid() && t.session.Multiplexed() {
		if err = t.Begin(ctx); err != nil {
			return nil, xerrors.WithStackTrace(err)
		}
	}

	req := &spannerpb.CommitRequest{
		Session:        t.session.Name(),
		Mutations:      mutations,
		RequestOptions: &spannerpb.RequestOptions{TransactionTag: t.tag},
	}
	if id := t.ID(); id.Valid() {
		req.Transaction = &spannerpb.CommitRequest_TransactionId{TransactionId: id}
	} else {
		req.Transaction = &spannerpb.CommitRequest_SingleUseTransaction{
			SingleUseTransaction: t.settings.readWrite(false),
		}
	}
	var o commitOptions
	for _, opt := range append(slices.Clone(t.cfg.commitOptions), opts...) {
		if opt != nil {
			opt(&o)
		}
	}
	o.apply(req)

	var resp *spannerpb.CommitResponse
	op := func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			tracing.Event(ctx, "commit retry", tracing.KeyAttempt.Int64(int64(attempt)))
		}
		resp, err = t.commitOnce(ctx, req)

		return err
	}
	if retryAborted {
		err = retry.Retry(ctx, op, t.cfg.retryOptions("commit")...)
	} else {
		err = op(ctx, 0)
	}
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	t.mu.Lock()
	t.state = stateCommitted
	t.mu.Unlock()
	t.releaseSession()

	log.Debug(ctx, t.cfg.logger, logNames, "transaction committed",
		log.String("id", t.ID().String()),
		log.Int("mutations", len(mutations)),
	)

	return &CommitResponse{
		CommitTimestamp: resp.GetCommitTimestamp().AsTime(),
		MutationCount:   resp.GetCommitStats().GetMutationCount(),
	}, nil
}

// commitOnce sends Commit with the latest precommit token. A multiplexed session
// may answer with a newer token instead of committing, then the commit is repeated once.
func (t *ReadWriteTransaction) commitOnce(
	ctx context.Context, req *spannerpb.CommitRequest,
) (*spannerpb.CommitResponse, error) {
	req.PrecommitToken = t.precommitToken()
	resp, err := t.sendCommit(ctx, req)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	if token := resp.GetPrecommitToken(); token != nil {
		t.mergePrecommitToken(token)
		req.PrecommitToken = t.precommitToken()
		if resp, err = t.sendCommit(ctx, req); err != nil {
			return nil, xerrors.WithStackTrace(err)
		}
	}

	return resp, nil
}

func (t *ReadWriteTransaction) sendCommit(
	ctx context.Context, req *spannerpb.CommitRequest,
) (*spannerpb.CommitResponse, error) {
	var trailer metadata.MD
	resp, err := t.cfg.client.Commit(t.callContext(ctx, t.cfg.meta.NextRequestID()), req, grpc.Trailer(&trailer))
	if err != nil {
		return nil, t.rpcError(err, trailer)
	}

	return resp, nil
}

// Rollback abandons the transaction. The server is only called once the
// transaction has an id.
func (t *ReadWriteTransaction) Rollback(ctx context.Context) (finalErr error) {
	t.mu.Lock()
	if err := t.stateErr(); err != nil {
		t.mu.Unlock()

		return xerrors.WithStackTrace(err)
	}
	t.state = stateRolledBack
	id := t.id
	t.mu.Unlock()
	defer t.releaseSession()

	if !id.Valid() {
		return nil
	}

	ctx, span := t.cfg.tracer.Start(ctx, "spanner.Rollback", t.spanAttributes()...)
	defer func() {
		tracing.Finish(span, finalErr)
	}()

	var trailer metadata.MD
	_, err := t.cfg.client.Rollback(t.callContext(ctx, t.cfg.meta.NextRequestID()),
		&spannerpb.RollbackRequest{
			Session:       t.session.Name(),
			TransactionId: id,
		},
		grpc.Trailer(&trailer),
	)
	if err != nil {
		return t.rpcError(err, trailer)
	}

	return nil
}
