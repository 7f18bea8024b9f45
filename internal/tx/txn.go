package tx

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
	"github.com/spanner-go/spanner-go-sdk/internal/stream"
	"github.com/spanner-go/spanner-go-sdk/internal/tracing"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

type state uint8

const (
	stateActive state = iota
	stateCommitted
	stateRolledBack
	stateClosed
)

// txn is the state shared by snapshots and read-write transactions.
type txn struct {
	cfg      *Config
	session  Session
	readOnly bool
	tag      string

	// beginOptions are sent with an inline or explicit begin
	beginOptions *spannerpb.TransactionOptions
	// singleUse is set for single-use snapshots
	singleUse *spannerpb.TransactionSelector

	mu            sync.Mutex
	id            ID
	state         state
	used          bool
	seqno         int64
	reads         int64
	readTimestamp time.Time
	mutations     []*mutation.Mutation

	// beginLock is held by the statement which begins the transaction inline
	beginLock chan struct{}

	tokenMu sync.Mutex
	token   *spannerpb.MultiplexedSessionPrecommitToken

	release     func()
	releaseOnce sync.Once
}

func newTxn(cfg *Config, s Session, release func()) txn {
	return txn{
		cfg:       cfg,
		session:   s,
		beginLock: make(chan struct{}, 1),
		release:   release,
	}
}

// ID returns the transaction id, empty until the transaction has begun.
func (t *txn) ID() ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.id
}

func (t *txn) stateErr() error {
	switch t.state {
	case stateCommitted:
		return xerrors.ErrTransactionAlreadyCommitted
	case stateRolledBack:
		return xerrors.ErrTransactionAlreadyRolledBack
	case stateClosed:
		return xerrors.ErrTransactionClosed
	default:
		return nil
	}
}

func (t *txn) releaseSession() {
	t.releaseOnce.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
}

func noop() {}

// acquire returns the selector of the next request. When the transaction has not
// begun yet the first caller gets a begin selector and holds the inline-begin lock
// until it calls done; the others wait for the id. Sequence numbers are assigned
// after the selector, so they follow the order of execution on the server.
func (t *txn) acquire(ctx context.Context, dml bool) (
	selector *spannerpb.TransactionSelector, seqno int64, done func(), _ error,
) {
	if t.singleUse != nil {
		t.mu.Lock()
		defer t.mu.Unlock()

		if err := t.stateErr(); err != nil {
			return nil, 0, nil, xerrors.WithStackTrace(err)
		}
		if t.used {
			return nil, 0, nil, xerrors.WithStackTrace(xerrors.ErrSingleUseReused)
		}
		t.used = true

		return t.singleUse, t.nextSeqno(dml), noop, nil
	}

	for {
		t.mu.Lock()
		if err := t.stateErr(); err != nil {
			t.mu.Unlock()

			return nil, 0, nil, xerrors.WithStackTrace(err)
		}
		if t.id.Valid() {
			selector, seqno = idSelector(t.id), t.nextSeqno(dml)
			t.mu.Unlock()

			return selector, seqno, noop, nil
		}
		t.mu.Unlock()

		select {
		case t.beginLock <- struct{}{}:
		case <-ctx.Done():
			return nil, 0, nil, xerrors.WithStackTrace(ctx.Err())
		}

		t.mu.Lock()
		if err := t.stateErr(); err != nil {
			t.mu.Unlock()
			<-t.beginLock

			return nil, 0, nil, xerrors.WithStackTrace(err)
		}
		if t.id.Valid() {
			t.mu.Unlock()
			<-t.beginLock

			continue
		}
		seqno = t.nextSeqno(dml)
		t.mu.Unlock()

		var once sync.Once

		return beginSelector(t.beginOptions), seqno, func() {
			once.Do(func() {
				<-t.beginLock
			})
		}, nil
	}
}

// nextSeqno must be called under t.mu.
func (t *txn) nextSeqno(dml bool) int64 {
	if !dml {
		t.reads++

		return 0
	}
	seqno := t.seqno
	t.seqno++

	return seqno
}

// adopt records the transaction returned by an inline or explicit begin.
func (t *txn) adopt(tx *spannerpb.Transaction) {
	if tx == nil {
		return
	}

	t.mu.Lock()
	if !t.id.Valid() && len(tx.GetId()) > 0 {
		t.id = ID(tx.GetId())
	}
	if ts := tx.GetReadTimestamp(); ts != nil && t.readTimestamp.IsZero() {
		t.readTimestamp = ts.AsTime()
	}
	t.mu.Unlock()

	t.mergePrecommitToken(tx.GetPrecommitToken())
}

// mergePrecommitToken keeps the token with the highest sequence number.
func (t *txn) mergePrecommitToken(token *spannerpb.MultiplexedSessionPrecommitToken) {
	if token == nil {
		return
	}

	t.tokenMu.Lock()
	defer t.tokenMu.Unlock()

	if t.token == nil || token.GetSeqNum() > t.token.GetSeqNum() {
		t.token = token
	}
}

func (t *txn) precommitToken() *spannerpb.MultiplexedSessionPrecommitToken {
	t.tokenMu.Lock()
	defer t.tokenMu.Unlock()

	return t.token
}

func (t *txn) requestOptions(o statementOptions) *spannerpb.RequestOptions {
	ro := &spannerpb.RequestOptions{
		Priority:   o.priority,
		RequestTag: o.requestTag,
	}
	if !t.readOnly {
		ro.TransactionTag = t.tag
	}

	return ro
}

func (t *txn) callContext(ctx context.Context, id meta.RequestID) context.Context {
	t.session.MarkUsed()

	return t.cfg.meta.Context(ctx, id, meta.RouteToLeaderIf(!t.readOnly))
}

// rpcError converts the error of a unary call.
func (t *txn) rpcError(err error, trailer metadata.MD) error {
	err = xerrors.Transport(err, xerrors.WithTrailer(trailer))
	t.session.Check(err)

	return xerrors.WithStackTrace(err)
}

func (t *txn) spanAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	return append(attrs,
		tracing.KeySession.String(t.session.Name()),
		tracing.KeyMultiplexed.Bool(t.session.Multiplexed()),
	)
}

type openFunc func(
	ctx context.Context, selector *spannerpb.TransactionSelector, resumeToken []byte,
) (stream.Receiver, error)

// stream starts a resumable streaming call. An inline begin is completed before
// stream returns, so that the next statement can use the transaction id.
func (t *txn) stream(
	ctx context.Context, span trace.Span, selector *spannerpb.TransactionSelector, done func(), open openFunc,
) (*stream.Reader, error) {
	id := t.cfg.meta.NextRequestID()
	call := func(ctx context.Context, resumeToken []byte, attempt uint32) (stream.Receiver, error) {
		rid := id
		rid.Attempt = attempt
		if attempt > 1 {
			tracing.Event(ctx, "resume", tracing.KeyAttempt.Int64(int64(attempt)))
			if isBegin(selector) {
				if txID := t.ID(); txID.Valid() {
					selector = idSelector(txID)
				}
			}
		}

		return open(t.callContext(ctx, rid), selector, resumeToken)
	}

	reader := stream.NewReader(ctx, call, append(t.cfg.streamOptions(),
		stream.WithOnTransaction(t.adopt),
		stream.WithOnPrecommitToken(t.mergePrecommitToken),
		stream.WithOnDone(func(err error) {
			t.session.Check(err)
			tracing.Finish(span, err)
			if t.singleUse != nil {
				t.releaseSession()
			}
		}),
	)...)

	if isBegin(selector) {
		err := reader.Prefetch()
		done()
		if err != nil {
			return nil, xerrors.WithStackTrace(err)
		}
	}

	return reader, nil
}

func (t *txn) query(ctx context.Context, stmt Statement, opts []StatementOption) (*stream.Reader, error) {
	params, types, err := stmt.encode()
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	o := newStatementOptions(t.cfg.queryOptions, opts)

	selector, seqno, done, err := t.acquire(ctx, !t.readOnly)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	req := &spannerpb.ExecuteSqlRequest{
		Session:          t.session.Name(),
		Sql:              stmt.SQL,
		Params:           params,
		ParamTypes:       types,
		QueryMode:        o.queryMode,
		QueryOptions:     cloneQueryOptions(o.queryOptions),
		RequestOptions:   t.requestOptions(o),
		Seqno:            seqno,
		DataBoostEnabled: o.dataBoost,
		LastStatement:    o.lastStatement,
	}
	ctx, span := t.cfg.tracer.StartStatement(ctx, "spanner.ExecuteStreamingSql", stmt.SQL, t.spanAttributes()...)

	return t.stream(ctx, span, selector, done, func(
		ctx context.Context, selector *spannerpb.TransactionSelector, resumeToken []byte,
	) (stream.Receiver, error) {
		req.Transaction = selector
		req.ResumeToken = resumeToken

		return t.cfg.client.ExecuteStreamingSql(ctx, req)
	})
}

func (t *txn) read(
	ctx context.Context, table string, keys mutation.KeySet, columns []string, opts []StatementOption,
) (*stream.Reader, error) {
	keySet, err := keys.Proto()
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	o := newStatementOptions(nil, opts)

	selector, _, done, err := t.acquire(ctx, false)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	req := &spannerpb.ReadRequest{
		Session:          t.session.Name(),
		Table:            table,
		Index:            o.index,
		Columns:          columns,
		KeySet:           keySet,
		Limit:            o.limit,
		RequestOptions:   t.requestOptions(o),
		DataBoostEnabled: o.dataBoost,
	}
	ctx, span := t.cfg.tracer.Start(ctx, "spanner.StreamingRead", t.spanAttributes(tracing.KeyTable.String(table))...)

	return t.stream(ctx, span, selector, done, func(
		ctx context.Context, selector *spannerpb.TransactionSelector, resumeToken []byte,
	) (stream.Receiver, error) {
		req.Transaction = selector
		req.ResumeToken = resumeToken

		return t.cfg.client.StreamingRead(ctx, req)
	})
}

func (t *txn) readRow(
	ctx context.Context, table string, key mutation.Key, columns []string, opts []StatementOption,
) (*stream.Row, error) {
	reader, err := t.read(ctx, table, mutation.Keys(key), columns, opts)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	defer reader.Stop()

	row, err := reader.Next()
	if xerrors.Is(err, iterator.Done) {
		return nil, xerrors.WithStackTrace(&RowNotFoundError{Table: table, Key: key})
	}
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return row, nil
}

// begin issues BeginTransaction unless the transaction already has an id.
func (t *txn) begin(ctx context.Context, mutationKey *spannerpb.Mutation) error {
	t.mu.Lock()
	err, began := t.stateErr(), t.id.Valid()
	t.mu.Unlock()
	if err != nil {
		return xerrors.WithStackTrace(err)
	}
	if began {
		return nil
	}

	select {
	case t.beginLock <- struct{}{}:
	case <-ctx.Done():
		return xerrors.WithStackTrace(ctx.Err())
	}
	defer func() {
		<-t.beginLock
	}()
	if t.ID().Valid() {
		return nil
	}

	ctx, span := t.cfg.tracer.Start(ctx, "spanner.BeginTransaction", t.spanAttributes()...)
	var trailer metadata.MD
	tx, err := t.cfg.client.BeginTransaction(t.callContext(ctx, t.cfg.meta.NextRequestID()),
		&spannerpb.BeginTransactionRequest{
			Session:        t.session.Name(),
			Options:        t.beginOptions,
			RequestOptions: t.requestOptions(statementOptions{}),
			MutationKey:    mutationKey,
		},
		grpc.Trailer(&trailer),
	)
	if err != nil {
		err = t.rpcError(err, trailer)
		tracing.Finish(span, err)

		return err
	}
	t.adopt(tx)
	tracing.Finish(span, nil)

	return nil
}
