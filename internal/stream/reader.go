package stream

import (
	"context"
	"io"
	"iter"
	"sync"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/jonboulle/clockwork"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/backoff"
	"github.com/spanner-go/spanner-go-sdk/internal/value"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
)

// DefaultMaxBufferedChunks bounds the chunks kept between two resume tokens.
// Once exceeded, buffered rows are released and the stream is no longer resumable.
const DefaultMaxBufferedChunks = 1024

var logNames = []string{"spanner", "stream"}

// Receiver is the client side of a server-streaming call of partial result sets.
type Receiver interface {
	Recv() (*spannerpb.PartialResultSet, error)
	Trailer() metadata.MD
}

// Call (re)issues the streaming RPC. resumeToken is empty for the first call;
// attempt starts from 1 and grows with every resumption.
type Call func(ctx context.Context, resumeToken []byte, attempt uint32) (Receiver, error)

type Option func(r *Reader)

func WithOnTransaction(f func(tx *spannerpb.Transaction)) Option {
	return func(r *Reader) {
		r.onTransaction = f
	}
}

func WithOnPrecommitToken(f func(token *spannerpb.MultiplexedSessionPrecommitToken)) Option {
	return func(r *Reader) {
		r.onPrecommitToken = f
	}
}

// WithOnDone registers f to be called once with the terminal error of the reader
// (nil after end of stream or Stop).
func WithOnDone(f func(err error)) Option {
	return func(r *Reader) {
		r.onDone = f
	}
}

func WithMaxBufferedChunks(n int) Option {
	return func(r *Reader) {
		r.maxBufferedChunks = n
	}
}

func WithBackoff(b backoff.Backoff) Option {
	return func(r *Reader) {
		r.backoff = b
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(r *Reader) {
		r.clock = clock
	}
}

func WithLogger(l log.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reader is a pull iterator over the rows of one streaming query or read.
// It reassembles chunked values and transparently resumes broken streams
// from the last resume token. A Reader is not safe for concurrent use; cancel the
// parent context to abort it from another goroutine.
type Reader struct {
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc
	call   Call

	onTransaction     func(tx *spannerpb.Transaction)
	onPrecommitToken  func(token *spannerpb.MultiplexedSessionPrecommitToken)
	onDone            func(err error)
	maxBufferedChunks int
	backoff           backoff.Backoff
	clock             clockwork.Clock
	logger            log.Logger

	stream      Receiver
	attempt     uint32
	resumeToken []byte
	resumable   bool

	metadata *spannerpb.ResultSetMetadata
	stats    *spannerpb.ResultSetStats
	txSeen   bool

	// chunks received since the last resume token
	unflushed []*spannerpb.PartialResultSet
	// assembled state covered by a resume token
	pending *structpb.Value
	partial []*structpb.Value
	rows    []*Row

	eos      bool
	err      error
	doneOnce sync.Once
}

func NewReader(ctx context.Context, call Call, opts ...Option) *Reader {
	r := &Reader{
		call:              call,
		maxBufferedChunks: DefaultMaxBufferedChunks,
		backoff:           backoff.Fast,
		clock:             clockwork.NewRealClock(),
		logger:            log.Nop(),
		resumable:         true,
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Next returns the next row, or iterator.Done after the last one.
func (r *Reader) Next() (*Row, error) {
	for {
		if len(r.rows) > 0 {
			row := r.rows[0]
			r.rows[0] = nil
			r.rows = r.rows[1:]

			return row, nil
		}
		if r.err != nil {
			return nil, r.err
		}
		if r.eos {
			return nil, iterator.Done
		}
		r.step()
	}
}

// Prefetch receives from the stream until the result metadata is known.
// It lets an inline-begun transaction learn its id before any row is consumed.
func (r *Reader) Prefetch() error {
	for r.metadata == nil && r.err == nil && !r.eos {
		r.step()
	}

	return r.err
}

// Stop cancels the stream. Subsequent calls of Next return iterator.Done.
func (r *Reader) Stop() {
	r.cancel()
	if r.err == nil && !r.eos {
		r.eos = true
		r.rows = nil
		r.finish(nil)
	}
}

// Do calls f for every row. Iteration stops at the first error of f or of the stream.
func (r *Reader) Do(f func(row *Row) error) error {
	defer r.Stop()

	for {
		row, err := r.Next()
		if xerrors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err = f(row); err != nil {
			return err
		}
	}
}

// All adapts the reader to a range-over-func iterator.
func (r *Reader) All() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		defer r.Stop()

		for {
			row, err := r.Next()
			if xerrors.Is(err, iterator.Done) {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// Metadata returns the result set metadata once the first chunk has arrived.
func (r *Reader) Metadata() *spannerpb.ResultSetMetadata {
	return r.metadata
}

// Stats returns the result set statistics, sent with the last chunk.
func (r *Reader) Stats() *spannerpb.ResultSetStats {
	return r.stats
}

// RowCount returns the exact or lower-bound count of modified rows of a DML statement.
func (r *Reader) RowCount() (int64, bool) {
	switch c := r.stats.GetRowCount().(type) {
	case *spannerpb.ResultSetStats_RowCountExact:
		return c.RowCountExact, true
	case *spannerpb.ResultSetStats_RowCountLowerBound:
		return c.RowCountLowerBound, true
	default:
		return 0, false
	}
}

// Timestamp returns the read timestamp of an inline-begun read-only transaction.
func (r *Reader) Timestamp() time.Time {
	ts := r.metadata.GetTransaction().GetReadTimestamp()
	if ts == nil {
		return time.Time{}
	}

	return ts.AsTime()
}

func (r *Reader) finish(err error) {
	r.doneOnce.Do(func() {
		r.cancel()
		if r.onDone != nil {
			r.onDone(err)
		}
	})
}

func (r *Reader) fail(err error) {
	r.err = xerrors.WithStackTrace(err)
	r.rows = nil
	r.finish(r.err)
}

// step performs one receive and advances the state machine.
func (r *Reader) step() {
	if r.stream == nil {
		r.attempt++
		stream, err := r.call(r.ctx, r.resumeToken, r.attempt)
		if err != nil {
			r.onStreamError(err, nil)

			return
		}
		r.stream = stream
	}

	msg, err := r.stream.Recv()
	if err == io.EOF { //nolint:errorlint
		r.endOfStream()

		return
	}
	if err != nil {
		r.onStreamError(err, r.stream.Trailer())

		return
	}
	if err := r.receive(msg); err != nil {
		r.fail(err)
	}
}

func (r *Reader) onStreamError(err error, trailer metadata.MD) {
	err = xerrors.Transport(err, xerrors.WithTrailer(trailer))
	if r.ctx.Err() != nil {
		r.fail(r.ctx.Err())

		return
	}
	if !r.resumable || !xerrors.IsResumable(err) {
		r.fail(err)

		return
	}

	log.Debug(r.ctx, r.logger, logNames, "resuming stream",
		log.Error(err),
		log.Int64("attempt", int64(r.attempt)),
		log.Int("dropped_chunks", len(r.unflushed)),
	)

	r.stream = nil
	r.unflushed = nil

	select {
	case <-r.ctx.Done():
		r.fail(r.ctx.Err())
	case <-r.clock.After(r.backoff.Delay(int(r.attempt) - 1)):
	}
}

func (r *Reader) receive(msg *spannerpb.PartialResultSet) error {
	if r.metadata == nil && msg.GetMetadata() != nil {
		r.metadata = msg.GetMetadata()
	}
	if tx := msg.GetMetadata().GetTransaction(); !r.txSeen && len(tx.GetId()) > 0 {
		r.txSeen = true
		if r.onTransaction != nil {
			r.onTransaction(tx)
		}
	}
	if token := msg.GetPrecommitToken(); token != nil && r.onPrecommitToken != nil {
		r.onPrecommitToken(token)
	}
	if msg.GetStats() != nil {
		r.stats = msg.GetStats()
	}

	r.unflushed = append(r.unflushed, msg)

	switch {
	case len(msg.GetResumeToken()) > 0:
		r.resumeToken = msg.GetResumeToken()

		return r.flush()
	case len(r.unflushed) > r.maxBufferedChunks:
		// rows leave the buffer without a resume token covering them
		r.resumable = false

		return r.flush()
	default:
		return nil
	}
}

func (r *Reader) endOfStream() {
	if err := r.flush(); err != nil {
		r.fail(err)

		return
	}
	if r.pending != nil {
		r.fail(&value.DecodeMismatchError{Value: r.pending, Reason: "stream ended inside a chunked value"})

		return
	}
	if len(r.partial) > 0 {
		r.fail(&value.DecodeMismatchError{Reason: "stream ended inside a row"})

		return
	}
	r.eos = true
	r.finish(nil)
}

// flush moves unflushed chunks into assembled rows.
func (r *Reader) flush() error {
	chunks := r.unflushed
	r.unflushed = nil

	for _, msg := range chunks {
		values := msg.GetValues()
		if r.pending != nil && len(values) > 0 {
			merged, err := value.Merge(r.pending, values[0])
			if err != nil {
				return err
			}
			values = append([]*structpb.Value{merged}, values[1:]...)
			r.pending = nil
		}
		if msg.GetChunkedValue() && len(values) > 0 {
			r.pending = values[len(values)-1]
			values = values[:len(values)-1]
		}
		if err := r.appendValues(values); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reader) appendValues(values []*structpb.Value) error {
	if len(values) == 0 {
		return nil
	}
	fields := r.metadata.GetRowType().GetFields()
	if len(fields) == 0 {
		return xerrors.WithStackTrace(&value.DecodeMismatchError{Reason: "values received for a result without columns"})
	}

	r.partial = append(r.partial, values...)
	for len(r.partial) >= len(fields) {
		row, err := NewRow(fields, r.partial[:len(fields):len(fields)])
		if err != nil {
			return err
		}
		r.rows = append(r.rows, row)
		r.partial = r.partial[len(fields):]
	}
	if len(r.partial) == 0 {
		r.partial = nil
	}

	return nil
}
