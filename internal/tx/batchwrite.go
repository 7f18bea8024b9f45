package tx

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/metadata"

	"github.com/spanner-go/spanner-go-sdk/internal/backoff"
	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
	"github.com/spanner-go/spanner-go-sdk/internal/tracing"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
	"github.com/spanner-go/spanner-go-sdk/retry"
)

// MutationGroup is a set of mutations applied atomically, independently of other groups.
type MutationGroup []*mutation.Mutation

// BatchWriteIterator yields the commit results of mutation groups in the order the
// server applied them.
type BatchWriteIterator struct {
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc
	cfg    *Config
	open   func(ctx context.Context, attempt uint32) (spannerpb.Spanner_BatchWriteClient, error)
	onDone func(err error)

	stream   spannerpb.Spanner_BatchWriteClient
	attempt  uint32
	received bool
	eos      bool
	err      error
	doneOnce sync.Once
}

// BatchWrite applies mutation groups without a transaction. Groups succeed or
// fail independently and are never retried on Aborted. The call is reissued only
// when the stream breaks before the first response.
func BatchWrite(
	ctx context.Context, cfg *Config, s Session, groups []MutationGroup, release func(), opts ...Option,
) (*BatchWriteIterator, error) {
	settings := NewSettings(append(append([]Option(nil), cfg.defaults...), opts...)...)
	pbGroups := make([]*spannerpb.BatchWriteRequest_MutationGroup, 0, len(groups))
	for _, g := range groups {
		ms, err := mutation.ToProto(g)
		if err != nil {
			return nil, xerrors.WithStackTrace(err)
		}
		pbGroups = append(pbGroups, &spannerpb.BatchWriteRequest_MutationGroup{Mutations: ms})
	}

	req := &spannerpb.BatchWriteRequest{
		Session:                     s.Name(),
		RequestOptions:              &spannerpb.RequestOptions{TransactionTag: settings.tag},
		MutationGroups:              pbGroups,
		ExcludeTxnFromChangeStreams: settings.excludeFromChangeStreams,
	}

	ctx, span := cfg.tracer.Start(ctx, "spanner.BatchWrite", tracing.KeySession.String(s.Name()))
	id := cfg.meta.NextRequestID()
	it := &BatchWriteIterator{
		cfg: cfg,
		open: func(ctx context.Context, attempt uint32) (spannerpb.Spanner_BatchWriteClient, error) {
			rid := id
			rid.Attempt = attempt
			s.MarkUsed()

			return cfg.client.BatchWrite(cfg.meta.Context(ctx, rid, meta.RouteToLeader()), req)
		},
		onDone: func(err error) {
			s.Check(err)
			tracing.Finish(span, err)
			if release != nil {
				release()
			}
		},
	}
	it.ctx, it.cancel = context.WithCancel(ctx)

	return it, nil
}

// Next returns the next response, or iterator.Done after the last one. A group
// which failed to commit is reported through the Status of its response.
func (it *BatchWriteIterator) Next() (*spannerpb.BatchWriteResponse, error) {
	for {
		if it.err != nil {
			return nil, it.err
		}
		if it.eos {
			return nil, iterator.Done
		}

		if it.stream == nil {
			it.attempt++
			stream, err := it.open(it.ctx, it.attempt)
			if err != nil {
				it.onError(err, nil)

				continue
			}
			it.stream = stream
		}

		resp, err := it.stream.Recv()
		if err == io.EOF { //nolint:errorlint
			it.eos = true
			it.finish(nil)

			return nil, iterator.Done
		}
		if err != nil {
			it.onError(err, it.stream.Trailer())

			continue
		}
		it.received = true

		return resp, nil
	}
}

func (it *BatchWriteIterator) onError(err error, trailer metadata.MD) {
	err = xerrors.Transport(err, xerrors.WithTrailer(trailer))
	it.stream = nil

	if it.ctx.Err() == nil && !it.received && retry.Check(err).MustResume() {
		delay := backoff.Fast.Delay(int(it.attempt))
		log.Debug(it.ctx, it.cfg.logger, logNames, "reissuing batch write",
			log.Int("attempt", int(it.attempt)),
			log.Duration("delay", delay),
			log.Error(err),
		)
		select {
		case <-it.ctx.Done():
		case <-it.cfg.clock.After(delay):
			return
		}
	}
	if ctxErr := it.ctx.Err(); ctxErr != nil {
		err = ctxErr
	}

	it.err = xerrors.WithStackTrace(err)
	it.finish(it.err)
}

func (it *BatchWriteIterator) finish(err error) {
	it.doneOnce.Do(func() {
		it.cancel()
		it.onDone(err)
	})
}

// Stop cancels the stream.
func (it *BatchWriteIterator) Stop() {
	if it.err == nil && !it.eos {
		it.eos = true
	}
	it.finish(nil)
}

// Do calls f for every response and stops at the first error.
func (it *BatchWriteIterator) Do(f func(resp *spannerpb.BatchWriteResponse) error) error {
	defer it.Stop()

	for {
		resp, err := it.Next()
		if xerrors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err = f(resp); err != nil {
			return err
		}
	}
}
