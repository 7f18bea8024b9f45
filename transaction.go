package spanner

import (
	"context"

	"github.com/spanner-go/spanner-go-sdk/internal/session"
	"github.com/spanner-go/spanner-go-sdk/internal/tx"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
)

// Single returns a single-use snapshot: it runs exactly one query or read.
// The session goes back to the pool when the result stream ends, or on Close
// if the snapshot was never used.
func (c *Client) Single(ctx context.Context, bound TimestampBound) (*ReadOnlyTransaction, error) {
	s, release, err := c.session(ctx, session.KindReadOnly)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return tx.NewSingleUse(c.tx, s, bound, release), nil
}

// ReadOnlyTransaction returns a multi-use snapshot. All its reads observe the
// same timestamp. Close it when done.
func (c *Client) ReadOnlyTransaction(ctx context.Context, bound TimestampBound) (*ReadOnlyTransaction, error) {
	s, release, err := c.session(ctx, session.KindReadOnly)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	t, err := tx.NewReadOnly(c.tx, s, bound, release)
	if err != nil {
		release()

		return nil, xerrors.WithStackTrace(err)
	}

	return t, nil
}

// BatchReadOnlyTransaction returns a multi-use snapshot on a partitioned
// session, begun on the server so that its partitions can be created right away.
func (c *Client) BatchReadOnlyTransaction(ctx context.Context, bound TimestampBound) (*ReadOnlyTransaction, error) {
	s, release, err := c.session(ctx, session.KindPartitioned)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	t, err := tx.NewReadOnly(c.tx, s, bound, release)
	if err != nil {
		release()

		return nil, xerrors.WithStackTrace(err)
	}
	if err = t.Begin(ctx); err != nil {
		t.Close()

		return nil, xerrors.WithStackTrace(err)
	}

	return t, nil
}

// ReadWriteTransaction runs f in a read-write transaction and commits it. f is
// run again when the transaction aborts, so it must be free of side effects
// outside the transaction.
func (c *Client) ReadWriteTransaction(
	ctx context.Context, f func(ctx context.Context, t *ReadWriteTransaction) error, opts ...TransactionOption,
) (*CommitResponse, error) {
	return c.ReadWriteTransactionWithCommitOptions(ctx, f, opts, nil)
}

func (c *Client) ReadWriteTransactionWithCommitOptions(
	ctx context.Context, f func(ctx context.Context, t *ReadWriteTransaction) error,
	opts []TransactionOption, commitOpts []CommitOption,
) (*CommitResponse, error) {
	s, release, err := c.session(ctx, session.KindReadWrite)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	defer release()

	resp, err := tx.Run(ctx, c.tx, s, f, opts, commitOpts...)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return resp, nil
}

// BeginReadWriteTransaction returns a read-write transaction driven by the
// caller. Its Commit retries an aborted commit, but statements are never
// replayed. The session is released by Commit or Rollback.
func (c *Client) BeginReadWriteTransaction(
	ctx context.Context, opts ...TransactionOption,
) (*ReadWriteTransaction, error) {
	s, release, err := c.session(ctx, session.KindReadWrite)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return tx.NewReadWrite(c.tx, s, release, opts...), nil
}

// Apply commits mutations in a transaction of their own. The commit is retried
// while the transaction aborts.
func (c *Client) Apply(ctx context.Context, ms []*Mutation, opts ...CommitOption) (*CommitResponse, error) {
	t, err := c.BeginReadWriteTransaction(ctx)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	if err = t.BufferWrite(ms...); err != nil {
		c.rollback(ctx, t)

		return nil, xerrors.WithStackTrace(err)
	}
	resp, err := t.Commit(ctx, opts...)
	if err != nil {
		c.rollback(ctx, t)

		return nil, xerrors.WithStackTrace(err)
	}

	return resp, nil
}

// rollback abandons a transaction that failed to commit and hands its session back.
func (c *Client) rollback(ctx context.Context, t *ReadWriteTransaction) {
	if err := t.Rollback(context.WithoutCancel(ctx)); err != nil {
		log.Debug(ctx, c.config.Logger(), logNames, "rollback failed", log.Error(err))
	}
}

// PartitionedUpdate runs a DML statement as partitioned DML and returns a lower
// bound of the modified rows.
func (c *Client) PartitionedUpdate(ctx context.Context, stmt Statement, opts ...QueryOption) (int64, error) {
	return c.PartitionedUpdateWithOptions(ctx, stmt, nil, opts...)
}

func (c *Client) PartitionedUpdateWithOptions(
	ctx context.Context, stmt Statement, txOpts []TransactionOption, opts ...QueryOption,
) (int64, error) {
	s, release, err := c.session(ctx, session.KindPartitioned)
	if err != nil {
		return 0, xerrors.WithStackTrace(err)
	}
	defer release()

	count, err := tx.PartitionedUpdate(ctx, c.tx, s, stmt, txOpts, opts...)
	if err != nil {
		return 0, xerrors.WithStackTrace(err)
	}

	return count, nil
}

// BatchWrite applies groups of mutations without a transaction. Every group
// commits atomically and independently of the others.
func (c *Client) BatchWrite(
	ctx context.Context, groups []MutationGroup, opts ...TransactionOption,
) (*BatchWriteIterator, error) {
	s, release, err := c.session(ctx, session.KindReadWrite)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	it, err := tx.BatchWrite(ctx, c.tx, s, groups, release, opts...)
	if err != nil {
		release()

		return nil, xerrors.WithStackTrace(err)
	}

	return it, nil
}
