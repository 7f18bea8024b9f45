package tx

import (
	"context"

	"github.com/spanner-go/spanner-go-sdk/internal/tracing"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
	"github.com/spanner-go/spanner-go-sdk/retry"
)

// Run executes f in a new read-write transaction on s and commits it. When f or
// the commit fails with Aborted, f is run again in a fresh transaction until the
// retry deadline; on a multiplexed session the new attempt carries the id of the
// aborted one. Any other error of f rolls the transaction back and is returned.
func Run(
	ctx context.Context, cfg *Config, s Session, f func(ctx context.Context, t *ReadWriteTransaction) error,
	opts []Option, commitOpts ...CommitOption,
) (resp *CommitResponse, finalErr error) {
	ctx, span := cfg.tracer.Start(ctx, "spanner.RunInTransaction", tracing.KeySession.String(s.Name()))
	defer func() {
		tracing.Finish(span, finalErr)
	}()

	var previous ID
	err := retry.Retry(ctx, func(ctx context.Context, attempt int) error {
		attemptOpts := opts
		if previous.Valid() {
			attemptOpts = append(append([]Option(nil), opts...), WithPreviousTransactionID(previous))
		}
		if attempt > 0 {
			tracing.Event(ctx, "transaction retry", tracing.KeyAttempt.Int64(int64(attempt)))
		}

		t := NewReadWrite(cfg, s, nil, attemptOpts...)
		if err := f(ctx, t); err != nil {
			previous = t.ID()
			if !retry.Check(err).MustRetryTransaction() {
				if rollbackErr := t.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
					log.Warn(ctx, cfg.logger, logNames, "rollback failed",
						log.Error(rollbackErr),
					)
				}
			}

			return xerrors.WithStackTrace(err)
		}

		var err error
		resp, err = t.commit(ctx, false, commitOpts)
		previous = t.ID()

		return err
	}, cfg.retryOptions("run-in-transaction")...)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return resp, nil
}
