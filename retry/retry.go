package retry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
	"github.com/spanner-go/spanner-go-sdk/retry/budget"
)

// DefaultTimeout bounds the total time spent retrying an aborted transaction.
const DefaultTimeout = 30 * time.Second

var logNames = []string{"spanner", "retry"}

// Operation is retried while it returns an Aborted error.
type Operation func(ctx context.Context, attempt int) error

type retryOptions struct {
	label        string
	timeout      time.Duration
	defaultDelay time.Duration
	clock        clockwork.Clock
	logger       log.Logger
	budget       budget.Budget
	onRetry      func(attempt int, delay time.Duration, err error)
}

type Option func(o *retryOptions)

// WithLabel names the retried operation in logs.
func WithLabel(label string) Option {
	return func(o *retryOptions) {
		o.label = label
	}
}

// WithTimeout replaces DefaultTimeout. Zero or negative values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *retryOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithDefaultDelay is used instead of exponential backoff when the server sends no retry delay.
func WithDefaultDelay(d time.Duration) Option {
	return func(o *retryOptions) {
		o.defaultDelay = d
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *retryOptions) {
		o.clock = clock
	}
}

func WithLogger(l log.Logger) Option {
	return func(o *retryOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBudget limits retry attempts with an external quota.
func WithBudget(b budget.Budget) Option {
	return func(o *retryOptions) {
		o.budget = b
	}
}

// WithOnRetry registers a callback invoked before every sleep between attempts.
func WithOnRetry(f func(attempt int, delay time.Duration, err error)) Option {
	return func(o *retryOptions) {
		o.onRetry = f
	}
}

// Retry runs op until it succeeds, fails with a non-Aborted error, or the retry
// deadline would pass during the next pause. In the last case the last Aborted
// error is returned as is.
func Retry(ctx context.Context, op Operation, opts ...Option) error {
	options := retryOptions{
		timeout: DefaultTimeout,
		clock:   clockwork.NewRealClock(),
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	deadline := options.clock.Now().Add(options.timeout)
	for attempt := 0; ; attempt++ {
		if attempt > 0 && options.budget != nil {
			if err := options.budget.Acquire(ctx); err != nil {
				return xerrors.WithStackTrace(err)
			}
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if !Check(err).MustRetryTransaction() {
			return xerrors.WithStackTrace(err)
		}

		delay := Delay(err, attempt, options.defaultDelay)
		if options.clock.Now().Add(delay).After(deadline) {
			log.Warn(ctx, options.logger, logNames, "retry deadline exceeded",
				log.String("label", options.label),
				log.Int("attempts", attempt+1),
				log.Error(err),
			)

			return xerrors.WithStackTrace(err)
		}

		log.Debug(ctx, options.logger, logNames, "retrying aborted transaction",
			log.String("label", options.label),
			log.Int("attempt", attempt+1),
			log.Duration("delay", delay),
			log.Error(err),
		)
		if options.onRetry != nil {
			options.onRetry(attempt, delay, err)
		}

		select {
		case <-ctx.Done():
			return xerrors.WithStackTrace(ctx.Err())
		case <-options.clock.After(delay):
		}
	}
}
