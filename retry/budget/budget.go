package budget

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/internal/xrand"
)

// Budget is a quota of transaction retries shared between retry loops of a client.
type Budget interface {
	// Acquire is called before every attempt but the first.
	Acquire(ctx context.Context) error
}

type limitedBudget struct {
	limiter *rate.Limiter
}

// Limited allows attemptsPerSecond retries per second with bursts of the same size.
// Non-positive values mean no limit.
func Limited(attemptsPerSecond int) Budget {
	if attemptsPerSecond <= 0 {
		return &limitedBudget{limiter: rate.NewLimiter(rate.Inf, 0)}
	}

	return &limitedBudget{
		limiter: rate.NewLimiter(rate.Limit(attemptsPerSecond), attemptsPerSecond),
	}
}

func (b *limitedBudget) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return xerrors.WithStackTrace(err)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return xerrors.WithStackTrace(ctx.Err())
		}

		return xerrors.WithStackTrace(fmt.Errorf("%w: %w", ErrNoQuota, err))
	}

	return nil
}

type percentBudget struct {
	percent int
	rand    xrand.Rand
}

// Percent lets through the given percent of retry attempts.
func Percent(percent int) Budget {
	if percent > 100 || percent < 0 {
		panic(fmt.Sprintf("wrong percent value: %d", percent))
	}

	return &percentBudget{
		percent: percent,
		rand:    xrand.New(xrand.WithLock()),
	}
}

func (b *percentBudget) Acquire(context.Context) error {
	if b.rand.Int(100) < b.percent { //nolint:mnd
		return nil
	}

	return xerrors.WithStackTrace(ErrNoQuota)
}
