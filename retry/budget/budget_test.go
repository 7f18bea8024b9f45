package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spanner-go/spanner-go-sdk/internal/xtest"
)

func TestUnlimited(t *testing.T) {
	ctx, cancel := context.WithCancel(xtest.Context(t))
	b := Limited(0)
	for range 100 {
		require.NoError(t, b.Acquire(ctx))
	}
	cancel()
	require.ErrorIs(t, b.Acquire(ctx), context.Canceled)
}

func TestLimited(t *testing.T) {
	ctx := xtest.Context(t)
	b := Limited(1)
	require.NoError(t, b.Acquire(ctx))

	// the next token is a second away
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := b.Acquire(short)
	require.ErrorIs(t, err, ErrNoQuota)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, b.Acquire(canceled), context.Canceled)
}

func TestPercent(t *testing.T) {
	const total = 100000
	ctx := xtest.Context(t)
	b := Percent(25)

	var success int
	for range total {
		if b.Acquire(ctx) == nil {
			success++
		}
	}
	require.InDelta(t, total/4, success, total/40)

	require.ErrorIs(t, Percent(0).Acquire(ctx), ErrNoQuota)
	require.NoError(t, Percent(100).Acquire(ctx))
	require.Panics(t, func() { Percent(101) })
}
