package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/spanner-go/spanner-go-sdk/internal/xtest"
)

type testItem struct {
	id      int64
	dead    atomic.Bool
	closed  atomic.Bool
	pings   atomic.Int32
	pingErr error
	lastUse time.Time
}

func (t *testItem) IsAlive() bool {
	return !t.dead.Load() && !t.closed.Load()
}

func (t *testItem) LastUseTime() time.Time {
	return t.lastUse
}

func (t *testItem) Ping(context.Context) error {
	t.pings.Add(1)

	return t.pingErr
}

func (t *testItem) Close(context.Context) error {
	t.closed.Store(true)

	return nil
}

type creator struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	nextID  atomic.Int64
	calls   []int
	maxSize int
	err     error
}

func (c *creator) create(_ context.Context, n int) ([]*testItem, error) {
	c.mu.Lock()
	c.calls = append(c.calls, n)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.maxSize > 0 {
		n = min(n, c.maxSize)
	}
	items := make([]*testItem, n)
	for i := range items {
		items[i] = &testItem{id: c.nextID.Add(1)}
		if c.clock != nil {
			items[i].lastUse = c.clock.Now()
		}
	}

	return items, nil
}

func TestPoolGetPut(t *testing.T) {
	ctx := xtest.Context(t)
	c := &creator{}
	p := New[*testItem, testItem](WithCreateFunc[*testItem, testItem](c.create), WithLimit[*testItem, testItem](2))
	defer func() {
		require.NoError(t, p.Close(ctx))
	}()

	item, err := p.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Limit: 2, MinSize: 2, Idle: 0, InUse: 1}, p.Stats())

	require.NoError(t, p.Put(ctx, item))
	require.Equal(t, Stats{Limit: 2, MinSize: 2, Idle: 1, InUse: 0}, p.Stats())

	again, err := p.Get(ctx)
	require.NoError(t, err)
	require.Same(t, item, again)
	require.NoError(t, p.Put(ctx, again))
	require.Equal(t, []int{1}, c.calls)
}

func TestPoolDropsDeadItems(t *testing.T) {
	ctx := xtest.Context(t)
	c := &creator{}
	p := New[*testItem, testItem](WithCreateFunc[*testItem, testItem](c.create))
	defer func() {
		_ = p.Close(ctx)
	}()

	item, err := p.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Put(ctx, item))

	item.dead.Store(true)
	fresh, err := p.Get(ctx)
	require.NoError(t, err)
	require.NotSame(t, item, fresh)
	require.Equal(t, 1, p.Stats().InUse)

	fresh.dead.Store(true)
	require.ErrorIs(t, p.Put(ctx, fresh), errItemIsNotAlive)
	require.Equal(t, 0, p.Stats().Idle)
	require.Equal(t, 0, p.Stats().InUse)
}

func TestPoolLimitBlocksGet(t *testing.T) {
	ctx := xtest.Context(t)
	c := &creator{}
	p := New[*testItem, testItem](WithCreateFunc[*testItem, testItem](c.create), WithLimit[*testItem, testItem](1))
	defer func() {
		_ = p.Close(ctx)
	}()

	item, err := p.Get(ctx)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = p.Get(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *testItem)
	go func() {
		next, err := p.Get(ctx)
		if err == nil {
			got <- next
		}
		close(got)
	}()
	require.NoError(t, p.Put(ctx, item))
	next := <-got
	require.Same(t, item, next)
	require.NoError(t, p.Put(ctx, next))
}

func TestPoolCreateError(t *testing.T) {
	ctx := xtest.Context(t)
	createErr := errors.New("boom")
	p := New[*testItem, testItem](WithCreateFunc[*testItem, testItem]((&creator{err: createErr}).create))
	defer func() {
		_ = p.Close(ctx)
	}()

	_, err := p.Get(ctx)
	require.ErrorIs(t, err, createErr)
	require.Equal(t, 0, p.Stats().InUse)
}

func TestPoolWarmup(t *testing.T) {
	ctx := xtest.Context(t)
	c := &creator{maxSize: 3}
	p := New[*testItem, testItem](
		WithCreateFunc[*testItem, testItem](c.create),
		WithMinSize[*testItem, testItem](10),
		WithBatches[*testItem, testItem](2),
	)
	defer func() {
		require.NoError(t, p.Close(ctx))
	}()

	require.NoError(t, p.Warmup(ctx))
	require.Equal(t, 10, p.Stats().Idle)

	var total int
	for _, n := range c.calls {
		require.LessOrEqual(t, n, 5)
		total += min(n, 3)
	}
	require.Equal(t, 10, total)

	// full pool is a no-op
	calls := len(c.calls)
	require.NoError(t, p.Warmup(ctx))
	require.Len(t, c.calls, calls)
}

func TestSplitBatches(t *testing.T) {
	require.Equal(t, []int{4, 3, 3}, splitBatches(10, 3))
	require.Equal(t, []int{1, 1}, splitBatches(2, 4))
	require.Equal(t, []int{5}, splitBatches(5, 0))
}

func TestPoolMaintain(t *testing.T) {
	ctx := xtest.Context(t)
	clock := clockwork.NewFakeClock()
	c := &creator{clock: clock}
	p := New[*testItem, testItem](
		WithCreateFunc[*testItem, testItem](c.create),
		WithMinSize[*testItem, testItem](2),
		WithPingInterval[*testItem, testItem](time.Minute),
		WithClock[*testItem, testItem](clock),
	)
	defer func() {
		_ = p.Close(ctx)
	}()
	require.NoError(t, p.Warmup(ctx))

	// nothing is stale yet
	require.NoError(t, p.Maintain(ctx))
	first, err := p.Get(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, first.pings.Load())
	second, err := p.Get(ctx)
	require.NoError(t, err)
	second.pingErr = errors.New("session not found")
	require.NoError(t, p.Put(ctx, first))
	require.NoError(t, p.Put(ctx, second))

	clock.Advance(2 * time.Minute)
	require.NoError(t, p.Maintain(ctx))

	require.EqualValues(t, 1, first.pings.Load())
	require.EqualValues(t, 1, second.pings.Load())
	require.Equal(t, 2, p.Stats().Idle)

	var ids []int64
	for range 2 {
		item, err := p.Get(ctx)
		require.NoError(t, err)
		ids = append(ids, item.id)
		defer func() {
			_ = p.Put(ctx, item)
		}()
	}
	require.Contains(t, ids, first.id)
	require.NotContains(t, ids, second.id)
}

func TestPoolClose(t *testing.T) {
	ctx := xtest.Context(t)
	c := &creator{}
	p := New[*testItem, testItem](WithCreateFunc[*testItem, testItem](c.create), WithMinSize[*testItem, testItem](3))
	require.NoError(t, p.Warmup(ctx))

	inUse, err := p.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Close(ctx))
	require.ErrorIs(t, p.Close(ctx), errAlreadyClosedPool)
	require.Equal(t, 0, p.Stats().Idle)

	_, err = p.Get(ctx)
	require.True(t, IsClosed(err))

	require.ErrorIs(t, p.Put(ctx, inUse), errClosedPool)
	xtest.SpinWaitCondition(t, nil, inUse.closed.Load)
}

func TestPoolWith(t *testing.T) {
	ctx := xtest.Context(t)
	p := New[*testItem, testItem](WithCreateFunc[*testItem, testItem]((&creator{}).create))
	defer func() {
		_ = p.Close(ctx)
	}()

	fErr := errors.New("f")
	err := p.With(ctx, func(ctx context.Context, item *testItem) error {
		require.Equal(t, 1, p.Stats().InUse)

		return fErr
	})
	require.ErrorIs(t, err, fErr)
	require.Equal(t, Stats{Limit: DefaultLimit, MinSize: DefaultMinSize, Idle: 1}, p.Stats())
}
