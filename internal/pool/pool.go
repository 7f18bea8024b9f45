package pool

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	concpool "github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

type (
	Item[T any] interface {
		*T
		IsAlive() bool
		LastUseTime() time.Time
		Ping(ctx context.Context) error
		Close(ctx context.Context) error
	}
	// CreateFunc creates up to n items. It may return fewer than requested.
	CreateFunc[PT Item[T], T any] func(ctx context.Context, n int) ([]PT, error)
	Config[PT Item[T], T any]     struct {
		trace         *Trace
		minSize       int
		limit         int
		batches       int
		pingInterval  time.Duration
		createItems   CreateFunc[PT, T]
		createTimeout time.Duration
		closeTimeout  time.Duration
		clock         clockwork.Clock
	}
	Pool[PT Item[T], T any] struct {
		config Config[PT, T]

		// sema holds one token per item handed out to a caller
		sema chan struct{}

		mu    sync.Mutex
		idle  []PT
		inUse int

		done      chan struct{}
		closeOnce sync.Once
	}
	Option[PT Item[T], T any] func(c *Config[PT, T])
)

func WithCreateFunc[PT Item[T], T any](f CreateFunc[PT, T]) Option[PT, T] {
	return func(c *Config[PT, T]) {
		c.createItems = f
	}
}

func WithCreateItemTimeout[PT Item[T], T any](t time.Duration) Option[PT, T] {
	return func(c *Config[PT, T]) {
		c.createTimeout = t
	}
}

func WithCloseItemTimeout[PT Item[T], T any](t time.Duration) Option[PT, T] {
	return func(c *Config[PT, T]) {
		c.closeTimeout = t
	}
}

// WithLimit bounds the number of items owned by the pool, idle and in use.
func WithLimit[PT Item[T], T any](size int) Option[PT, T] {
	return func(c *Config[PT, T]) {
		if size > 0 {
			c.limit = size
		}
	}
}

// WithMinSize sets the number of items kept by Warmup and Maintain.
func WithMinSize[PT Item[T], T any](size int) Option[PT, T] {
	return func(c *Config[PT, T]) {
		if size >= 0 {
			c.minSize = size
		}
	}
}

// WithBatches sets how many concurrent create calls fill the pool.
func WithBatches[PT Item[T], T any](n int) Option[PT, T] {
	return func(c *Config[PT, T]) {
		if n > 0 {
			c.batches = n
		}
	}
}

// WithPingInterval makes Maintain ping idle items unused for longer than d.
func WithPingInterval[PT Item[T], T any](d time.Duration) Option[PT, T] {
	return func(c *Config[PT, T]) {
		c.pingInterval = d
	}
}

func WithClock[PT Item[T], T any](clock clockwork.Clock) Option[PT, T] {
	return func(c *Config[PT, T]) {
		c.clock = clock
	}
}

func WithTrace[PT Item[T], T any](t *Trace) Option[PT, T] {
	return func(c *Config[PT, T]) {
		c.trace = t
	}
}

func New[PT Item[T], T any](opts ...Option[PT, T]) *Pool[PT, T] {
	p := &Pool[PT, T]{
		config: Config[PT, T]{
			trace:        &Trace{},
			limit:        DefaultLimit,
			minSize:      DefaultMinSize,
			batches:      DefaultBatches,
			pingInterval: DefaultPingInterval,
			createItems:  defaultCreateItems[T, PT],
			closeTimeout: defaultCloseTimeout,
			clock:        clockwork.NewRealClock(),
		},
		done: make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&p.config)
		}
	}
	p.config.minSize = min(p.config.minSize, p.config.limit)
	p.sema = make(chan struct{}, p.config.limit)
	p.idle = make([]PT, 0, p.config.limit)

	return p
}

func defaultCreateItems[T any, PT Item[T]](_ context.Context, n int) ([]PT, error) {
	items := make([]PT, n)
	for i := range items {
		items[i] = new(T)
	}

	return items, nil
}

func (p *Pool[PT, T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats()
}

// p.mu must be locked
func (p *Pool[PT, T]) stats() Stats {
	return Stats{
		Limit:   p.config.limit,
		MinSize: p.config.minSize,
		Idle:    len(p.idle),
		InUse:   p.inUse,
	}
}

// p.mu must be locked
func (p *Pool[PT, T]) changed() {
	if p.config.trace.OnChange != nil {
		p.config.trace.OnChange(p.stats())
	}
}

func (p *Pool[PT, T]) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Pool[PT, T]) create(ctx context.Context, n int) ([]PT, error) {
	var onDone func(created int, err error)
	if p.config.trace.OnCreate != nil {
		onDone = p.config.trace.OnCreate(n)
	}
	items, err := p.createWithTimeout(ctx, n)
	if onDone != nil {
		onDone(len(items), err)
	}

	return items, err
}

func (p *Pool[PT, T]) createWithTimeout(ctx context.Context, n int) ([]PT, error) {
	if d := p.config.createTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	items, err := p.config.createItems(ctx, n)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return items, nil
}

func (p *Pool[PT, T]) closeItem(ctx context.Context, item PT) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if d := p.config.closeTimeout; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		_ = item.Close(ctx)
	}()
}

// addIdle puts fresh items to idle while the pool has room. The rest is closed.
func (p *Pool[PT, T]) addIdle(ctx context.Context, items []PT) (added int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, item := range items {
		if p.closed() || len(p.idle)+p.inUse >= p.config.limit {
			p.closeItem(ctx, item)

			continue
		}
		p.idle = append(p.idle, item)
		added++
	}
	if added > 0 {
		p.changed()
	}

	return added
}

func (p *Pool[PT, T]) popIdle() PT {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) == 0 {
		return nil
	}
	item := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]
	p.inUse++
	p.changed()

	return item
}

func (p *Pool[PT, T]) release() {
	p.mu.Lock()
	p.inUse--
	p.changed()
	p.mu.Unlock()
	<-p.sema
}

// Get takes an idle item or creates a new one. Dead idle items are closed on the way.
// It blocks while the pool limit of items is in use.
func (p *Pool[PT, T]) Get(ctx context.Context) (PT, error) {
	select {
	case <-p.done:
		return nil, xerrors.WithStackTrace(errClosedPool)
	case <-ctx.Done():
		return nil, xerrors.WithStackTrace(ctx.Err())
	case p.sema <- struct{}{}:
	}

	for {
		item := p.popIdle()
		if item == nil {
			break
		}
		if item.IsAlive() {
			return item, nil
		}
		p.closeItem(ctx, item)
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()

	items, err := p.create(ctx, 1)
	if err == nil && len(items) == 0 {
		err = xerrors.WithStackTrace(errNoProgress)
	}
	if err != nil {
		p.release()

		return nil, xerrors.WithStackTrace(err)
	}
	if len(items) > 1 {
		p.addIdle(ctx, items[1:])
	}

	return items[0], nil
}

// Put returns an item taken with Get. Dead items are closed instead.
func (p *Pool[PT, T]) Put(ctx context.Context, item PT) error {
	defer func() {
		<-p.sema
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.inUse--
	defer p.changed()

	switch {
	case p.closed():
		p.closeItem(ctx, item)

		return xerrors.WithStackTrace(errClosedPool)
	case !item.IsAlive():
		p.closeItem(ctx, item)

		return xerrors.WithStackTrace(errItemIsNotAlive)
	case len(p.idle)+p.inUse >= p.config.limit:
		p.closeItem(ctx, item)

		return xerrors.WithStackTrace(errPoolIsOverflow)
	default:
		p.idle = append(p.idle, item)

		return nil
	}
}

// With runs f with an item taken from the pool and puts the item back afterwards.
func (p *Pool[PT, T]) With(ctx context.Context, f func(ctx context.Context, item PT) error) error {
	item, err := p.Get(ctx)
	if err != nil {
		return xerrors.WithStackTrace(err)
	}
	defer func() {
		_ = p.Put(ctx, item)
	}()

	if err := f(ctx, item); err != nil {
		return xerrors.WithStackTrace(err)
	}

	return nil
}

// Warmup fills the pool up to its minimal size with concurrent batch creates.
func (p *Pool[PT, T]) Warmup(ctx context.Context) error {
	if p.closed() {
		return xerrors.WithStackTrace(errClosedPool)
	}

	p.mu.Lock()
	need := p.config.minSize - len(p.idle) - p.inUse
	p.mu.Unlock()

	return p.fill(ctx, need)
}

func (p *Pool[PT, T]) fill(ctx context.Context, need int) error {
	if need <= 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, n := range splitBatches(need, p.config.batches) {
		g.Go(func() error {
			for n > 0 {
				items, err := p.create(ctx, n)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					return xerrors.WithStackTrace(errNoProgress)
				}
				p.addIdle(ctx, items)
				n -= len(items)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return xerrors.WithStackTrace(err)
	}

	return nil
}

func splitBatches(total, batches int) []int {
	batches = max(1, min(batches, total))
	res := make([]int, batches)
	for i := range res {
		res[i] = total / batches
		if i < total%batches {
			res[i]++
		}
	}

	return res
}

// Maintain pings idle items unused for longer than the ping interval, drops the
// ones which fail and tops the pool up to its minimal size.
func (p *Pool[PT, T]) Maintain(ctx context.Context) error {
	if p.closed() {
		return xerrors.WithStackTrace(errClosedPool)
	}

	stale := p.takeStale()
	if len(stale) > 0 {
		alive := make([]PT, len(stale))
		g, pingCtx := errgroup.WithContext(ctx)
		g.SetLimit(p.config.batches)
		for i, item := range stale {
			g.Go(func() error {
				err := item.Ping(pingCtx)
				if p.config.trace.OnPing != nil {
					p.config.trace.OnPing(err)
				}
				if err == nil && item.IsAlive() {
					alive[i] = item
				} else {
					p.closeItem(ctx, item)
				}

				return nil
			})
		}
		_ = g.Wait()

		p.addIdle(ctx, slices.DeleteFunc(alive, func(item PT) bool { return item == nil }))
	}

	p.mu.Lock()
	need := p.config.minSize - len(p.idle) - p.inUse
	p.mu.Unlock()

	return p.fill(ctx, need)
}

func (p *Pool[PT, T]) takeStale() []PT {
	if p.config.pingInterval <= 0 {
		return nil
	}
	deadline := p.config.clock.Now().Add(-p.config.pingInterval)

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		stale []PT
		keep  = p.idle[:0]
	)
	for _, item := range p.idle {
		if item.LastUseTime().Before(deadline) || !item.IsAlive() {
			stale = append(stale, item)
		} else {
			keep = append(keep, item)
		}
	}
	clear(p.idle[len(keep):])
	p.idle = keep
	if len(stale) > 0 {
		p.changed()
	}

	return stale
}

// Close closes all idle items. Items in use are closed when they are put back.
func (p *Pool[PT, T]) Close(ctx context.Context) error {
	err := errAlreadyClosedPool
	p.closeOnce.Do(func() {
		close(p.done)

		p.mu.Lock()
		idle := p.idle
		p.idle = nil
		p.changed()
		p.mu.Unlock()

		closers := concpool.New().WithErrors().WithMaxGoroutines(max(1, p.config.batches))
		for _, item := range idle {
			closers.Go(func() error {
				return item.Close(ctx)
			})
		}
		err = closers.Wait()
	})
	if err != nil {
		return xerrors.WithStackTrace(err)
	}

	return nil
}
