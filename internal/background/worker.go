package background

import (
	"context"
	"errors"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"

	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

var (
	ErrAlreadyClosed       = errors.New("spanner: background worker already closed")
	errClosedWithNilReason = errors.New("spanner: background worker closed with nil reason")
)

// A Worker must not be copied after first use
type Worker struct {
	ctx     context.Context //nolint:containedctx
	stop    context.CancelCauseFunc
	name    string
	clock   clockwork.Clock
	workers conc.WaitGroup

	mu          sync.Mutex
	closed      bool
	closeReason error
}

type CallbackFunc func(ctx context.Context)

type Option func(w *Worker)

func WithClock(clock clockwork.Clock) Option {
	return func(w *Worker) {
		w.clock = clock
	}
}

func NewWorker(parent context.Context, name string, opts ...Option) *Worker {
	w := &Worker{
		name:  name,
		clock: clockwork.NewRealClock(),
	}
	w.ctx, w.stop = context.WithCancelCause(parent)
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	return w
}

func (b *Worker) Context() context.Context {
	return b.ctx
}

func (b *Worker) Done() <-chan struct{} {
	return b.ctx.Done()
}

// Start runs f in a separate goroutine. Calls after Close are ignored.
func (b *Worker) Start(name string, f CallbackFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.workers.Go(func() {
		pprof.Do(b.ctx, pprof.Labels("background", b.name+"/"+name), f)
	})
}

// Every runs f each interval until the worker closes or the returned stop is called.
// stop may be called from f.
func (b *Worker) Every(name string, interval time.Duration, f CallbackFunc) (stop func()) {
	stopped := make(chan struct{})
	var once sync.Once
	b.Start(name, func(ctx context.Context) {
		ticker := b.clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopped:
				return
			case <-ticker.Chan():
				f(ctx)
			}
		}
	})

	return func() {
		once.Do(func() {
			close(stopped)
		})
	}
}

func (b *Worker) Close(ctx context.Context, err error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return xerrors.WithStackTrace(ErrAlreadyClosed)
	}
	b.closed = true
	b.closeReason = err
	if b.closeReason == nil {
		b.closeReason = errClosedWithNilReason
	}
	b.stop(b.closeReason)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.workers.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return xerrors.WithStackTrace(ctx.Err())
	}
}

func (b *Worker) CloseReason() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closeReason
}
