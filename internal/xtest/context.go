package xtest

import (
	"context"
	"runtime/pprof"
	"testing"
)

// Context is canceled when the test finishes. Goroutines started with it carry
// the test name as a pprof label, which makes leaked goroutines easy to attribute.
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = pprof.WithLabels(ctx, pprof.Labels("test", t.Name()))
	pprof.SetGoroutineLabels(ctx)
	t.Cleanup(cancel)

	return ctx
}
