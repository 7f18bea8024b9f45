package log

import (
	"context"
)

type (
	levelKey struct{}
	namesKey struct{}
)

func WithLevel(ctx context.Context, lvl Level) context.Context {
	return context.WithValue(ctx, levelKey{}, lvl)
}

func LevelFromContext(ctx context.Context) Level {
	lvl, _ := ctx.Value(levelKey{}).(Level)

	return lvl
}

// WithNames appends names to the logger namespace carried by ctx.
func WithNames(ctx context.Context, names ...string) context.Context {
	parent := NamesFromContext(ctx)

	return context.WithValue(ctx, namesKey{}, append(parent, names...))
}

// NamesFromContext returns the namespace with capped capacity so appends never share memory.
func NamesFromContext(ctx context.Context) []string {
	names, _ := ctx.Value(namesKey{}).([]string)

	return names[:len(names):len(names)]
}

func with(ctx context.Context, lvl Level, names ...string) context.Context {
	return WithLevel(WithNames(ctx, names...), lvl)
}
