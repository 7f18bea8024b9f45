package log

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

const (
	dateLayout = "2006-01-02 15:04:05.000"
)

type Logger interface {
	// Log logs the message with specified options and fields.
	// Implementations must not in any way use slice of fields after Log returns.
	Log(ctx context.Context, msg string, fields ...Field)
}

var _ Logger = (*defaultLogger)(nil)

type simpleLoggerOption interface {
	applySimpleOption(l *defaultLogger)
}

type minLevelOption Level

func (lvl minLevelOption) applySimpleOption(l *defaultLogger) {
	l.minLevel = Level(lvl)
}

// WithMinLevel drops records below lvl.
func WithMinLevel(lvl Level) minLevelOption {
	return minLevelOption(lvl)
}

type clockOption struct {
	clock clockwork.Clock
}

func (o clockOption) applySimpleOption(l *defaultLogger) {
	l.clock = o.clock
}

func WithClock(clock clockwork.Clock) clockOption {
	return clockOption{clock: clock}
}

// Default returns a plain-text logger writing to w.
func Default(w io.Writer, opts ...simpleLoggerOption) *defaultLogger {
	l := &defaultLogger{
		minLevel: INFO,
		clock:    clockwork.NewRealClock(),
		w:        w,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applySimpleOption(l)
		}
	}

	return l
}

type defaultLogger struct {
	mu       sync.Mutex
	minLevel Level
	clock    clockwork.Clock
	w        io.Writer
}

func (l *defaultLogger) format(namespace []string, msg string, logLevel Level) string {
	var b strings.Builder
	b.WriteString(l.clock.Now().Format(dateLayout))
	b.WriteByte(' ')
	b.WriteString(logLevel.String())
	b.WriteString(" '")
	for i, name := range namespace {
		if i != 0 {
			b.WriteByte('.')
		}
		b.WriteString(name)
	}
	b.WriteString("' => ")
	b.WriteString(msg)

	return b.String()
}

func (l *defaultLogger) Log(ctx context.Context, msg string, fields ...Field) {
	lvl := LevelFromContext(ctx)
	if lvl < l.minLevel {
		return
	}

	line := l.format(NamesFromContext(ctx), appendFields(msg, fields...), lvl) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = io.WriteString(l.w, line)
}

func appendFields(msg string, fields ...Field) string {
	if len(fields) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	b.WriteString(" {")
	for i := range fields {
		if i != 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `%q:%q`, fields[i].Key(), fields[i].String())
	}
	b.WriteByte('}')

	return b.String()
}

type nopLogger struct{}

func (nopLogger) Log(context.Context, string, ...Field) {}

// Nop returns a Logger which discards everything.
func Nop() Logger {
	return nopLogger{}
}

// Debug, Info, Warn and Error put the level into ctx and log under the given names.

func Debug(ctx context.Context, l Logger, names []string, msg string, fields ...Field) {
	l.Log(with(ctx, DEBUG, names...), msg, fields...)
}

func Info(ctx context.Context, l Logger, names []string, msg string, fields ...Field) {
	l.Log(with(ctx, INFO, names...), msg, fields...)
}

func Warn(ctx context.Context, l Logger, names []string, msg string, fields ...Field) {
	l.Log(with(ctx, WARN, names...), msg, fields...)
}

func Err(ctx context.Context, l Logger, names []string, msg string, fields ...Field) {
	l.Log(with(ctx, ERROR, names...), msg, fields...)
}
