package log

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	l *zap.Logger
}

// Zap adapts a *zap.Logger to Logger. Names from context become the zap logger name.
func Zap(l *zap.Logger) *zapLogger {
	return &zapLogger{l: l}
}

func (z *zapLogger) Log(ctx context.Context, msg string, fields ...Field) {
	l := z.l
	if names := NamesFromContext(ctx); len(names) > 0 {
		l = l.Named(strings.Join(names, "."))
	}
	if ce := l.Check(zapLevel(LevelFromContext(ctx)), msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func zapLevel(lvl Level) zapcore.Level {
	switch lvl {
	case TRACE, DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.DPanicLevel
	default:
		return zapcore.InvalidLevel
	}
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch f.Type() {
		case IntType, Int64Type:
			out = append(out, zap.Int64(f.Key(), f.Int64Value()))
		case StringType:
			out = append(out, zap.String(f.Key(), f.StringValue()))
		case BoolType:
			out = append(out, zap.Bool(f.Key(), f.BoolValue()))
		case DurationType:
			out = append(out, zap.Duration(f.Key(), f.DurationValue()))
		case StringsType:
			out = append(out, zap.Strings(f.Key(), f.StringsValue()))
		case ErrorType:
			out = append(out, zap.NamedError(f.Key(), f.ErrorValue()))
		case StringerType:
			out = append(out, zap.Stringer(f.Key(), f.Stringer()))
		default:
			out = append(out, zap.Any(f.Key(), f.AnyValue()))
		}
	}

	return out
}
