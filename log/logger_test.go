package log

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerFormat(t *testing.T) {
	l := Default(nil, WithClock(clockwork.NewFakeClock()))
	require.Equal(t,
		"1984-04-04 00:00:00.000 ERROR 'test.scope' => message",
		l.format([]string{"test", "scope"}, "message", ERROR),
	)
}

func TestDefaultLoggerLog(t *testing.T) {
	t.Run("BelowMinLevel", func(t *testing.T) {
		var buf bytes.Buffer
		l := Default(&buf, WithClock(clockwork.NewFakeClock()))
		Debug(context.Background(), l, []string{"session"}, "skipped")
		require.Empty(t, buf.String())
	})
	t.Run("WithFields", func(t *testing.T) {
		var buf bytes.Buffer
		l := Default(&buf, WithClock(clockwork.NewFakeClock()), WithMinLevel(DEBUG))
		Debug(context.Background(), l, []string{"session", "pool"}, "created",
			String("name", "s1"),
			Int("count", 2),
			Error(errors.New("boom")),
		)
		require.Equal(t,
			"1984-04-04 00:00:00.000 DEBUG 'session.pool' => created {\"name\":\"s1\",\"count\":\"2\",\"error\":\"boom\"}\n",
			buf.String(),
		)
	})
}

func TestFromString(t *testing.T) {
	require.Equal(t, WARN, FromString("warn"))
	require.Equal(t, TRACE, FromString("TRACE"))
	require.Equal(t, QUIET, FromString("unknown"))
}

func TestZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Zap(zap.New(core))
	Warn(context.Background(), l, []string{"multiplexed"}, "fallback", Bool("disabled", true))
	Debug(WithLevel(context.Background(), TRACE), l, nil, "trace maps to debug")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "fallback", entries[0].Message)
	require.Equal(t, "multiplexed", entries[0].LoggerName)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, true, entries[0].ContextMap()["disabled"])
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]any{"grpc.method", "Commit", "grpc.code", 10, "dangling"})
	require.Len(t, fields, 2)
	require.Equal(t, "grpc.method", fields[0].Key())
	require.Equal(t, "Commit", fields[0].String())
	require.Equal(t, "10", fields[1].String())
}
