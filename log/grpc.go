package log

import (
	"context"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// Interceptor bridges Logger into the go-grpc-middleware logging interceptors.
func Interceptor(l Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, kvs ...any) {
		l.Log(with(ctx, fromGRPCLevel(lvl), "grpc"), msg, kvFields(kvs)...)
	})
}

// DialOptions returns unary and stream client interceptors which log finished calls at DEBUG.
func DialOptions(l Logger) []grpc.DialOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.FinishCall),
		logging.WithLevels(func(codes.Code) logging.Level {
			return logging.LevelDebug
		}),
	}

	return []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(logging.UnaryClientInterceptor(Interceptor(l), opts...)),
		grpc.WithChainStreamInterceptor(logging.StreamClientInterceptor(Interceptor(l), opts...)),
	}
}

func fromGRPCLevel(lvl logging.Level) Level {
	switch lvl {
	case logging.LevelDebug:
		return DEBUG
	case logging.LevelInfo:
		return INFO
	case logging.LevelWarn:
		return WARN
	case logging.LevelError:
		return ERROR
	default:
		return TRACE
	}
}

func kvFields(kvs []any) []Field {
	fields := make([]Field, 0, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			key = fmt.Sprint(kvs[i])
		}
		switch v := kvs[i+1].(type) {
		case string:
			fields = append(fields, String(key, v))
		case error:
			fields = append(fields, NamedError(key, v))
		default:
			fields = append(fields, Any(key, v))
		}
	}

	return fields
}
