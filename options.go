package spanner

import (
	"context"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"google.golang.org/grpc"

	"github.com/spanner-go/spanner-go-sdk/config"
	"github.com/spanner-go/spanner-go-sdk/internal/session"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
	"github.com/spanner-go/spanner-go-sdk/retry/budget"
)

// Option configures a Client while it is opened.
type Option func(ctx context.Context, c *Client) error

// With collects additional configuration options.
//
// This option does not replace collected option, instead it will append provided options.
func With(options ...config.Option) Option {
	return func(ctx context.Context, c *Client) error {
		c.options = append(c.options, options...)

		return nil
	}
}

// MergeOptions concatenates provided options to one cumulative value.
func MergeOptions(opts ...Option) Option {
	return func(ctx context.Context, c *Client) error {
		for _, o := range opts {
			if o != nil {
				if err := o(ctx, c); err != nil {
					return xerrors.WithStackTrace(err)
				}
			}
		}

		return nil
	}
}

func WithEndpoint(endpoint string) Option {
	return With(config.WithEndpoint(endpoint))
}

// WithEmulator connects to the emulator at host without TLS and credentials.
func WithEmulator(host string) Option {
	return With(config.WithEmulator(host))
}

func WithTokenSource(ts oauth2.TokenSource) Option {
	return With(config.WithTokenSource(ts))
}

// WithCredentialsJSON authenticates with a service account or authorized user key.
func WithCredentialsJSON(json []byte) Option {
	return With(config.WithCredentialsJSON(json))
}

func WithUserAgent(userAgent string) Option {
	return With(config.WithUserAgent(userAgent))
}

func WithDialTimeout(timeout time.Duration) Option {
	return With(config.WithDialTimeout(timeout))
}

func WithGrpcOptions(opts ...grpc.DialOption) Option {
	return With(config.WithGrpcOptions(opts...))
}

// WithGrpcConn makes the client use cc instead of dialing. The caller keeps
// ownership of cc and closes it after the client.
func WithGrpcConn(cc *grpc.ClientConn) Option {
	return func(ctx context.Context, c *Client) error {
		c.cc = cc

		return nil
	}
}

func WithLogger(l log.Logger) Option {
	return With(config.WithLogger(l))
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return With(config.WithTracerProvider(provider))
}

func WithExtendedTracing(enabled bool) Option {
	return With(config.WithExtendedTracing(enabled))
}

func WithEndToEndTracing(enabled bool) Option {
	return With(config.WithEndToEndTracing(enabled))
}

func WithClock(clock clockwork.Clock) Option {
	return With(config.WithClock(clock))
}

func WithSessionPoolConfig(pool config.SessionPoolConfig) Option {
	return With(config.WithSessionPoolConfig(pool))
}

func WithMinOpened(n int) Option {
	return With(config.WithMinOpened(n))
}

func WithMaxOpened(n int) Option {
	return With(config.WithMaxOpened(n))
}

func WithDatabaseRole(role string) Option {
	return With(config.WithDatabaseRole(role))
}

func WithMultiplexedSessions(enabled bool) Option {
	return With(config.WithMultiplexedSessions(enabled))
}

func WithMultiplexedSessionsForReadWrite(enabled bool) Option {
	return With(config.WithMultiplexedSessionsForReadWrite(enabled))
}

func WithTransactionConfig(transaction config.TransactionConfig) Option {
	return With(config.WithTransactionConfig(transaction))
}

// WithTransactionTimeout bounds the retries of aborted transactions.
func WithTransactionTimeout(timeout time.Duration) Option {
	return With(config.WithTransactionTimeout(timeout))
}

// WithRetryBudget shares a quota of aborted transaction retries between all transactions of the client.
func WithRetryBudget(b budget.Budget) Option {
	return With(config.WithRetryBudget(b))
}

// WithQueryOptions sets the client layer of query options. Environment,
// transaction and statement layers take precedence over it.
func WithQueryOptions(opts *spannerpb.ExecuteSqlRequest_QueryOptions) Option {
	return With(config.WithQueryOptions(opts))
}

func WithMaxBufferedChunks(n int) Option {
	return With(config.WithMaxBufferedChunks(n))
}

// withSessionOptions passes low level options to the session manager.
func withSessionOptions(opts ...session.Option) Option {
	return func(ctx context.Context, c *Client) error {
		c.sessionOptions = append(c.sessionOptions, opts...)

		return nil
	}
}
