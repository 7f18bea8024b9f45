package spanner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/grpc"

	"github.com/spanner-go/spanner-go-sdk/config"
	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/session"
	"github.com/spanner-go/spanner-go-sdk/internal/tracing"
	"github.com/spanner-go/spanner-go-sdk/internal/tx"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
)

var logNames = []string{"spanner", "client"}

// Client is a handle to one database. It owns the gRPC channel and the
// sessions of the database and is safe for concurrent use.
type Client struct {
	config  *config.Config
	options []config.Option

	cc      *grpc.ClientConn
	ownConn bool

	meta     *meta.Meta
	tracer   *tracing.Tracer
	sessions *session.Manager
	tx       *tx.Config

	sessionOptions []session.Option

	mu     sync.Mutex
	closed bool
}

// Open creates a handle to database, named as
// projects/<project>/instances/<instance>/databases/<database>.
// Environment variables are applied over the options, see config.FromEnv.
func Open(ctx context.Context, database string, opts ...Option) (_ *Client, err error) {
	if err = validateDatabaseName(database); err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	c := &Client{}
	for _, opt := range opts {
		if opt != nil {
			if err = opt(ctx, c); err != nil {
				return nil, xerrors.WithStackTrace(err)
			}
		}
	}
	c.config = config.New(append(c.options, config.WithDatabase(database), config.FromEnv())...)

	if c.cc == nil {
		c.cc, err = dial(ctx, c.config)
		if err != nil {
			return nil, xerrors.WithStackTrace(err)
		}
		c.ownConn = true
	}

	c.meta = meta.New(database,
		meta.NewRequestIDGenerator(meta.NextClientID(), 1),
		meta.WithEndToEndTracing(c.config.EndToEndTracing()),
	)
	c.tracer = tracing.New(c.config.TracerProvider(), database, c.config.ExtendedTracing())

	client := spannerpb.NewSpannerClient(c.cc)
	transaction := c.config.Transaction()
	c.tx = tx.NewConfig(client, c.meta,
		tx.WithClock(c.config.Clock()),
		tx.WithLogger(c.config.Logger()),
		tx.WithTracer(c.tracer),
		tx.WithDefaultQueryOptions(tx.MergeQueryOptions(c.config.QueryOptions(), c.config.EnvQueryOptions())),
		tx.WithDefaultSettings(transaction.Settings()...),
		tx.WithDefaultCommitOptions(transaction.CommitOptions()...),
		tx.WithTimeout(transaction.Timeout),
		tx.WithDefaultRetryDelay(transaction.RetryDelay),
		tx.WithRetryBudget(transaction.RetryBudget),
		tx.WithMaxBufferedChunks(c.config.MaxBufferedChunks()),
	)
	c.sessions = session.NewManager(context.WithoutCancel(ctx), client, c.meta, append(
		append(c.config.SessionPool().Options(),
			session.WithClock(c.config.Clock()),
			session.WithLogger(c.config.Logger()),
		),
		c.sessionOptions...,
	)...)

	if err = c.warmup(ctx); err != nil {
		_ = c.Close(ctx)

		return nil, xerrors.WithStackTrace(err)
	}

	log.Info(ctx, c.config.Logger(), logNames, "database handle opened",
		log.String("database", database),
		log.String("endpoint", c.config.Endpoint()),
		log.Bool("emulator", c.config.Emulator()),
	)

	return c, nil
}

// warmup creates the multiplexed session when read-write transactions can use
// it, and fills the pool of regular sessions otherwise.
func (c *Client) warmup(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.DialTimeout())
	defer cancel()

	if c.sessions.Config().MultiplexedFor(session.KindReadWrite) {
		s, err := c.sessions.Get(ctx, session.KindReadWrite)
		if err != nil {
			return xerrors.WithStackTrace(err)
		}
		c.sessions.Put(ctx, s)

		if !c.sessions.MultiplexedDisabled() {
			return nil
		}
	}

	return c.sessions.Warmup(ctx)
}

func validateDatabaseName(database string) error {
	parts := strings.Split(database, "/")
	if len(parts) != 6 || parts[0] != "projects" || parts[2] != "instances" || parts[4] != "databases" ||
		parts[1] == "" || parts[3] == "" || parts[5] == "" {
		return fmt.Errorf("invalid database name %q: want projects/<p>/instances/<i>/databases/<d>", database)
	}

	return nil
}

// Database returns the full database name.
func (c *Client) Database() string {
	return c.meta.Database()
}

func (c *Client) session(ctx context.Context, kind session.Kind) (*session.Session, func(), error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, nil, xerrors.WithStackTrace(xerrors.ErrClosed)
	}

	s, err := c.sessions.Get(ctx, kind)
	if err != nil {
		return nil, nil, xerrors.WithStackTrace(err)
	}
	var once sync.Once

	return s, func() {
		once.Do(func() {
			c.sessions.Put(context.Background(), s)
		})
	}, nil
}

// SessionStats reports the state of the session pool and of the multiplexed session.
func (c *Client) SessionStats() SessionStats {
	return c.sessions.Stats()
}

// Close deletes the regular sessions and closes the channel. In-flight
// transactions fail afterwards.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return xerrors.WithStackTrace(xerrors.ErrClosed)
	}
	c.closed = true

	var sessionsErr, connErr error
	if c.sessions != nil {
		sessionsErr = c.sessions.Close(ctx)
	}
	if c.ownConn {
		connErr = c.cc.Close()
	}

	return xerrors.WithStackTrace(xerrors.Join(sessionsErr, connErr))
}
