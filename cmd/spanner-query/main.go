package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/spanner-go/spanner-go-sdk"
	"github.com/spanner-go/spanner-go-sdk/log"
)

type options struct {
	Project     string        `long:"project" short:"p" env:"SPANNER_PROJECT_ID" required:"true" description:"GCP project ID"`
	Instance    string        `long:"instance" short:"i" env:"SPANNER_INSTANCE_ID" required:"true" description:"Spanner instance ID"`
	Database    string        `long:"database" short:"d" env:"SPANNER_DATABASE_ID" required:"true" description:"Spanner database ID"`
	Execute     string        `long:"execute" short:"e" required:"true" description:"SQL statement to run"`
	Endpoint    string        `long:"endpoint" description:"Spanner API endpoint (host:port)"`
	Credential  string        `long:"credential" description:"service account key file"`
	Role        string        `long:"role" description:"database role of the sessions"`
	DML         bool          `long:"dml" description:"run the statement as DML in a read-write transaction"`
	Partitioned bool          `long:"partitioned" description:"run the statement as partitioned DML"`
	Staleness   time.Duration `long:"staleness" description:"read at an exact staleness instead of a strong read"`
	Timeout     time.Duration `long:"timeout" default:"1m" description:"timeout of the whole run"`
	Verbose     bool          `long:"verbose" short:"v" description:"log debug messages to stderr"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic
	}
}

func run(ctx context.Context, opts options, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	logger := zap.NewNop()
	if opts.Verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	defer func() {
		_ = logger.Sync()
	}()

	clientOpts := []spanner.Option{
		spanner.WithLogger(log.Zap(logger)),
		spanner.WithDatabaseRole(opts.Role),
		spanner.WithMinOpened(1),
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, spanner.WithEndpoint(opts.Endpoint))
	}
	if opts.Credential != "" {
		key, err := os.ReadFile(opts.Credential)
		if err != nil {
			return err
		}
		clientOpts = append(clientOpts, spanner.WithCredentialsJSON(key))
	}

	database := fmt.Sprintf("projects/%s/instances/%s/databases/%s", opts.Project, opts.Instance, opts.Database)
	db, err := spanner.Open(ctx, database, clientOpts...)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close(context.WithoutCancel(ctx))
	}()

	stmt := spanner.NewStatement(opts.Execute)
	switch {
	case opts.Partitioned:
		count, err := db.PartitionedUpdate(ctx, stmt)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "at least %d rows affected\n", count)

		return err
	case opts.DML:
		var count int64
		resp, err := db.ReadWriteTransaction(ctx, func(ctx context.Context, t *spanner.ReadWriteTransaction) error {
			n, err := t.Update(ctx, stmt)
			count = n

			return err
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%d rows affected, committed at %s\n", count, resp.CommitTimestamp.Format(time.RFC3339Nano))

		return err
	default:
		return query(ctx, db, stmt, opts.Staleness, w)
	}
}

// query prints the rows as JSON objects, one per line.
func query(ctx context.Context, db *spanner.Client, stmt spanner.Statement, staleness time.Duration, w io.Writer) error {
	bound := spanner.StrongRead()
	if staleness > 0 {
		bound = spanner.ExactStaleness(staleness)
	}
	ro, err := db.Single(ctx, bound)
	if err != nil {
		return err
	}
	defer ro.Close()

	it, err := ro.Query(ctx, stmt)
	if err != nil {
		return err
	}

	return it.Do(func(row *spanner.Row) error {
		values, err := row.Values()
		if err != nil {
			return err
		}
		obj := make(map[string]any, len(values))
		for i, v := range values {
			obj[row.ColumnName(i)] = v
		}
		b, err := json.Marshal(obj, json.Deterministic(true))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)

		return err
	})
}
