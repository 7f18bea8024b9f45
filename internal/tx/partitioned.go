package tx

import (
	"context"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/stream"
	"github.com/spanner-go/spanner-go-sdk/internal/tracing"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/retry"
)

// PartitionedUpdate executes a DML statement as partitioned DML and returns the
// lower bound of modified rows. The whole operation is retried on Aborted.
func PartitionedUpdate(
	ctx context.Context, cfg *Config, s Session, stmt Statement, opts []Option, stmtOpts ...StatementOption,
) (count int64, finalErr error) {
	params, types, err := stmt.encode()
	if err != nil {
		return 0, xerrors.WithStackTrace(err)
	}
	settings := NewSettings(append(append([]Option(nil), cfg.defaults...), opts...)...)
	o := newStatementOptions(cfg.queryOptions, stmtOpts)

	ctx, span := cfg.tracer.StartStatement(ctx, "spanner.PartitionedUpdate", stmt.SQL,
		tracing.KeySession.String(s.Name()),
	)
	defer func() {
		tracing.Finish(span, finalErr, tracing.KeyRowCount.Int64(count))
	}()

	requestOptions := &spannerpb.RequestOptions{
		Priority:       o.priority,
		RequestTag:     o.requestTag,
		TransactionTag: settings.tag,
	}

	err = retry.Retry(ctx, func(ctx context.Context, attempt int) error {
		var trailer metadata.MD
		s.MarkUsed()
		tx, err := cfg.client.BeginTransaction(cfg.meta.Context(ctx, cfg.meta.NextRequestID(), meta.RouteToLeader()),
			&spannerpb.BeginTransactionRequest{
				Session:        s.Name(),
				Options:        settings.partitionedDML(),
				RequestOptions: &spannerpb.RequestOptions{TransactionTag: settings.tag},
			},
			grpc.Trailer(&trailer),
		)
		if err != nil {
			err = xerrors.Transport(err, xerrors.WithTrailer(trailer))
			s.Check(err)

			return xerrors.WithStackTrace(err)
		}

		req := &spannerpb.ExecuteSqlRequest{
			Session:        s.Name(),
			Transaction:    idSelector(tx.GetId()),
			Sql:            stmt.SQL,
			Params:         params,
			ParamTypes:     types,
			QueryOptions:   cloneQueryOptions(o.queryOptions),
			RequestOptions: requestOptions,
		}
		id := cfg.meta.NextRequestID()
		reader := stream.NewReader(ctx, func(ctx context.Context, resumeToken []byte, attempt uint32) (stream.Receiver, error) {
			rid := id
			rid.Attempt = attempt
			req.ResumeToken = resumeToken
			s.MarkUsed()

			return cfg.client.ExecuteStreamingSql(cfg.meta.Context(ctx, rid, meta.RouteToLeader()), req)
		}, append(cfg.streamOptions(), stream.WithOnDone(s.Check))...)

		if err = reader.Do(func(*stream.Row) error { return nil }); err != nil {
			return xerrors.WithStackTrace(err)
		}
		count, _ = reader.RowCount()

		return nil
	}, cfg.retryOptions("partitioned-update")...)
	if err != nil {
		return 0, xerrors.WithStackTrace(err)
	}

	return count, nil
}
