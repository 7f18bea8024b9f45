package tx

import (
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
	"github.com/spanner-go/spanner-go-sdk/internal/stream"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/internal/xtest"
)

func TestSingleUseSnapshot(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	var released atomic.Int32
	ro := NewSingleUse(cfg, newTestSession(false), ExactStaleness(10*time.Second), func() { released.Add(1) })
	require.False(t, ro.MultiUse())

	reader, err := ro.Query(ctx, NewStatement("SELECT 1"), WithRequestTag("ro"))
	require.NoError(t, err)
	require.NoError(t, reader.Do(skipRow))
	require.EqualValues(t, 1, released.Load())

	_, err = ro.Query(ctx, NewStatement("SELECT 1"))
	require.ErrorIs(t, err, xerrors.ErrSingleUseReused)
	_, err = ro.Read(ctx, "Singers", mutation.AllKeys(), []string{"SingerId"})
	require.ErrorIs(t, err, xerrors.ErrSingleUseReused)
	require.ErrorIs(t, ro.Begin(ctx), xerrors.ErrSingleUseReused)
	_, err = ro.PartitionQuery(ctx, NewStatement("SELECT 1"), PartitionOptions{})
	require.ErrorIs(t, err, xerrors.ErrTransactionNotBegun)
	require.True(t, xerrors.IsUsageError(err))

	reqs := xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "ExecuteStreamingSql")
	require.Len(t, reqs, 1)
	single := reqs[0].GetTransaction().GetSingleUse().GetReadOnly()
	require.Equal(t, 10*time.Second, single.GetExactStaleness().AsDuration())
	require.Empty(t, srv.Calls("ExecuteStreamingSql")[0].Metadata.Get(meta.HeaderRouteToLeader))
}

func TestMultiUseSnapshot(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	_, err := NewReadOnly(cfg, newTestSession(false), MaxStaleness(time.Second), nil)
	require.Equal(t, codes.InvalidArgument, xerrors.Code(err))

	var released atomic.Int32
	ro, err := NewReadOnly(cfg, newTestSession(false), StrongRead(), func() { released.Add(1) })
	require.NoError(t, err)
	_, err = ro.Timestamp()
	require.ErrorIs(t, err, xerrors.ErrTransactionNotBegun)

	for range 2 {
		reader, err := ro.Query(ctx, NewStatement("SELECT 1"))
		require.NoError(t, err)
		require.NoError(t, reader.Do(skipRow))
	}
	_, err = ro.Timestamp()
	require.NoError(t, err)

	reqs := xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "ExecuteStreamingSql")
	require.Len(t, reqs, 2)
	require.True(t, reqs[0].GetTransaction().GetBegin().GetReadOnly().GetStrong())
	require.Equal(t, []byte(ro.ID()), reqs[1].GetTransaction().GetId())

	ro.Close()
	ro.Close()
	require.EqualValues(t, 1, released.Load())
	_, err = ro.Query(ctx, NewStatement("SELECT 1"))
	require.ErrorIs(t, err, xerrors.ErrTransactionClosed)
}

func TestStreamResumeKeepsRequestID(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	rowType := &spannerpb.StructType{Fields: []*spannerpb.StructType_Field{
		{Name: "n", Type: &spannerpb.Type{Code: spannerpb.TypeCode_INT64}},
	}}
	// every stream breaks once after a resume token and then finishes
	chunks := func(attempt int32, tx *spannerpb.Transaction, prefix string) []*spannerpb.PartialResultSet {
		if attempt == 1 {
			return []*spannerpb.PartialResultSet{{
				Metadata:    &spannerpb.ResultSetMetadata{RowType: rowType, Transaction: tx},
				Values:      []*structpb.Value{structpb.NewStringValue(prefix + "1")},
				ResumeToken: []byte("rt-" + prefix),
			}}
		}

		return []*spannerpb.PartialResultSet{{Values: []*structpb.Value{structpb.NewStringValue(prefix + "2")}}}
	}
	var queries, reads atomic.Int32
	srv.OnExecuteStreamingSql = func(req *spannerpb.ExecuteSqlRequest, s spannerpb.Spanner_ExecuteStreamingSqlServer) error {
		attempt := queries.Add(1)
		for _, c := range chunks(attempt, srv.TransactionFor(req.GetTransaction()), "1") {
			if err := s.Send(c); err != nil {
				return err
			}
		}
		if attempt == 1 {
			return status.Error(codes.Unavailable, "connection reset")
		}

		return nil
	}
	srv.OnStreamingRead = func(req *spannerpb.ReadRequest, s spannerpb.Spanner_StreamingReadServer) error {
		attempt := reads.Add(1)
		for _, c := range chunks(attempt, nil, "2") {
			if err := s.Send(c); err != nil {
				return err
			}
		}
		if attempt == 1 {
			return status.Error(codes.Unavailable, "connection reset")
		}

		return nil
	}
	cfg := newTestConfig(t, srv)

	ro, err := NewReadOnly(cfg, newTestSession(false), StrongRead(), nil)
	require.NoError(t, err)
	defer ro.Close()

	collect := func(reader *stream.Reader) []any {
		var got []any
		require.NoError(t, reader.Do(func(row *stream.Row) error {
			values, err := row.Values()
			if err != nil {
				return err
			}
			got = append(got, values...)

			return nil
		}))

		return got
	}

	reader, err := ro.Query(ctx, NewStatement("SELECT n FROM T"))
	require.NoError(t, err)
	require.Equal(t, []any{int64(11), int64(12)}, collect(reader))

	readReader, err := ro.Read(ctx, "T", mutation.AllKeys(), []string{"n"})
	require.NoError(t, err)
	require.Equal(t, []any{int64(21), int64(22)}, collect(readReader))

	for _, method := range []string{"ExecuteStreamingSql", "StreamingRead"} {
		ids := requestIDs(t, srv, method)
		require.Len(t, ids, 2, method)
		require.Equal(t, ids[0].NthRequest, ids[1].NthRequest, method)
		require.Equal(t, ids[0].Attempt+1, ids[1].Attempt, method)
		require.Equal(t, ids[0].ClientID, ids[1].ClientID, method)
	}
	require.NotEqual(t,
		requestIDs(t, srv, "ExecuteStreamingSql")[0].NthRequest,
		requestIDs(t, srv, "StreamingRead")[0].NthRequest,
	)

	sqls := xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "ExecuteStreamingSql")
	require.Empty(t, sqls[0].GetResumeToken())
	require.Equal(t, []byte("rt-1"), sqls[1].GetResumeToken())
	require.NotNil(t, sqls[0].GetTransaction().GetBegin())
	require.Equal(t, []byte(ro.ID()), sqls[1].GetTransaction().GetId())

	readReqs := xtest.Requests[*spannerpb.ReadRequest](srv, "StreamingRead")
	require.Equal(t, []byte("rt-2"), readReqs[1].GetResumeToken())
	for i, req := range readReqs {
		require.Equal(t, []byte(ro.ID()), req.GetTransaction().GetId(), i)
	}
}

func TestPartitionedSnapshot(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	ro, err := NewReadOnly(cfg, newTestSession(false), StrongRead(), nil)
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.PartitionRead(ctx, "Singers", mutation.AllKeys(), []string{"SingerId"}, PartitionOptions{})
	require.ErrorIs(t, err, xerrors.ErrTransactionNotBegun)

	require.NoError(t, ro.Begin(ctx))
	require.Len(t, srv.Calls("BeginTransaction"), 1)
	require.NoError(t, ro.Begin(ctx))
	require.Len(t, srv.Calls("BeginTransaction"), 1)

	queries, err := ro.PartitionQuery(ctx, NewStatement("SELECT * FROM Singers"),
		PartitionOptions{MaxPartitions: 10}, WithDataBoost(true))
	require.NoError(t, err)
	require.Len(t, queries, 2)
	reads, err := ro.PartitionRead(ctx, "Singers", mutation.AllKeys(), []string{"SingerId"}, PartitionOptions{})
	require.NoError(t, err)
	require.Len(t, reads, 2)

	for _, p := range append(queries, reads...) {
		reader, err := ro.Execute(ctx, p)
		require.NoError(t, err)
		require.NoError(t, reader.Do(skipRow))
	}

	partitionQueries := xtest.Requests[*spannerpb.PartitionQueryRequest](srv, "PartitionQuery")
	require.Len(t, partitionQueries, 1)
	require.Equal(t, []byte(ro.ID()), partitionQueries[0].GetTransaction().GetId())
	require.EqualValues(t, 10, partitionQueries[0].GetPartitionOptions().GetMaxPartitions())

	executed := xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "ExecuteStreamingSql")
	require.Len(t, executed, 2)
	for i, req := range executed {
		require.Equal(t, queries[i].Token, req.GetPartitionToken())
		require.True(t, req.GetDataBoostEnabled())
		require.Equal(t, []byte(ro.ID()), req.GetTransaction().GetId())
	}
	streamedReads := xtest.Requests[*spannerpb.ReadRequest](srv, "StreamingRead")
	require.Len(t, streamedReads, 2)
	require.Equal(t, reads[1].Token, streamedReads[1].GetPartitionToken())
}

func TestReadRowNotFound(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	ro := NewSingleUse(cfg, newTestSession(false), StrongRead(), nil)
	_, err := ro.ReadRow(ctx, "Singers", mutation.Key{int64(1)}, []string{"SingerId"}, WithIndex("SingersByName"))
	var notFound *RowNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "Singers", notFound.Table)

	reads := xtest.Requests[*spannerpb.ReadRequest](srv, "StreamingRead")
	require.Len(t, reads, 1)
	require.Equal(t, "SingersByName", reads[0].GetIndex())
	require.Len(t, reads[0].GetKeySet().GetKeys(), 1)
}
