package tx

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/internal/xtest"
	"github.com/spanner-go/spanner-go-sdk/retry/budget"
)

func TestRunRetriesAborted(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	var commits atomic.Int32
	srv.OnCommit = func(context.Context, *spannerpb.CommitRequest) (*spannerpb.CommitResponse, error) {
		if commits.Add(1) == 1 {
			return nil, status.Error(codes.Aborted, "transaction aborted")
		}

		return &spannerpb.CommitResponse{CommitTimestamp: timestamppb.Now()}, nil
	}
	cfg := newTestConfig(t, srv)

	var (
		calls int
		ids   []ID
	)
	resp, err := Run(ctx, cfg, newTestSession(true), func(ctx context.Context, t *ReadWriteTransaction) error {
		calls++
		if _, err := t.Update(ctx, NewStatement("UPDATE Singers SET Name = 'x' WHERE TRUE")); err != nil {
			return err
		}
		ids = append(ids, t.ID())

		return t.BufferWrite(mutation.Insert("Singers", []string{"SingerId"}, []any{int64(1)}))
	}, nil)
	require.NoError(t, err)
	require.False(t, resp.CommitTimestamp.IsZero())
	require.Equal(t, 2, calls)
	require.NotEqual(t, ids[0], ids[1])

	reqs := xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "ExecuteSql")
	require.Len(t, reqs, 2)
	require.Empty(t, reqs[0].GetTransaction().GetBegin().GetReadWrite().GetMultiplexedSessionPreviousTransactionId())
	require.Equal(t, []byte(ids[0]),
		reqs[1].GetTransaction().GetBegin().GetReadWrite().GetMultiplexedSessionPreviousTransactionId())

	commitReqs := xtest.Requests[*spannerpb.CommitRequest](srv, "Commit")
	require.Len(t, commitReqs, 2)
	require.Equal(t, []byte(ids[1]), commitReqs[1].GetTransactionId())
	require.Empty(t, srv.Calls("Rollback"))
}

func TestRunRetryBudget(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	srv.OnCommit = func(context.Context, *spannerpb.CommitRequest) (*spannerpb.CommitResponse, error) {
		return nil, status.Error(codes.Aborted, "transaction aborted")
	}
	cfg := newTestConfig(t, srv, WithRetryBudget(budget.Percent(0)))

	_, err := Run(ctx, cfg, newTestSession(true), func(ctx context.Context, t *ReadWriteTransaction) error {
		return t.BufferWrite(mutation.Delete("Singers", mutation.AllKeys()))
	}, nil)
	require.ErrorIs(t, err, budget.ErrNoQuota)
	require.Len(t, srv.Calls("Commit"), 1)
}

func TestRunAbortedInsideFunction(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	var calls int
	_, err := Run(ctx, cfg, newTestSession(false), func(ctx context.Context, t *ReadWriteTransaction) error {
		calls++
		if calls == 1 {
			return xerrors.Transport(status.Error(codes.Aborted, "aborted by a concurrent transaction"))
		}

		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, srv.Calls("Commit"), 1)
}

func TestRunRollsBackOnError(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	fErr := errors.New("business rule violated")
	var calls int
	_, err := Run(ctx, cfg, newTestSession(false), func(ctx context.Context, t *ReadWriteTransaction) error {
		calls++
		if _, err := t.Update(ctx, NewStatement("DELETE FROM Singers WHERE TRUE")); err != nil {
			return err
		}

		return fErr
	}, nil)
	require.ErrorIs(t, err, fErr)
	require.Equal(t, 1, calls)
	require.Len(t, srv.Calls("Rollback"), 1)
	require.Empty(t, srv.Calls("Commit"))
}

func TestRunDeadlineSurfacesAborted(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	srv.OnCommit = func(context.Context, *spannerpb.CommitRequest) (*spannerpb.CommitResponse, error) {
		st, err := status.New(codes.Aborted, "always aborted").WithDetails(&errdetails.RetryInfo{
			RetryDelay: durationpb.New(time.Second),
		})
		if err != nil {
			return nil, err
		}

		return nil, st.Err()
	}
	cfg := newTestConfig(t, srv, WithTimeout(100*time.Millisecond))

	_, err := Run(ctx, cfg, newTestSession(false), func(context.Context, *ReadWriteTransaction) error {
		return nil
	}, nil)
	require.True(t, xerrors.IsAborted(err))
	require.Equal(t, "always aborted", xerrors.Message(err))
	require.Len(t, srv.Calls("Commit"), 1)
}

func TestPartitionedUpdate(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	var executions atomic.Int32
	srv.OnExecuteStreamingSql = func(
		req *spannerpb.ExecuteSqlRequest, stream spannerpb.Spanner_ExecuteStreamingSqlServer,
	) error {
		if executions.Add(1) == 1 {
			return status.Error(codes.Aborted, "aborted")
		}

		return stream.Send(&spannerpb.PartialResultSet{
			Metadata: &spannerpb.ResultSetMetadata{RowType: &spannerpb.StructType{}},
			Stats: &spannerpb.ResultSetStats{
				RowCount: &spannerpb.ResultSetStats_RowCountLowerBound{RowCountLowerBound: 10},
			},
		})
	}
	cfg := newTestConfig(t, srv)

	count, err := PartitionedUpdate(ctx, cfg, newTestSession(false),
		NewStatement("UPDATE Singers SET Active = TRUE WHERE TRUE"),
		[]Option{WithExcludeFromChangeStreams(true)},
	)
	require.NoError(t, err)
	require.EqualValues(t, 10, count)

	begins := xtest.Requests[*spannerpb.BeginTransactionRequest](srv, "BeginTransaction")
	require.Len(t, begins, 2)
	for _, begin := range begins {
		require.NotNil(t, begin.GetOptions().GetPartitionedDml())
		require.True(t, begin.GetOptions().GetExcludeTxnFromChangeStreams())
	}
	execs := xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "ExecuteStreamingSql")
	require.Len(t, execs, 2)
	require.NotEqual(t, execs[0].GetTransaction().GetId(), execs[1].GetTransaction().GetId())
	require.Empty(t, srv.Calls("Commit"))
}

func batchGroups() []MutationGroup {
	return []MutationGroup{
		{mutation.Insert("Singers", []string{"SingerId"}, []any{int64(1)})},
		{mutation.Insert("Singers", []string{"SingerId"}, []any{int64(2)})},
	}
}

func TestBatchWriteReissuesBrokenStream(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	var calls atomic.Int32
	srv.OnBatchWrite = func(req *spannerpb.BatchWriteRequest, stream spannerpb.Spanner_BatchWriteServer) error {
		if calls.Add(1) == 1 {
			return status.Error(codes.Internal, "stream terminated by RST_STREAM with error code: INTERNAL_ERROR")
		}
		for i := len(req.GetMutationGroups()) - 1; i >= 0; i-- {
			if err := stream.Send(&spannerpb.BatchWriteResponse{
				Indexes:         []int32{int32(i)},
				CommitTimestamp: timestamppb.Now(),
			}); err != nil {
				return err
			}
		}

		return nil
	}
	cfg := newTestConfig(t, srv)

	var released atomic.Int32
	it, err := BatchWrite(ctx, cfg, newTestSession(false), batchGroups(), func() { released.Add(1) })
	require.NoError(t, err)

	var indexes []int32
	require.NoError(t, it.Do(func(resp *spannerpb.BatchWriteResponse) error {
		indexes = append(indexes, resp.GetIndexes()...)

		return nil
	}))
	require.Equal(t, []int32{1, 0}, indexes)
	require.Len(t, srv.Calls("BatchWrite"), 2)
	require.EqualValues(t, 1, released.Load())

	ids := requestIDs(t, srv, "BatchWrite")
	require.Equal(t, ids[0].NthRequest, ids[1].NthRequest)
	require.Equal(t, ids[0].Attempt+1, ids[1].Attempt)
}

func TestBatchWriteNotRetriedOnAborted(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	srv.OnBatchWrite = func(*spannerpb.BatchWriteRequest, spannerpb.Spanner_BatchWriteServer) error {
		return status.Error(codes.Aborted, "aborted")
	}
	cfg := newTestConfig(t, srv)

	it, err := BatchWrite(ctx, cfg, newTestSession(false), batchGroups(), nil)
	require.NoError(t, err)
	_, err = it.Next()
	require.True(t, xerrors.IsAborted(err))
	_, err = it.Next()
	require.True(t, xerrors.IsAborted(err))
	require.Len(t, srv.Calls("BatchWrite"), 1)
}

func TestBatchWriteNotRetriedAfterFirstResponse(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	srv.OnBatchWrite = func(_ *spannerpb.BatchWriteRequest, stream spannerpb.Spanner_BatchWriteServer) error {
		if err := stream.Send(&spannerpb.BatchWriteResponse{Indexes: []int32{0}}); err != nil {
			return err
		}

		return status.Error(codes.Unavailable, "connection reset")
	}
	cfg := newTestConfig(t, srv)

	it, err := BatchWrite(ctx, cfg, newTestSession(false), batchGroups(), nil)
	require.NoError(t, err)
	defer it.Stop()

	resp, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, []int32{0}, resp.GetIndexes())
	_, err = it.Next()
	require.Equal(t, codes.Unavailable, xerrors.Code(err))
	_, err = it.Next()
	require.NotErrorIs(t, err, iterator.Done)
	require.Len(t, srv.Calls("BatchWrite"), 1)
}
