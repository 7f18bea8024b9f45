package tx

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/mutation"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/internal/xtest"
)

func TestCommitRetriesAborted(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	var commits atomic.Int32
	srv.OnCommit = func(_ context.Context, req *spannerpb.CommitRequest) (*spannerpb.CommitResponse, error) {
		if commits.Add(1) == 1 {
			return nil, status.Error(codes.Aborted, "transaction aborted")
		}

		return &spannerpb.CommitResponse{CommitTimestamp: timestamppb.Now()}, nil
	}
	cfg := newTestConfig(t, srv)

	var released atomic.Int32
	rw := NewReadWrite(cfg, newTestSession(false), func() { released.Add(1) })
	require.NoError(t, rw.Begin(ctx))
	require.NoError(t, rw.BufferWrite(mutation.Insert("Singers", []string{"SingerId", "Name"}, []any{int64(1), "Marc"})))

	resp, err := rw.Commit(ctx)
	require.NoError(t, err)
	require.False(t, resp.CommitTimestamp.IsZero())
	require.EqualValues(t, 1, released.Load())

	reqs := xtest.Requests[*spannerpb.CommitRequest](srv, "Commit")
	require.Len(t, reqs, 2)
	require.Equal(t, []byte(rw.ID()), reqs[0].GetTransactionId())
	require.Equal(t, reqs[0].GetTransactionId(), reqs[1].GetTransactionId())
	require.Empty(t, cmp.Diff(reqs[0].GetMutations(), reqs[1].GetMutations(), protocmp.Transform()))
	require.Len(t, reqs[0].GetMutations(), 1)

	ids := requestIDs(t, srv, "Commit")
	require.Greater(t, ids[1].NthRequest, ids[0].NthRequest)
	for _, call := range srv.Calls("Commit") {
		require.Equal(t, []string{"true"}, call.Metadata.Get(meta.HeaderRouteToLeader))
	}
}

func TestCommitWithoutStatements(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	rw := NewReadWrite(cfg, newTestSession(false), nil, WithExcludeFromChangeStreams(true))
	require.NoError(t, rw.BufferWrite(mutation.Delete("Singers", mutation.AllKeys())))
	resp, err := rw.Commit(ctx, WithCommitStats(), WithMaxCommitDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.EqualValues(t, 1, resp.MutationCount)

	reqs := xtest.Requests[*spannerpb.CommitRequest](srv, "Commit")
	require.Len(t, reqs, 1)
	single := reqs[0].GetSingleUseTransaction()
	require.NotNil(t, single.GetReadWrite())
	require.True(t, single.GetExcludeTxnFromChangeStreams())
	require.True(t, reqs[0].GetReturnCommitStats())
	require.Equal(t, 10*time.Millisecond, reqs[0].GetMaxCommitDelay().AsDuration())
	require.Empty(t, srv.Calls("BeginTransaction"))
}

func TestCommitMultiplexedBeginsWithMutationKey(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	rw := NewReadWrite(cfg, newTestSession(true), nil)
	require.NoError(t, rw.BufferWrite(
		mutation.Insert("Singers", []string{"SingerId"}, []any{int64(1)}),
		mutation.Update("Singers", []string{"SingerId"}, []any{int64(2)}),
	))
	_, err := rw.Commit(ctx)
	require.NoError(t, err)

	begins := xtest.Requests[*spannerpb.BeginTransactionRequest](srv, "BeginTransaction")
	require.Len(t, begins, 1)
	require.NotNil(t, begins[0].GetMutationKey().GetUpdate())

	commits := xtest.Requests[*spannerpb.CommitRequest](srv, "Commit")
	require.Len(t, commits, 1)
	require.Equal(t, []byte(rw.ID()), commits[0].GetTransactionId())
}

func TestInlineBeginUnderConcurrency(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	srv.OnExecuteSql = func(_ context.Context, req *spannerpb.ExecuteSqlRequest) (*spannerpb.ResultSet, error) {
		rs := &spannerpb.ResultSet{
			Stats: &spannerpb.ResultSetStats{
				RowCount: &spannerpb.ResultSetStats_RowCountExact{RowCountExact: 1},
			},
		}
		if req.GetTransaction().GetBegin() != nil {
			time.Sleep(20 * time.Millisecond)
			rs.Metadata = &spannerpb.ResultSetMetadata{Transaction: srv.NewTransaction()}
		}

		return rs, nil
	}
	cfg := newTestConfig(t, srv)
	rw := NewReadWrite(cfg, newTestSession(false), nil)

	var g errgroup.Group
	for range 2 {
		g.Go(func() error {
			_, err := rw.Update(ctx, NewStatement("UPDATE Singers SET Name = 'x' WHERE TRUE"))

			return err
		})
	}
	require.NoError(t, g.Wait())

	reqs := xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "ExecuteSql")
	require.Len(t, reqs, 2)
	var begins int
	seqnos := make(map[int64]bool)
	for _, req := range reqs {
		if req.GetTransaction().GetBegin() != nil {
			begins++
		} else {
			require.Equal(t, []byte(rw.ID()), req.GetTransaction().GetId())
		}
		seqnos[req.GetSeqno()] = true
	}
	require.Equal(t, 1, begins)
	require.Equal(t, map[int64]bool{0: true, 1: true}, seqnos)
}

func TestSeqnoIncreasing(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)
	rw := NewReadWrite(cfg, newTestSession(false), nil)

	for range 3 {
		n, err := rw.Update(ctx, NewStatement("DELETE FROM Singers WHERE TRUE"))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	}
	reader, err := rw.Query(ctx, NewStatement("SELECT 1"))
	require.NoError(t, err)
	require.NoError(t, reader.Do(skipRow))
	reader, err = rw.Read(ctx, "Singers", mutation.AllKeys(), []string{"SingerId"})
	require.NoError(t, err)
	require.NoError(t, reader.Do(skipRow))

	var seqnos []int64
	for _, req := range xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "") {
		seqnos = append(seqnos, req.GetSeqno())
	}
	require.Equal(t, []int64{0, 1, 2, 3}, seqnos)

	reads := xtest.Requests[*spannerpb.ReadRequest](srv, "StreamingRead")
	require.Len(t, reads, 1)
	require.Equal(t, []byte(rw.ID()), reads[0].GetTransaction().GetId())
}

func TestPrecommitTokenMaxBySeqNum(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	srv.OnExecuteBatchDml = func(
		_ context.Context, req *spannerpb.ExecuteBatchDmlRequest,
	) (*spannerpb.ExecuteBatchDmlResponse, error) {
		resp := &spannerpb.ExecuteBatchDmlResponse{Status: status.New(codes.OK, "").Proto()}
		for i, seq := range []int32{2, 0, 1} {
			rs := &spannerpb.ResultSet{
				Stats: &spannerpb.ResultSetStats{
					RowCount: &spannerpb.ResultSetStats_RowCountExact{RowCountExact: int64(i + 1)},
				},
				PrecommitToken: &spannerpb.MultiplexedSessionPrecommitToken{
					PrecommitToken: []byte{byte(seq)},
					SeqNum:         seq,
				},
			}
			if i == 0 {
				rs.Metadata = &spannerpb.ResultSetMetadata{Transaction: srv.TransactionFor(req.GetTransaction())}
			}
			resp.ResultSets = append(resp.ResultSets, rs)
		}

		return resp, nil
	}
	cfg := newTestConfig(t, srv)
	rw := NewReadWrite(cfg, newTestSession(true), nil)

	counts, err := rw.BatchUpdate(ctx, []Statement{
		NewStatement("UPDATE a SET x = 1 WHERE TRUE"),
		NewStatement("UPDATE b SET x = 1 WHERE TRUE"),
		NewStatement("UPDATE c SET x = 1 WHERE TRUE"),
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, counts)

	_, err = rw.Commit(ctx)
	require.NoError(t, err)

	commits := xtest.Requests[*spannerpb.CommitRequest](srv, "Commit")
	require.Len(t, commits, 1)
	require.EqualValues(t, 2, commits[0].GetPrecommitToken().GetSeqNum())
	require.Empty(t, srv.Calls("BeginTransaction"))
}

func TestCommitMultiplexedRetryToken(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	var commits atomic.Int32
	srv.OnCommit = func(_ context.Context, req *spannerpb.CommitRequest) (*spannerpb.CommitResponse, error) {
		if commits.Add(1) == 1 {
			return &spannerpb.CommitResponse{
				MultiplexedSessionRetry: &spannerpb.CommitResponse_PrecommitToken{
					PrecommitToken: &spannerpb.MultiplexedSessionPrecommitToken{PrecommitToken: []byte("retry"), SeqNum: 7},
				},
			}, nil
		}

		return &spannerpb.CommitResponse{CommitTimestamp: timestamppb.Now()}, nil
	}
	cfg := newTestConfig(t, srv)
	rw := NewReadWrite(cfg, newTestSession(true), nil)
	_, err := rw.Update(ctx, NewStatement("DELETE FROM Singers WHERE TRUE"))
	require.NoError(t, err)

	_, err = rw.Commit(ctx)
	require.NoError(t, err)

	reqs := xtest.Requests[*spannerpb.CommitRequest](srv, "Commit")
	require.Len(t, reqs, 2)
	require.EqualValues(t, 7, reqs[1].GetPrecommitToken().GetSeqNum())
}

func TestBatchUpdatePartialFailure(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	srv.OnExecuteBatchDml = func(
		_ context.Context, req *spannerpb.ExecuteBatchDmlRequest,
	) (*spannerpb.ExecuteBatchDmlResponse, error) {
		return &spannerpb.ExecuteBatchDmlResponse{
			ResultSets: []*spannerpb.ResultSet{{
				Metadata: &spannerpb.ResultSetMetadata{Transaction: srv.TransactionFor(req.GetTransaction())},
				Stats: &spannerpb.ResultSetStats{
					RowCount: &spannerpb.ResultSetStats_RowCountExact{RowCountExact: 4},
				},
			}},
			Status: status.New(codes.FailedPrecondition, "second statement failed").Proto(),
		}, nil
	}
	cfg := newTestConfig(t, srv)
	rw := NewReadWrite(cfg, newTestSession(false), nil)

	counts, err := rw.BatchUpdate(ctx, []Statement{NewStatement("UPDATE a SET x = 1 WHERE TRUE"), NewStatement("bad")})
	require.Equal(t, []int64{4}, counts)
	require.Equal(t, codes.FailedPrecondition, xerrors.Code(err))
	require.True(t, rw.ID().Valid())

	_, err = rw.BatchUpdate(ctx, nil)
	require.Equal(t, codes.InvalidArgument, xerrors.Code(err))
}

func TestTerminalStates(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	check := func(t *testing.T, rw *ReadWriteTransaction, want error) {
		t.Helper()

		_, err := rw.Update(ctx, NewStatement("DELETE FROM Singers WHERE TRUE"))
		require.ErrorIs(t, err, want)
		_, err = rw.Query(ctx, NewStatement("SELECT 1"))
		require.ErrorIs(t, err, want)
		_, err = rw.Read(ctx, "Singers", mutation.AllKeys(), []string{"SingerId"})
		require.ErrorIs(t, err, want)
		_, err = rw.BatchUpdate(ctx, []Statement{NewStatement("DELETE FROM Singers WHERE TRUE")})
		require.ErrorIs(t, err, want)
		require.ErrorIs(t, rw.BufferWrite(mutation.Delete("Singers", mutation.AllKeys())), want)
		require.ErrorIs(t, rw.Begin(ctx), want)
		_, err = rw.Commit(ctx)
		require.ErrorIs(t, err, want)
		require.ErrorIs(t, rw.Rollback(ctx), want)
		require.True(t, xerrors.IsUsageError(err))
	}

	t.Run("committed", func(t *testing.T) {
		rw := NewReadWrite(cfg, newTestSession(false), nil)
		_, err := rw.Commit(ctx)
		require.NoError(t, err)
		check(t, rw, xerrors.ErrTransactionAlreadyCommitted)
	})
	t.Run("rolled back", func(t *testing.T) {
		calls := len(srv.Calls("Rollback"))
		rw := NewReadWrite(cfg, newTestSession(false), nil)
		require.NoError(t, rw.Rollback(ctx))
		require.Len(t, srv.Calls("Rollback"), calls)
		check(t, rw, xerrors.ErrTransactionAlreadyRolledBack)
	})
}

func TestRollback(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv)

	var released atomic.Int32
	rw := NewReadWrite(cfg, newTestSession(false), func() { released.Add(1) })
	require.NoError(t, rw.Begin(ctx))
	require.NoError(t, rw.Rollback(ctx))
	require.EqualValues(t, 1, released.Load())

	reqs := xtest.Requests[*spannerpb.RollbackRequest](srv, "Rollback")
	require.Len(t, reqs, 1)
	require.Equal(t, []byte(rw.ID()), reqs[0].GetTransactionId())
	require.Equal(t, []string{"true"}, srv.Calls("Rollback")[0].Metadata.Get(meta.HeaderRouteToLeader))
}

func TestTransactionTag(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	cfg := newTestConfig(t, srv, WithDefaultSettings(WithIsolationLevel(spannerpb.TransactionOptions_REPEATABLE_READ)))

	rw := NewReadWrite(cfg, newTestSession(false), nil, WithTransactionTag("app=test"))
	_, err := rw.Update(ctx, NewStatement("DELETE FROM Singers WHERE TRUE"), WithRequestTag("req"),
		WithPriority(spannerpb.RequestOptions_PRIORITY_LOW))
	require.NoError(t, err)
	_, err = rw.Update(ctx, NewStatement("DELETE FROM Albums WHERE TRUE"))
	require.NoError(t, err)
	_, err = rw.Commit(ctx)
	require.NoError(t, err)

	reqs := xtest.Requests[*spannerpb.ExecuteSqlRequest](srv, "ExecuteSql")
	require.Len(t, reqs, 2)
	require.Equal(t, "app=test", reqs[0].GetRequestOptions().GetTransactionTag())
	require.Equal(t, "req", reqs[0].GetRequestOptions().GetRequestTag())
	require.Equal(t, spannerpb.RequestOptions_PRIORITY_LOW, reqs[0].GetRequestOptions().GetPriority())
	require.Equal(t, spannerpb.TransactionOptions_REPEATABLE_READ, reqs[0].GetTransaction().GetBegin().GetIsolationLevel())
	require.Empty(t, reqs[1].GetRequestOptions().GetRequestTag())
	require.Equal(t, "app=test", xtest.Requests[*spannerpb.CommitRequest](srv, "Commit")[0].GetRequestOptions().GetTransactionTag())
}
