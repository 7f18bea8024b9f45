package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/jonboulle/clockwork"
	"github.com/rekby/fixenv"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/xtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testMeta() *meta.Meta {
	return meta.New(xtest.Database, meta.NewRequestIDGenerator(meta.NextClientID(), 1))
}

func newTestManager(t *testing.T, srv *xtest.SpannerServer, opts ...Option) *Manager {
	t.Helper()

	e := fixenv.New(t)
	ctx := xtest.Context(t)
	cc := xtest.SpannerConn(e, srv)
	m := NewManager(ctx, spannerpb.NewSpannerClient(cc), testMeta(), append([]Option{WithMinSize(0)}, opts...)...)
	t.Cleanup(func() {
		_ = m.Close(context.Background())
	})

	return m
}

func TestManagerMultiplexedFallback(t *testing.T) {
	ctx := xtest.Context(t)
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	var seq atomic.Int32
	client.EXPECT().CreateSession(gomock.Any(), gomock.Any()).
		Return(nil, status.Error(codes.Unimplemented, "multiplexed sessions are not supported")).
		Times(1)
	client.EXPECT().BatchCreateSessions(gomock.Any(), gomock.Any()).DoAndReturn(
		func(
			_ context.Context, req *spannerpb.BatchCreateSessionsRequest, _ ...grpc.CallOption,
		) (*spannerpb.BatchCreateSessionsResponse, error) {
			name := fmt.Sprintf("%s/sessions/r%d", req.GetDatabase(), seq.Add(1))

			return &spannerpb.BatchCreateSessionsResponse{Session: []*spannerpb.Session{{Name: name}}}, nil
		},
	).Times(1)
	client.EXPECT().DeleteSession(gomock.Any(), gomock.Any()).Return(&emptypb.Empty{}, nil).Times(1)

	m := NewManager(ctx, client, testMeta(), WithMinSize(0))

	s, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)
	require.False(t, s.Multiplexed())
	require.True(t, m.MultiplexedDisabled())
	require.Equal(t, StatusInUse, s.Status())
	m.Put(ctx, s)
	require.Equal(t, StatusIdle, s.Status())

	again, err := m.Get(ctx, KindReadWrite)
	require.NoError(t, err)
	require.Same(t, s, again)
	m.Put(ctx, again)

	require.Equal(t, Stats{
		Pool:                m.pool.Stats(),
		MultiplexedDisabled: true,
	}, m.Stats())
	require.NoError(t, m.Close(ctx))
}

func TestManagerMultiplexedCreateError(t *testing.T) {
	ctx := xtest.Context(t)
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)

	client.EXPECT().CreateSession(gomock.Any(), gomock.Any()).
		Return(nil, status.Error(codes.Unavailable, "try again")).
		Times(1)
	client.EXPECT().CreateSession(gomock.Any(), gomock.Any()).
		Return(&spannerpb.Session{Name: xtest.Database + "/sessions/m", Multiplexed: true}, nil).
		Times(1)

	m := NewManager(ctx, client, testMeta(), WithMinSize(0))
	defer func() {
		require.NoError(t, m.Close(ctx))
	}()

	_, err := m.Get(ctx, KindReadOnly)
	require.Equal(t, codes.Unavailable, status.Code(err))
	require.False(t, m.MultiplexedDisabled())

	s, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)
	require.True(t, s.Multiplexed())
}

func TestManagerMultiplexedShared(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	m := newTestManager(t, srv, WithMultiplexedReadWrite(false), WithLabels(map[string]string{"env": "test"}))

	ro, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)
	require.True(t, ro.Multiplexed())

	pdml, err := m.Get(ctx, KindPartitioned)
	require.NoError(t, err)
	require.Same(t, ro, pdml)

	rw, err := m.Get(ctx, KindReadWrite)
	require.NoError(t, err)
	require.False(t, rw.Multiplexed())

	m.Put(ctx, ro)
	m.Put(ctx, pdml)
	stats := m.Stats()
	require.True(t, stats.Multiplexed)
	require.Equal(t, 1, stats.Pool.InUse)
	m.Put(ctx, rw)
	require.Equal(t, 1, m.Stats().Pool.Idle)

	creates := xtest.Requests[*spannerpb.CreateSessionRequest](srv, "CreateSession")
	require.Len(t, creates, 1)
	require.True(t, creates[0].GetSession().GetMultiplexed())
	require.Equal(t, map[string]string{"env": "test"}, creates[0].GetSession().GetLabels())

	for _, call := range srv.Calls("") {
		require.Equal(t, []string{xtest.Database}, call.Metadata.Get(meta.HeaderResourcePrefix), call.Method)
		require.Len(t, call.Metadata.Get(meta.HeaderRequestID), 1, call.Method)
	}
}

func TestManagerMultiplexedDisabledByConfig(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	m := newTestManager(t, srv, WithMultiplexed(false))

	s, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)
	require.False(t, s.Multiplexed())
	m.Put(ctx, s)

	require.Empty(t, srv.Calls("CreateSession"))
	require.False(t, m.Config().MultiplexedFor(KindReadWrite))
}

func TestManagerWarmup(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	m := newTestManager(t, srv, WithMinSize(5), WithBatches(2))

	require.NoError(t, m.Warmup(ctx))
	require.Equal(t, 5, srv.SessionCount())
	require.Equal(t, 5, m.Stats().Pool.Idle)

	var total int32
	ids := make(map[string]struct{})
	for _, call := range srv.Calls("BatchCreateSessions") {
		req, ok := call.Request.(*spannerpb.BatchCreateSessionsRequest)
		require.True(t, ok)
		require.Equal(t, xtest.Database, req.GetDatabase())
		total += req.GetSessionCount()
		ids[call.Metadata.Get(meta.HeaderRequestID)[0]] = struct{}{}
	}
	require.EqualValues(t, 5, total)
	require.Len(t, ids, len(srv.Calls("BatchCreateSessions")))
}

func TestManagerRefreshMultiplexed(t *testing.T) {
	ctx := xtest.Context(t)
	clock := clockwork.NewFakeClock()
	srv := xtest.NewSpannerServer()
	m := newTestManager(t, srv,
		WithClock(clock),
		WithMultiplexedRefresh(time.Minute, time.Hour),
		WithMaintainInterval(time.Hour),
	)

	first, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)

	// pool maintenance and multiplexed refresh tickers
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	clock.Advance(time.Minute)
	again, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)
	require.Same(t, first, again)

	clock.Advance(time.Hour)
	xtest.SpinWaitCondition(t, nil, func() bool {
		return len(srv.Calls("CreateSession")) == 2
	})
	xtest.SpinWaitCondition(t, nil, func() bool {
		s, err := m.Get(ctx, KindReadOnly)

		return err == nil && s.Name() != first.Name()
	})
	require.Equal(t, StatusClosed, first.Status())
	require.Empty(t, srv.Calls("DeleteSession"))
}

func TestManagerStopsRefreshWhenMultiplexedUnsupported(t *testing.T) {
	ctx := xtest.Context(t)
	clock := clockwork.NewFakeClock()
	srv := xtest.NewSpannerServer()
	var creates atomic.Int32
	srv.OnCreateSession = func(context.Context, *spannerpb.CreateSessionRequest) (*spannerpb.Session, error) {
		if creates.Add(1) == 1 {
			return &spannerpb.Session{Name: xtest.Database + "/sessions/mux", Multiplexed: true}, nil
		}

		return nil, status.Error(codes.Unimplemented, "multiplexed sessions are not supported")
	}
	m := newTestManager(t, srv,
		WithClock(clock),
		WithMultiplexedRefresh(time.Minute, time.Hour),
		WithMaintainInterval(time.Hour),
	)

	_, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	clock.Advance(time.Hour)
	xtest.SpinWaitCondition(t, nil, func() bool {
		return m.Stats().MultiplexedDisabled
	})
	// only the pool maintenance ticker is left
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(2 * time.Hour)
	require.EqualValues(t, 2, creates.Load())
	s, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)
	require.False(t, s.Multiplexed())
	m.Put(ctx, s)
}

func TestManagerDropsSessionNotFound(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	m := newTestManager(t, srv, WithMultiplexed(false))

	s, err := m.Get(ctx, KindReadWrite)
	require.NoError(t, err)

	s.Check(status.Error(codes.Aborted, "aborted"))
	require.True(t, s.IsAlive())
	s.Check(status.Errorf(codes.NotFound, "Session not found: %s", s.Name()))
	require.False(t, s.IsAlive())
	m.Put(ctx, s)
	require.Equal(t, 0, m.Stats().Pool.Idle)

	fresh, err := m.Get(ctx, KindReadWrite)
	require.NoError(t, err)
	require.NotEqual(t, s.Name(), fresh.Name())
	m.Put(ctx, fresh)
}

func TestManagerExists(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	srv.OnGetSession = func(_ context.Context, req *spannerpb.GetSessionRequest) (*spannerpb.Session, error) {
		switch req.GetName() {
		case xtest.Database + "/sessions/missing":
			return nil, status.Errorf(codes.NotFound, "Session not found: %s", req.GetName())
		case xtest.Database + "/sessions/denied":
			return nil, status.Error(codes.PermissionDenied, "denied")
		default:
			return &spannerpb.Session{Name: req.GetName()}, nil
		}
	}
	m := newTestManager(t, srv, WithMultiplexed(false))

	exists, err := m.Exists(ctx, xtest.Database+"/sessions/s1")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = m.Exists(ctx, xtest.Database+"/sessions/missing")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = m.Exists(ctx, xtest.Database+"/sessions/denied")
	require.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestSessionPing(t *testing.T) {
	ctx := xtest.Context(t)
	clock := clockwork.NewFakeClock()
	srv := xtest.NewSpannerServer()
	m := newTestManager(t, srv, WithMultiplexed(false), WithClock(clock))

	s, err := m.Get(ctx, KindReadOnly)
	require.NoError(t, err)
	created := s.LastUseTime()

	clock.Advance(time.Minute)
	require.NoError(t, s.Ping(ctx))
	require.True(t, s.LastUseTime().After(created))

	_, err = srv.DeleteSession(ctx, &spannerpb.DeleteSessionRequest{Name: s.Name()})
	require.NoError(t, err)
	require.Equal(t, codes.NotFound, status.Code(s.Ping(ctx)))
	require.Equal(t, StatusNotFound, s.Status())
	m.Put(ctx, s)
}

func TestManagerClose(t *testing.T) {
	ctx := xtest.Context(t)
	srv := xtest.NewSpannerServer()
	m := newTestManager(t, srv, WithMinSize(3), WithMultiplexed(false))
	require.NoError(t, m.Warmup(ctx))
	require.Equal(t, 3, srv.SessionCount())

	require.NoError(t, m.Close(ctx))
	require.Equal(t, 0, srv.SessionCount())
	require.Len(t, srv.Calls("DeleteSession"), 3)

	_, err := m.Get(ctx, KindReadOnly)
	require.ErrorIs(t, err, errManagerClosed)
	require.Error(t, m.Close(ctx))
}
