package xtest

import (
	"fmt"
	"net"
	"reflect"
	"time"

	"github.com/rekby/fixenv"
	"github.com/rekby/fixenv/sf"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// SpannerServerAddr serves srv on a local TCP listener for the lifetime of the fixture env.
func SpannerServerAddr(e fixenv.Env, srv *SpannerServer) string {
	addr := reflect.ValueOf(srv).Pointer()

	var f fixenv.GenericFixtureFunction[string] = func() (*fixenv.GenericResult[string], error) {
		listener := sf.LocalTCPListenerNamed(e, fmt.Sprintf("spanner-grpc-mock-%v", addr))

		mock, err := newGrpcMock(listener, srv)
		if err != nil {
			return nil, fmt.Errorf("failed to create grpc mock: %w", err)
		}

		clean := func() {
			_ = mock.Close()
		}

		return fixenv.NewGenericResultWithCleanup(listener.Addr().String(), clean), nil
	}

	return fixenv.CacheResult(e, f, fixenv.CacheOptions{CacheKey: addr})
}

// SpannerConn dials the fake server.
func SpannerConn(e fixenv.Env, srv *SpannerServer) *grpc.ClientConn {
	addr := SpannerServerAddr(e, srv)

	var f fixenv.GenericFixtureFunction[*grpc.ClientConn] = func() (*fixenv.GenericResult[*grpc.ClientConn], error) {
		cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, err
		}

		return fixenv.NewGenericResultWithCleanup(cc, func() { _ = cc.Close() }), nil
	}

	return fixenv.CacheResult(e, f, fixenv.CacheOptions{CacheKey: addr})
}

type grpcMock struct {
	listener   net.Listener
	grpcServer *grpc.Server
	stopChan   chan error
}

func (m *grpcMock) Close() error {
	m.grpcServer.Stop()

	return m.listener.Close()
}

func newGrpcMock(listener net.Listener, srv *SpannerServer) (*grpcMock, error) {
	res := &grpcMock{
		listener:   listener,
		grpcServer: grpc.NewServer(),
		stopChan:   make(chan error, 1),
	}

	srv.Register(res.grpcServer)

	go func() {
		res.stopChan <- res.grpcServer.Serve(res.listener)
	}()

	select {
	case err := <-res.stopChan:
		return nil, err
	case <-time.After(time.Millisecond):
		return res, nil
	}
}
