package session

import (
	"context"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

//go:generate mockgen -destination client_mock_test.go -package session -write_package_comment=false . Client

// Client is the part of spannerpb.SpannerClient which manages sessions.
type Client interface {
	CreateSession(
		ctx context.Context, in *spannerpb.CreateSessionRequest, opts ...grpc.CallOption,
	) (*spannerpb.Session, error)
	BatchCreateSessions(
		ctx context.Context, in *spannerpb.BatchCreateSessionsRequest, opts ...grpc.CallOption,
	) (*spannerpb.BatchCreateSessionsResponse, error)
	GetSession(
		ctx context.Context, in *spannerpb.GetSessionRequest, opts ...grpc.CallOption,
	) (*spannerpb.Session, error)
	DeleteSession(
		ctx context.Context, in *spannerpb.DeleteSessionRequest, opts ...grpc.CallOption,
	) (*emptypb.Empty, error)
}

var _ Client = spannerpb.SpannerClient(nil)
