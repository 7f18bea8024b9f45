package config

import (
	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/credentials/oauth"
	"google.golang.org/grpc/encoding/gzip"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/log"
)

// GrpcDialOptions builds the dial options of the handle. ts authenticates
// every call on a secure connection and is ignored for the emulator. User
// options go last and win.
func (c *Config) GrpcDialOptions(ts oauth2.TokenSource) (opts []grpc.DialOption) {
	opts = append(opts,
		grpc.WithKeepaliveParams(DefaultKeepaliveParams),
		grpc.WithDefaultServiceConfig(c.balancing.serviceConfig()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(DefaultGRPCMsgSize),
			grpc.MaxCallSendMsgSize(DefaultGRPCMsgSize),
		),
		grpc.WithUserAgent(c.fullUserAgent()),
	)
	if c.compression {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.UseCompressor(gzip.Name)))
	}
	if c.secure && !c.emulator {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsConfig)))
		if ts != nil {
			opts = append(opts, grpc.WithPerRPCCredentials(oauth.TokenSource{TokenSource: ts}))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, log.DialOptions(c.logger)...)

	return append(opts, c.grpcOptions...)
}

func (c *Config) fullUserAgent() string {
	ua := "spanner-go-sdk/" + meta.Version
	if c.userAgent != "" {
		ua = c.userAgent + " " + ua
	}

	return ua
}
