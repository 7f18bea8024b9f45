package spanner

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/grpc"

	"github.com/spanner-go/spanner-go-sdk/config"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

func dial(ctx context.Context, cfg *config.Config) (*grpc.ClientConn, error) {
	var ts oauth2.TokenSource
	if cfg.Secure() && !cfg.Emulator() {
		var err error
		ts, err = tokenSource(ctx, cfg)
		if err != nil {
			return nil, xerrors.WithStackTrace(err)
		}
	}

	cc, err := grpc.NewClient(cfg.Endpoint(), cfg.GrpcDialOptions(ts)...)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return cc, nil
}

// tokenSource resolves credentials in order: explicit token source, JSON key,
// application default credentials. Tokens outlive ctx.
func tokenSource(ctx context.Context, cfg *config.Config) (oauth2.TokenSource, error) {
	if ts := cfg.TokenSource(); ts != nil {
		return ts, nil
	}
	ctx = context.WithoutCancel(ctx)
	if json := cfg.CredentialsJSON(); len(json) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, json, config.Scope)
		if err != nil {
			return nil, xerrors.WithStackTrace(err)
		}

		return creds.TokenSource, nil
	}
	ts, err := google.DefaultTokenSource(ctx, config.Scope)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}

	return ts, nil
}
