package meta

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc/metadata"
)

type Option func(m *Meta)

func WithEndToEndTracing(enabled bool) Option {
	return func(m *Meta) {
		m.endToEndTracing = enabled
	}
}

func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(m *Meta) {
		m.propagator = p
	}
}

// Meta builds outgoing metadata for every RPC of one database handle.
type Meta struct {
	database        string
	ids             *RequestIDGenerator
	endToEndTracing bool
	propagator      propagation.TextMapPropagator
}

func New(database string, ids *RequestIDGenerator, opts ...Option) *Meta {
	m := &Meta{
		database: database,
		ids:      ids,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m *Meta) Database() string {
	return m.database
}

// NextRequestID starts a new call site.
func (m *Meta) NextRequestID() RequestID {
	return m.ids.Next()
}

type CallOption func(md metadata.MD)

// RouteToLeader marks read-write traffic.
func RouteToLeader() CallOption {
	return func(md metadata.MD) {
		md.Set(HeaderRouteToLeader, strconv.FormatBool(true))
	}
}

// RouteToLeaderIf applies RouteToLeader when cond is true.
func RouteToLeaderIf(cond bool) CallOption {
	if !cond {
		return nil
	}

	return RouteToLeader()
}

func (m *Meta) meta(ctx context.Context, id RequestID, opts ...CallOption) metadata.MD {
	md, has := metadata.FromOutgoingContext(ctx)
	if has {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}

	md.Set(HeaderRequestID, id.String())
	md.Set(HeaderResourcePrefix, m.database)
	if len(md.Get(HeaderAPIClient)) == 0 {
		md.Set(HeaderAPIClient, apiClient)
	}
	if m.endToEndTracing {
		md.Set(HeaderEndToEndTracing, strconv.FormatBool(true))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(md)
		}
	}

	propagator := m.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	propagator.Inject(ctx, carrier(md))

	return md
}

// Context returns ctx carrying the outgoing headers of the request id attempt.
func (m *Meta) Context(ctx context.Context, id RequestID, opts ...CallOption) context.Context {
	return metadata.NewOutgoingContext(ctx, m.meta(ctx, id, opts...))
}

var _ propagation.TextMapCarrier = carrier(nil)

type carrier metadata.MD

func (c carrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}

	return ""
}

func (c carrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c carrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}

	return keys
}
