package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
)

const instrumentationName = "github.com/spanner-go/spanner-go-sdk"

// Attribute keys of client spans.
const (
	KeyDatabase    = attribute.Key("db.name")
	KeyStatement   = attribute.Key("db.statement")
	KeyTable       = attribute.Key("db.sql.table")
	KeySession     = attribute.Key("spanner.session")
	KeyMultiplexed = attribute.Key("spanner.session.multiplexed")
	KeyAttempt     = attribute.Key("spanner.attempt")
	KeyRowCount    = attribute.Key("spanner.row_count")
	KeyGRPCCode    = attribute.Key("rpc.grpc.status_code")
)

// Tracer starts client spans. The zero value and nil are usable and record nothing.
type Tracer struct {
	tracer   trace.Tracer
	database string
	extended bool
}

// New returns a tracer of provider. A nil provider means the global one.
// SQL text is attached to spans only when extended is true.
func New(provider trace.TracerProvider, database string, extended bool) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	return &Tracer{
		tracer:   provider.Tracer(instrumentationName, trace.WithInstrumentationVersion(meta.Version)),
		database: database,
		extended: extended,
	}
}

func (t *Tracer) Extended() bool {
	return t != nil && t.extended
}

// Start opens a client span named name.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	if t.database != "" {
		attrs = append(attrs, KeyDatabase.String(t.database))
	}

	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// StartStatement is Start for SQL statements.
func (t *Tracer) StartStatement(
	ctx context.Context, name, sql string, attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	if t.Extended() {
		attrs = append(attrs, KeyStatement.String(sql))
	}

	return t.Start(ctx, name, attrs...)
}

// Finish records err on span and ends it.
func Finish(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		attrs = append(attrs, KeyGRPCCode.Int64(int64(xerrors.Code(err))))
	}
	span.SetAttributes(attrs...)
	span.End()
}

// Event adds an event to the span of ctx.
func Event(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
