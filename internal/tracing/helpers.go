package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names, keyed by the layer emitting the span.
const (
	tracerApp   = "eventide"
	tracerDB    = "eventide/db"
	tracerCache = "eventide/cache"
)

// DBOperation classifies a spanned database round trip.
type DBOperation string

const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationUpdate DBOperation = "update"
	DBOperationDelete DBOperation = "delete"
	DBOperationExec   DBOperation = "exec"
)

// endWith closes span, recording err as the span status when non-nil.
func endWith(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StartSpan opens an application-level span, e.g. "search" or "feed.compose".
// The returned func ends the span; pass it the operation's error.
func StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerApp).Start(ctx, name)
	return ctx, endWith(span)
}

// StartDBSpan opens a client span for a Postgres round trip against table.
// The span is named "<operation> <table>", e.g. "query events".
func StartDBSpan(ctx context.Context, table string, operation DBOperation) (context.Context, func(error)) {
	name := string(operation)
	if table != "" {
		name += " " + table
	}
	ctx, span := otel.Tracer(tracerDB).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", string(operation)),
		),
	)
	if table != "" {
		span.SetAttributes(attribute.String("db.sql.table", table))
	}
	return ctx, endWith(span)
}

// StartCacheSpan opens a client span for a Redis cache operation on key,
// e.g. StartCacheSpan(ctx, "get", key) around a result-set read.
func StartCacheSpan(ctx context.Context, operation, key string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerCache).Start(ctx, "cache."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("cache.key", key),
		),
	)
	return ctx, endWith(span)
}

// AddEvent attaches a point-in-time event to the span in ctx.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the span in ctx.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
