// Package tracing holds the span helpers shared by the request paths. Spans go
// to the global tracer provider, which is a no-op until an SDK is installed.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mattjoyce/gpgbridge"

func TxID(id string) attribute.KeyValue {
	return attribute.String("gpgbridge.txid", id)
}

func Method(m string) attribute.KeyValue {
	return attribute.String("gpgbridge.method", m)
}

func Origin(o string) attribute.KeyValue {
	return attribute.String("gpgbridge.origin", o)
}

// Failed marks whether the response carried isError.
func Failed(isError bool) attribute.KeyValue {
	return attribute.Bool("gpgbridge.is_error", isError)
}

// StartHandlerSpan starts a server span named name.
func StartHandlerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// StartClientSpan starts a span around an outbound hop, e.g. a relay
// forwarding to the privileged side.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records err on span and sets its status to Error.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
