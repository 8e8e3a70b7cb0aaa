package oteltrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soko-labs/soko-checkout/internal/observability"
)

type tracer struct{ t trace.Tracer }

// New wraps the globally configured otel tracer behind the TraceCtx port.
// Exporter wiring (sdktrace.TracerProvider + otel.SetTracerProvider) is the
// deployment's concern; without it spans are no-ops.
func New(name string) observability.TraceCtx {
	if name == "" {
		name = "soko-checkout"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
