package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/placemesh/placemesh"

// Span wraps an OpenTelemetry span with a narrower surface
type Span struct {
	span trace.Span
}

// StartSpan creates and starts a new span. The returned context carries the
// span; callers must End it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// End completes the span
func (s *Span) End() {
	s.span.End()
}

// SetAttribute sets a string attribute on the span
func (s *Span) SetAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

// RecordError records an error on the span and marks it failed
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
