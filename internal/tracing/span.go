package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// Attribute keys set on session spans.
const (
	AttrProtocol = attribute.Key("pulsebench.protocol")
	AttrTarget   = attribute.Key("pulsebench.target")
	AttrVU       = attribute.Key("pulsebench.vu")
	AttrStatus   = attribute.Key("pulsebench.status")
)

// StartSessionSpan opens a client span named "<protocol> session" covering
// one REST exchange or one streaming session.
func StartSessionSpan(ctx context.Context, tracer trace.Tracer, protocol, target string, vu int) (context.Context, trace.Span) {
	return tracer.Start(ctx, protocol+" session",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrProtocol.String(protocol),
			AttrTarget.String(target),
			AttrVU.Int(vu),
		),
	)
}

// EndSpan ends span with an error or ok status.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders writes W3C trace context into headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if vals := metadata.MD(c).Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectGRPCMetadata writes W3C trace context into md.
func InjectGRPCMetadata(ctx context.Context, md metadata.MD) {
	otel.GetTextMapPropagator().Inject(ctx, metadataCarrier(md))
}
