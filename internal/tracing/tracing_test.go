package tracing_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"

	"github.com/pulsebench/pulsebench/internal/config"
	"github.com/pulsebench/pulsebench/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp.Tracer("test")
}

func TestInitWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if p.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want false")
	}
	_, span := p.Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected a no-op span")
	}
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInitExporters(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		wantErr  bool
	}{
		{name: "grpc default", protocol: ""},
		{name: "http", protocol: "http"},
		{name: "unsupported", protocol: "kafka", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint: "localhost:4317",
				Protocol: tt.protocol,
				Insecure: true,
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("Init() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
			if !p.ShouldPropagate() {
				t.Error("propagation should default on when exporting")
			}
		})
	}
}

func TestInitInvalidSampleRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.5} {
		if _, err := tracing.Init(context.Background(), config.TracingConfig{Endpoint: "localhost:4317", SampleRate: rate}); err == nil {
			t.Errorf("Init(sample_rate=%g) error = nil, want error", rate)
		}
	}
}

func TestPropagateOverride(t *testing.T) {
	off := false
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:  "localhost:4317",
		Insecure:  true,
		Propagate: &off,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	if p.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want false")
	}
}

func TestNilProvider(t *testing.T) {
	var p *tracing.Provider
	if p.ShouldPropagate() {
		t.Error("nil provider should not propagate")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "x")
	span.End()
}

func TestSessionSpan(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracing.StartSessionSpan(context.Background(), tracer, "websocket", "ws://localhost:8080/ws/chat", 7)
	tracing.EndSpan(span, errors.New("handshake rejected"), tracing.AttrStatus.String("403"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "websocket session" {
		t.Errorf("span name = %q", got.Name)
	}
	if got.SpanKind != trace.SpanKindClient {
		t.Errorf("span kind = %v", got.SpanKind)
	}
	if got.Status.Code != codes.Error {
		t.Errorf("status = %v, want error", got.Status.Code)
	}
	attrs := map[string]string{}
	for _, kv := range got.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	want := map[string]string{
		"pulsebench.protocol": "websocket",
		"pulsebench.target":   "ws://localhost:8080/ws/chat",
		"pulsebench.vu":       "7",
		"pulsebench.status":   "403",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEndSpanOk(t *testing.T) {
	exporter, tracer := setupTestTracer(t)
	_, span := tracer.Start(context.Background(), "ok")
	tracing.EndSpan(span, nil)
	if spans := exporter.GetSpans(); len(spans) != 1 || spans[0].Status.Code != codes.Ok {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestInjectCarriers(t *testing.T) {
	_, tracer := setupTestTracer(t)
	ctx, span := tracer.Start(context.Background(), "inject")
	defer span.End()

	headers := http.Header{}
	tracing.InjectHTTPHeaders(ctx, headers)
	if got := headers.Get("Traceparent"); len(got) < 55 {
		t.Errorf("traceparent header = %q", got)
	}

	md := metadata.New(nil)
	tracing.InjectGRPCMetadata(ctx, md)
	if vals := md.Get("traceparent"); len(vals) == 0 || len(vals[0]) < 55 {
		t.Errorf("traceparent metadata = %v", vals)
	}

	empty := http.Header{}
	tracing.InjectHTTPHeaders(context.Background(), empty)
	if got := empty.Get("Traceparent"); got != "" {
		t.Errorf("traceparent without span = %q", got)
	}
}
