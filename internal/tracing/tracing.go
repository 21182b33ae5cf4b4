// Package tracing wraps OpenTelemetry so the worker pool can open one span per
// executed work item without importing the SDK everywhere.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans produced by this module.
const InstrumentationName = "github.com/Swind/go-workqueue"

// SpanExecute is the name of the span wrapping a single work item.
const SpanExecute = "workqueue.execute"

// Tracer returns the module tracer from tp, or from the global provider when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// NewStdoutProvider builds a provider that writes spans as JSON to w
// (os.Stdout when nil). The caller owns the provider and must shut it down.
func NewStdoutProvider(serviceName, serviceVersion string, w io.Writer) (*sdktrace.TracerProvider, error) {
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	return NewProvider(serviceName, serviceVersion, exporter)
}

// NewProvider builds a provider that synchronously exports to exporter.
func NewProvider(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	), nil
}

// WorkAttributes describes the item a span covers.
type WorkAttributes struct {
	WorkID   string
	WorkName string
	Priority string
	Queue    string
	Pool     string
	Worker   int
}

func (a WorkAttributes) keyValues() []attribute.KeyValue {
	kv := []attribute.KeyValue{
		attribute.String("work.id", a.WorkID),
		attribute.String("work.name", a.WorkName),
		attribute.String("work.priority", a.Priority),
		attribute.String("pool.id", a.Pool),
		attribute.Int("pool.worker", a.Worker),
	}
	if a.Queue != "" {
		kv = append(kv, attribute.String("queue.name", a.Queue))
	}
	return kv
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// StartWorkSpan opens a SpanExecute child of ctx.
func StartWorkSpan(ctx context.Context, tracer trace.Tracer, attrs WorkAttributes) (context.Context, *Span) {
	if tracer == nil {
		tracer = Tracer(nil)
	}
	ctx, span := tracer.Start(ctx, SpanExecute,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs.keyValues()...),
	)
	return ctx, &Span{span: span}
}

// SetStatus records err on the span, or an OK status when err is nil.
func (s *Span) SetStatus(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// EndSpan records the status and ends the span.
func EndSpan(sp *Span, err error) {
	if sp == nil {
		return
	}
	sp.SetStatus(err)
	sp.span.End()
}
