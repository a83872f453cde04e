// Package tracing wires an OTLP/gRPC trace exporter and the global tracer
// provider (which the otelhttp-wrapped WebSocket upgrade handler records
// spans against), grounded on kedacore/keda's otel stack
// (go.opentelemetry.io/otel + otlptracegrpc); keda's otelgrpc contrib is not
// pulled in since pathfinder exposes no gRPC server.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the tracer every RPC stage creates spans from.
const Tracer = "github.com/openmatchmaking/pathfinder"

// Setup dials otlpEndpoint (empty disables tracing, installing a no-op
// provider) and installs the resulting provider as the global tracer
// provider. The returned shutdown func must be called to flush and close
// the exporter.
func Setup(ctx context.Context, otlpEndpoint string) (shutdown func(context.Context) error, err error) {
	if otlpEndpoint == "" {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(otlpEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String("pathfinder"),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartSpan starts a span named name under the current tracer. The RPC
// engine and auth middleware do not call it; they open no spans of their
// own.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(Tracer).Start(ctx, name)
}
