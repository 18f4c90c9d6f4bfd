package client

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/supportbase/mcpcollect/protocol"
)

const instrumentationName = "github.com/supportbase/mcpcollect"

// telemetry instruments every request/response exchange with a span and
// request/error/duration metrics.
type telemetry struct {
	tracer          trace.Tracer
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	requestDuration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	tracer := tp.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion("1.0.0"),
	)
	meter := mp.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	requestCounter, _ := meter.Int64Counter(
		"mcp.client.requests",
		metric.WithDescription("Total number of MCP requests sent"),
		metric.WithUnit("{request}"),
	)
	requestDuration, _ := meter.Float64Histogram(
		"mcp.client.request.duration",
		metric.WithDescription("Duration of MCP request/response exchanges"),
		metric.WithUnit("ms"),
	)
	errorCounter, _ := meter.Int64Counter(
		"mcp.client.errors",
		metric.WithDescription("Total number of failed MCP exchanges"),
		metric.WithUnit("{error}"),
	)

	return &telemetry{
		tracer:          tracer,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		requestDuration: requestDuration,
	}
}

// observe runs fn inside a span named after the method and records
// request count, duration and error outcome.
func (t *telemetry) observe(ctx context.Context, method string, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "mcp."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("mcp.method", method)),
	)
	defer span.End()

	attrs := []attribute.KeyValue{attribute.String("mcp.method", method)}
	t.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	start := time.Now()
	err := fn(ctx)
	t.requestDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attrs...))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var mcpErr *protocol.Error
		if errors.As(err, &mcpErr) {
			span.SetAttributes(attribute.Int("mcp.error_code", mcpErr.Code))
			t.errorCounter.Add(ctx, 1, metric.WithAttributes(
				append(attrs, attribute.Int("mcp.error_code", mcpErr.Code))...,
			))
		} else {
			t.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
