package operations

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cropcast.operations"

// RunTracer instruments run and stage execution with OpenTelemetry spans.
// With no tracer provider installed the spans are no-ops.
type RunTracer struct {
	tracer trace.Tracer
}

// NewRunTracer returns a tracer for run instrumentation.
func NewRunTracer() *RunTracer {
	return &RunTracer{tracer: otel.Tracer(tracerName)}
}

// StartRun opens the root span for one run.
func (t *RunTracer) StartRun(ctx context.Context, runID, kind string, year, week int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "run."+kind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.kind", kind),
			attribute.Int("run.year", year),
			attribute.Int("run.week", week),
		),
	)
}

// StartStage opens a child span for one stage.
func (t *RunTracer) StartStage(ctx context.Context, runID, stageID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "stage."+stageID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("stage.id", stageID),
		),
	)
}

// EndStage closes a stage span with its outcome.
func (t *RunTracer) EndStage(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// EndRun closes the run span with the terminal status and counters.
func (t *RunTracer) EndRun(span trace.Span, status string, featureRows, forecasts, failedUnits int, err error) {
	span.SetAttributes(
		attribute.String("run.status", status),
		attribute.Int("run.feature_rows", featureRows),
		attribute.Int("run.forecasts", forecasts),
		attribute.Int("run.failed_units", failedUnits),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
