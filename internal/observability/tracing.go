package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/opencore-ai/opencore"

// Tracer wraps the OpenTelemetry tracer API. Exporter and sampler
// wiring belong to the embedding process; without them spans are no-ops.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a tracer drawing from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// StartPrompt opens a span for one prompt run.
func (t *Tracer) StartPrompt(ctx context.Context, sessionID, agentID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "orchestrator.prompt",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("agent.id", agentID),
		))
}

// StartStep opens a span for one loop step.
func (t *Tracer) StartStep(ctx context.Context, step, maxSteps int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "orchestrator.step",
		trace.WithAttributes(
			attribute.Int("step.number", step),
			attribute.Int("step.max", maxSteps),
		))
}

// StartTool opens a span for one tool execution.
func (t *Tracer) StartTool(ctx context.Context, toolName, toolCallID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.call_id", toolCallID),
		))
}

// EndSpan closes a span, recording err when present.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
