package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.RecordStep("build", "completed", 1.5)
	m.RecordStep("build", "completed", 0.2)
	m.RecordStep("build", "doom_loop", 0.1)
	if got := testutil.ToFloat64(m.PromptSteps.WithLabelValues("build", "completed")); got != 2 {
		t.Errorf("completed steps = %v", got)
	}
	if got := testutil.ToFloat64(m.PromptSteps.WithLabelValues("build", "doom_loop")); got != 1 {
		t.Errorf("doom_loop steps = %v", got)
	}

	m.RecordToolExecution("websearch", "completed", 0.3)
	m.RecordToolExecution("websearch", "error", 0.1)
	if got := testutil.ToFloat64(m.ToolExecutions.WithLabelValues("websearch", "error")); got != 1 {
		t.Errorf("tool errors = %v", got)
	}

	m.RecordProviderRequest("anthropic", "claude-sonnet-4-20250514", "success", 100, 50)
	if got := testutil.ToFloat64(m.ProviderTokens.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "input")); got != 100 {
		t.Errorf("input tokens = %v", got)
	}
	// Zero token counts are not recorded.
	m.RecordProviderRequest("anthropic", "claude-sonnet-4-20250514", "error", 0, 0)
	if got := testutil.ToFloat64(m.ProviderTokens.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "input")); got != 100 {
		t.Errorf("error request added tokens: %v", got)
	}

	m.RecordQuestion("replied")
	m.RecordHTTPRequest("POST", "/session/{id}/message", "200")
	if got := testutil.ToFloat64(m.QuestionOutcomes.WithLabelValues("replied")); got != 1 {
		t.Errorf("question outcomes = %v", got)
	}
}

func TestMetricsIndependentRegistries(t *testing.T) {
	// Two instances must not collide (prometheus panics on duplicate
	// registration in a shared registry).
	a := NewMetrics()
	b := NewMetrics()
	a.RecordQuestion("timeout")
	if got := testutil.ToFloat64(b.QuestionOutcomes.WithLabelValues("timeout")); got != 0 {
		t.Errorf("registries shared state: %v", got)
	}
}

func TestTracerSpans(t *testing.T) {
	tr := NewTracer()
	ctx, span := tr.StartPrompt(t.Context(), "ses_1", "build")
	_, stepSpan := tr.StartStep(ctx, 1, 50)
	EndSpan(stepSpan, nil)
	EndSpan(span, errors.New("boom"))
}
