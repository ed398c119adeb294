// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the orchestrator. Metrics register on a private registry
// so tests can create instances freely; the server mounts the registry
// at /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the orchestrator's operational counters.
type Metrics struct {
	registry *prometheus.Registry

	// PromptSteps counts agentic loop steps.
	// Labels: agent, status (completed|error|doom_loop)
	PromptSteps *prometheus.CounterVec

	// PromptStepDuration measures one loop step in seconds.
	// Labels: agent
	PromptStepDuration *prometheus.HistogramVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (completed|error|denied)
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ProviderRequests counts provider streams.
	// Labels: provider, model, status (success|error)
	ProviderRequests *prometheus.CounterVec

	// ProviderTokens tracks token consumption.
	// Labels: provider, model, type (input|output)
	ProviderTokens *prometheus.CounterVec

	// QuestionOutcomes counts interactive question resolutions.
	// Labels: outcome (replied|rejected|timeout)
	QuestionOutcomes *prometheus.CounterVec

	// HTTPRequests counts API requests.
	// Labels: method, path, status_code
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		PromptSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencore_prompt_steps_total",
				Help: "Total agentic loop steps by agent and status",
			},
			[]string{"agent", "status"},
		),

		PromptStepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opencore_prompt_step_duration_seconds",
				Help:    "Duration of agentic loop steps in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"agent"},
		),

		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencore_tool_executions_total",
				Help: "Total tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opencore_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"tool"},
		),

		ProviderRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencore_provider_requests_total",
				Help: "Total provider stream requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ProviderTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencore_provider_tokens_total",
				Help: "Total tokens consumed by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		QuestionOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencore_question_outcomes_total",
				Help: "Total interactive question resolutions by outcome",
			},
			[]string{"outcome"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencore_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStep records one finished loop step.
func (m *Metrics) RecordStep(agent, status string, durationSeconds float64) {
	m.PromptSteps.WithLabelValues(agent, status).Inc()
	m.PromptStepDuration.WithLabelValues(agent).Observe(durationSeconds)
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(tool, status string, durationSeconds float64) {
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordProviderRequest records one provider stream outcome.
func (m *Metrics) RecordProviderRequest(provider, model, status string, inputTokens, outputTokens int) {
	m.ProviderRequests.WithLabelValues(provider, model, status).Inc()
	if inputTokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordQuestion records an interactive question resolution.
func (m *Metrics) RecordQuestion(outcome string) {
	m.QuestionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records one API request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string) {
	m.HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}
