package provider

import (
	"context"
	"reflect"
	"testing"

	"github.com/opencore-ai/opencore/pkg/models"
)

// fakeProvider replays a scripted chunk sequence through Normalize, the
// same path real adapters use.
type fakeProvider struct {
	id     string
	script []*StreamChunk
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }
func (f *fakeProvider) Models() map[string]ModelInfo {
	return map[string]ModelInfo{"fake-model": {ID: "fake-model", ProviderID: f.id, ContextLimit: 1000, OutputLimit: 100}}
}

func (f *fakeProvider) Stream(ctx context.Context, req StreamRequest) (<-chan *StreamChunk, error) {
	chunks := make(chan *StreamChunk)
	go func() {
		defer close(chunks)
		for _, c := range f.script {
			chunks <- c
		}
	}()
	return Normalize(chunks), nil
}

func drain(t *testing.T, ch <-chan *StreamChunk) []*StreamChunk {
	t.Helper()
	var out []*StreamChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestNormalizeOverridesStopReason(t *testing.T) {
	// Backend reports end_turn despite a pending tool call.
	p := &fakeProvider{id: "fake", script: []*StreamChunk{
		{Type: ChunkText, Text: "let me check"},
		{Type: ChunkToolCall, ToolCall: &ToolCall{ID: "call_1", Name: "web_search", Arguments: map[string]any{"query": "go"}}},
		{Type: ChunkDone, StopReason: StopEndTurn},
	}}

	ch, err := p.Stream(context.Background(), StreamRequest{ModelID: "fake-model"})
	if err != nil {
		t.Fatal(err)
	}
	chunks := drain(t, ch)
	last := chunks[len(chunks)-1]
	if last.Type != ChunkDone || last.StopReason != StopToolCalls {
		t.Fatalf("done chunk = %+v, want stop_reason tool_calls", last)
	}
}

func TestNormalizeKeepsStopReasonWithoutToolCalls(t *testing.T) {
	p := &fakeProvider{id: "fake", script: []*StreamChunk{
		{Type: ChunkText, Text: "hello"},
		{Type: ChunkDone, StopReason: StopEndTurn, Usage: &models.Usage{InputTokens: 5, OutputTokens: 2}},
	}}

	ch, _ := p.Stream(context.Background(), StreamRequest{ModelID: "fake-model"})
	chunks := drain(t, ch)
	last := chunks[len(chunks)-1]
	if last.StopReason != StopEndTurn {
		t.Fatalf("stop_reason = %s, want end_turn", last.StopReason)
	}
	if last.Usage == nil || last.Usage.InputTokens != 5 {
		t.Fatalf("usage lost in normalization: %+v", last.Usage)
	}
}

func TestParseToolArguments(t *testing.T) {
	tests := []struct {
		name string
		buf  string
		want map[string]any
	}{
		{"valid", `{"query":"weather"}`, map[string]any{"query": "weather"}},
		{"empty", "", map[string]any{}},
		{"malformed", `{"query": "wea`, map[string]any{}},
		{"null", "null", map[string]any{}},
		{"wrong type", `["a"]`, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseToolArguments(tt.buf); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseToolArguments(%q) = %v, want %v", tt.buf, got, tt.want)
			}
		})
	}
}

func TestStopReasonMapping(t *testing.T) {
	anthropicCases := map[string]string{
		"end_turn":      StopEndTurn,
		"stop_sequence": StopEndTurn,
		"tool_use":      StopToolCalls,
		"max_tokens":    StopMaxTokens,
		"":              StopEndTurn,
		"weird":         StopEndTurn,
	}
	for native, want := range anthropicCases {
		if got := mapAnthropicStopReason(native); got != want {
			t.Errorf("mapAnthropicStopReason(%q) = %s, want %s", native, got, want)
		}
	}

	openaiCases := map[string]string{
		"stop":           StopEndTurn,
		"tool_calls":     StopToolCalls,
		"function_call":  StopToolCalls,
		"length":         StopMaxTokens,
		"content_filter": StopContentFilter,
		"":               StopEndTurn,
	}
	for native, want := range openaiCases {
		if got := mapOpenAIFinishReason(native); got != want {
			t.Errorf("mapOpenAIFinishReason(%q) = %s, want %s", native, got, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{id: "fake"})
	r.Register(&fakeProvider{id: "other"})

	if _, err := r.Get("fake"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	infos := r.List()
	if len(infos) != 2 || infos[0].ID != "fake" || infos[1].ID != "other" {
		t.Fatalf("List = %+v", infos)
	}

	if m := r.GetModel("fake", "fake-model"); m == nil || m.ContextLimit != 1000 {
		t.Fatalf("GetModel = %+v", m)
	}
	if m := r.GetModel("fake", "nope"); m != nil {
		t.Fatalf("unknown model = %+v", m)
	}
}

func TestRegistryInfer(t *testing.T) {
	native := NewRegistry()
	native.Register(&fakeProvider{id: "anthropic"})
	native.Register(&fakeProvider{id: "openai"})
	gatewayOnly := NewRegistry()

	tests := []struct {
		name     string
		registry *Registry
		model    string
		want     string
	}{
		{"claude with native adapter", native, "claude-sonnet-4-20250514", "anthropic"},
		{"gpt with native adapter", native, "gpt-4o", "openai"},
		{"o1 with native adapter", native, "o1", "openai"},
		{"o1 family with native adapter", native, "o1-preview", "openai"},
		{"claude without native adapter", gatewayOnly, "claude-sonnet-4-20250514", "gateway"},
		{"gpt without native adapter", gatewayOnly, "gpt-4o", "gateway"},
		{"gemini prefix", native, "gemini/gemini-2.0-flash", "gateway"},
		{"groq prefix", native, "groq/llama-3.3-70b-versatile", "gateway"},
		{"deepseek prefix", native, "deepseek/deepseek-chat", "gateway"},
		{"openrouter prefix", native, "openrouter/anthropic/claude-sonnet-4", "gateway"},
		{"zai prefix", native, "zai/glm-4.7-flash", "gateway"},
		{"unrecognized model", native, "mystery-model", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.registry.Infer(tt.model); got != tt.want {
				t.Errorf("Infer(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

func TestGatewayCatalogAndRouting(t *testing.T) {
	g := NewGateway(GatewayConfig{})

	catalog := g.Models()
	for _, id := range []string{"zai/glm-4.7-flash", "gemini/gemini-2.0-flash", "gpt-4o"} {
		if _, ok := catalog[id]; !ok {
			t.Errorf("catalog missing %s", id)
		}
	}

	_, model := g.route("zai/glm-4.7-flash")
	if model != "glm-4.7-flash" {
		t.Errorf("zai wire model = %s", model)
	}
	_, model = g.route("openrouter/anthropic/claude-sonnet-4")
	if model != "anthropic/claude-sonnet-4" {
		t.Errorf("openrouter wire model = %s", model)
	}
	_, model = g.route("claude-sonnet-4-20250514")
	if model != "claude-sonnet-4-20250514" {
		t.Errorf("fallback wire model = %s", model)
	}

	g.AddModel(ModelInfo{ID: "zai/glm-next", Name: "GLM Next"})
	if m, ok := g.Models()["zai/glm-next"]; !ok || m.ProviderID != "gateway" {
		t.Errorf("AddModel did not register: %+v", m)
	}
}

func TestIsThinkingRejection(t *testing.T) {
	cases := map[string]bool{
		"thinking is not supported on this model": true,
		"Unsupported parameter":                   true,
		"invalid request":                         true,
		"rate limit exceeded":                     false,
	}
	for msg, want := range cases {
		if got := isThinkingRejection(errorString(msg)); got != want {
			t.Errorf("isThinkingRejection(%q) = %v, want %v", msg, got, want)
		}
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
