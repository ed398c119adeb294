package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// upstream is one OpenAI-compatible backend reachable through the gateway.
type upstream struct {
	// prefix selects this upstream and is stripped from the model ID
	// before it goes on the wire.
	prefix  string
	baseURL string
	apiKey  string
}

// GatewayConfig carries API keys and base URL overrides per upstream.
// Zero-valued fields keep the defaults.
type GatewayConfig struct {
	GeminiAPIKey     string
	GroqAPIKey       string
	DeepSeekAPIKey   string
	OpenRouterAPIKey string
	ZaiAPIKey        string
	ZaiBaseURL       string

	// DefaultBaseURL and DefaultAPIKey serve models without a routing
	// prefix, typically a local proxy speaking the OpenAI protocol.
	DefaultBaseURL string
	DefaultAPIKey  string
}

// Gateway fans model IDs out to OpenAI-compatible upstreams selected by
// the model's routing prefix (gemini/, groq/, deepseek/, openrouter/,
// zai/). Unprefixed models go to the default upstream.
type Gateway struct {
	upstreams []upstream
	fallback  upstream

	mu      sync.Mutex
	clients map[string]*openai.Client

	modelsMu sync.RWMutex
	models   map[string]ModelInfo
}

// NewGateway creates the gateway provider with its built-in model catalog.
func NewGateway(cfg GatewayConfig) *Gateway {
	zaiBase := cfg.ZaiBaseURL
	if zaiBase == "" {
		zaiBase = "https://api.z.ai/api/paas/v4"
	}
	defaultBase := cfg.DefaultBaseURL
	if defaultBase == "" {
		defaultBase = "http://localhost:4000/v1"
	}

	g := &Gateway{
		upstreams: []upstream{
			{prefix: "gemini/", baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", apiKey: cfg.GeminiAPIKey},
			{prefix: "groq/", baseURL: "https://api.groq.com/openai/v1", apiKey: cfg.GroqAPIKey},
			{prefix: "deepseek/", baseURL: "https://api.deepseek.com/v1", apiKey: cfg.DeepSeekAPIKey},
			{prefix: "openrouter/", baseURL: "https://openrouter.ai/api/v1", apiKey: cfg.OpenRouterAPIKey},
			{prefix: "zai/", baseURL: zaiBase, apiKey: cfg.ZaiAPIKey},
		},
		fallback: upstream{baseURL: defaultBase, apiKey: cfg.DefaultAPIKey},
		clients:  make(map[string]*openai.Client),
		models:   defaultGatewayModels(),
	}
	return g
}

func (g *Gateway) ID() string   { return "gateway" }
func (g *Gateway) Name() string { return "Gateway (Multi-Provider)" }

func (g *Gateway) Models() map[string]ModelInfo {
	g.modelsMu.RLock()
	defer g.modelsMu.RUnlock()
	out := make(map[string]ModelInfo, len(g.models))
	for k, v := range g.models {
		out[k] = v
	}
	return out
}

// AddModel extends the catalog at runtime.
func (g *Gateway) AddModel(info ModelInfo) {
	g.modelsMu.Lock()
	defer g.modelsMu.Unlock()
	info.ProviderID = "gateway"
	g.models[info.ID] = info
}

func (g *Gateway) Stream(ctx context.Context, req StreamRequest) (<-chan *StreamChunk, error) {
	client, model := g.route(req.ModelID)
	chunks := make(chan *StreamChunk)

	go func() {
		defer close(chunks)
		r := req
		if r.MaxTokens <= 0 {
			r.MaxTokens = 8192
		}
		streamChatCompletion(ctx, client, r, model, chunks)
	}()

	return Normalize(chunks), nil
}

// route resolves the upstream client and the model name sent on the wire.
func (g *Gateway) route(modelID string) (*openai.Client, string) {
	for _, u := range g.upstreams {
		if strings.HasPrefix(modelID, u.prefix) {
			return g.client(u), strings.TrimPrefix(modelID, u.prefix)
		}
	}
	return g.client(g.fallback), modelID
}

func (g *Gateway) client(u upstream) *openai.Client {
	key := fmt.Sprintf("%s|%s", u.baseURL, u.apiKey)
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[key]; ok {
		return c
	}
	cfg := openai.DefaultConfig(u.apiKey)
	cfg.BaseURL = u.baseURL
	c := openai.NewClientWithConfig(cfg)
	g.clients[key] = c
	return c
}

// Complete runs a non-streaming single completion, used for summary
// generation during compaction.
func (g *Gateway) Complete(ctx context.Context, modelID, prompt string, maxTokens int) (string, error) {
	client, model := g.route(modelID)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func defaultGatewayModels() map[string]ModelInfo {
	models := []ModelInfo{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextLimit: 200000, OutputLimit: 64000, CostInput: 3.0, CostOutput: 15.0},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextLimit: 200000, OutputLimit: 32000, CostInput: 15.0, CostOutput: 75.0},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextLimit: 200000, OutputLimit: 8192, CostInput: 0.8, CostOutput: 4.0},
		{ID: "gpt-4o", Name: "GPT-4o", ContextLimit: 128000, OutputLimit: 16384, CostInput: 2.5, CostOutput: 10.0},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextLimit: 128000, OutputLimit: 16384, CostInput: 0.15, CostOutput: 0.6},
		{ID: "o1", Name: "O1", ContextLimit: 200000, OutputLimit: 100000, CostInput: 15.0, CostOutput: 60.0},
		{ID: "gemini/gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextLimit: 1000000, OutputLimit: 8192, CostInput: 0.075, CostOutput: 0.3},
		{ID: "gemini/gemini-2.5-pro-preview-05-06", Name: "Gemini 2.5 Pro", ContextLimit: 1000000, OutputLimit: 65536, CostInput: 1.25, CostOutput: 10.0},
		{ID: "groq/llama-3.3-70b-versatile", Name: "Llama 3.3 70B (Groq)", ContextLimit: 128000, OutputLimit: 32768, CostInput: 0.59, CostOutput: 0.79},
		{ID: "deepseek/deepseek-chat", Name: "DeepSeek Chat", ContextLimit: 64000, OutputLimit: 8192, CostInput: 0.14, CostOutput: 0.28},
		{ID: "openrouter/anthropic/claude-sonnet-4", Name: "Claude Sonnet 4 (OpenRouter)", ContextLimit: 200000, OutputLimit: 64000, CostInput: 3.0, CostOutput: 15.0},
		{ID: "zai/glm-4.7-flash", Name: "GLM-4.7 Flash (Free)", ContextLimit: 128000, OutputLimit: 8192},
		{ID: "zai/glm-4.6v-flash", Name: "GLM-4.6V Flash (Free)", ContextLimit: 128000, OutputLimit: 8192},
		{ID: "zai/glm-4.5-flash", Name: "GLM-4.5 Flash (Free)", ContextLimit: 128000, OutputLimit: 8192},
	}
	out := make(map[string]ModelInfo, len(models))
	for _, m := range models {
		m.ProviderID = "gateway"
		m.SupportsTools = true
		m.SupportsStreaming = true
		out[m.ID] = m
	}
	return out
}
