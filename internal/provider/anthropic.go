package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/opencore-ai/opencore/pkg/models"
)

// Models that accept the extended thinking parameter.
var extendedThinkingModels = map[string]bool{
	"claude-sonnet-4-20250514": true,
	"claude-opus-4-20250514":   true,
}

const (
	anthropicDefaultMaxTokens = 16000
	thinkingBudgetTokens      = 10000
)

// Anthropic streams completions from the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// NewAnthropic creates the Anthropic adapter.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...)}
}

func (a *Anthropic) ID() string   { return "anthropic" }
func (a *Anthropic) Name() string { return "Anthropic" }

func (a *Anthropic) Models() map[string]ModelInfo {
	return map[string]ModelInfo{
		"claude-sonnet-4-20250514": {
			ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ProviderID: "anthropic",
			ContextLimit: 200000, OutputLimit: 64000,
			SupportsTools: true, SupportsStreaming: true,
			CostInput: 3.0, CostOutput: 15.0,
		},
		"claude-opus-4-20250514": {
			ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ProviderID: "anthropic",
			ContextLimit: 200000, OutputLimit: 32000,
			SupportsTools: true, SupportsStreaming: true,
			CostInput: 15.0, CostOutput: 75.0,
		},
		"claude-3-5-haiku-20241022": {
			ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ProviderID: "anthropic",
			ContextLimit: 200000, OutputLimit: 8192,
			SupportsTools: true, SupportsStreaming: true,
			CostInput: 0.8, CostOutput: 4.0,
		},
	}
}

// Stream starts a streaming completion. Models that support extended
// thinking get it enabled; if the backend rejects the thinking parameter
// the request is retried once without it.
func (a *Anthropic) Stream(ctx context.Context, req StreamRequest) (<-chan *StreamChunk, error) {
	chunks := make(chan *StreamChunk)

	go func() {
		defer close(chunks)

		withThinking := extendedThinkingModels[req.ModelID]
		stream := a.newStream(ctx, req, withThinking)
		if done := a.processStream(stream, chunks); done {
			return
		}

		err := stream.Err()
		if err == nil {
			return
		}
		if withThinking && isThinkingRejection(err) {
			retry := a.newStream(ctx, req, false)
			if done := a.processStream(retry, chunks); done {
				return
			}
			if retryErr := retry.Err(); retryErr != nil {
				chunks <- &StreamChunk{Type: ChunkError, Error: retryErr.Error()}
			}
			return
		}
		chunks <- &StreamChunk{Type: ChunkError, Error: err.Error()}
	}()

	return Normalize(chunks), nil
}

// isThinkingRejection matches backend errors caused by the thinking
// parameter on a model that does not accept it.
func isThinkingRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "thinking") ||
		strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "invalid")
}

func (a *Anthropic) newStream(ctx context.Context, req StreamRequest, withThinking bool) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelID),
		Messages:  convertAnthropicMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}
	if withThinking {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkingBudgetTokens)
	}

	return a.client.Messages.NewStreaming(ctx, params)
}

// processStream drains SSE events into chunks. It returns true once a
// terminal chunk was emitted, false when the stream ended early and the
// caller should inspect stream.Err().
func (a *Anthropic) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *StreamChunk) bool {
	var toolID, toolName string
	var toolArgs strings.Builder
	inToolBlock := false

	var usage models.Usage
	stopReason := ""

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			usage.InputTokens = int(start.Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				toolID = toolUse.ID
				toolName = toolUse.Name
				toolArgs.Reset()
				inToolBlock = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &StreamChunk{Type: ChunkText, Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- &StreamChunk{Type: ChunkReasoning, Text: delta.Thinking}
				}
			case "input_json_delta":
				toolArgs.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if inToolBlock {
				chunks <- &StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCall{
					ID:        toolID,
					Name:      toolName,
					Arguments: ParseToolArguments(toolArgs.String()),
				}}
				inToolBlock = false
			}

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(delta.Usage.OutputTokens)
			}
			if delta.Delta.StopReason != "" {
				stopReason = string(delta.Delta.StopReason)
			}

		case "message_stop":
			chunks <- &StreamChunk{
				Type:       ChunkDone,
				Usage:      &usage,
				StopReason: mapAnthropicStopReason(stopReason),
			}
			return true
		}
	}
	return false
}

func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		// System content travels in params.System.
		if msg.Role == "system" {
			continue
		}
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}

func convertAnthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			continue
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		result = append(result, param)
	}
	return result
}

func mapAnthropicStopReason(native string) string {
	switch native {
	case "end_turn", "stop_sequence":
		return StopEndTurn
	case "tool_use":
		return StopToolCalls
	case "max_tokens":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}
