package provider

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/opencore-ai/opencore/pkg/models"
)

// OpenAI streams completions from the OpenAI Chat Completions API.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates the OpenAI adapter.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{client: openai.NewClient(apiKey)}
}

func (o *OpenAI) ID() string   { return "openai" }
func (o *OpenAI) Name() string { return "OpenAI" }

func (o *OpenAI) Models() map[string]ModelInfo {
	return map[string]ModelInfo{
		"gpt-4o": {
			ID: "gpt-4o", Name: "GPT-4o", ProviderID: "openai",
			ContextLimit: 128000, OutputLimit: 16384,
			SupportsTools: true, SupportsStreaming: true,
			CostInput: 2.5, CostOutput: 10.0,
		},
		"gpt-4o-mini": {
			ID: "gpt-4o-mini", Name: "GPT-4o Mini", ProviderID: "openai",
			ContextLimit: 128000, OutputLimit: 16384,
			SupportsTools: true, SupportsStreaming: true,
			CostInput: 0.15, CostOutput: 0.6,
		},
		"o1": {
			ID: "o1", Name: "o1", ProviderID: "openai",
			ContextLimit: 200000, OutputLimit: 100000,
			SupportsTools: true, SupportsStreaming: true,
			CostInput: 15.0, CostOutput: 60.0,
		},
	}
}

func (o *OpenAI) Stream(ctx context.Context, req StreamRequest) (<-chan *StreamChunk, error) {
	chunks := make(chan *StreamChunk)

	go func() {
		defer close(chunks)
		streamChatCompletion(ctx, o.client, req, req.ModelID, chunks)
	}()

	return Normalize(chunks), nil
}

// partialToolCall accumulates a tool call streamed across many deltas.
// The ID and name arrive in the first fragment, arguments in pieces.
type partialToolCall struct {
	id   string
	name string
	args string
}

// streamChatCompletion runs one Chat Completions stream and converts the
// deltas into chunks. Shared by the OpenAI adapter and the gateway.
func streamChatCompletion(ctx context.Context, client *openai.Client, req StreamRequest, model string, chunks chan<- *StreamChunk) {
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages, req.System),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		chunks <- &StreamChunk{Type: ChunkError, Error: err.Error()}
		return
	}
	defer stream.Close()

	toolCalls := make(map[int]*partialToolCall)
	var toolOrder []int
	var usage *models.Usage
	finishReason := ""

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			chunks <- &StreamChunk{Type: ChunkError, Error: err.Error()}
			return
		}

		if resp.Usage != nil {
			usage = &models.Usage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			chunks <- &StreamChunk{Type: ChunkText, Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			partial, ok := toolCalls[index]
			if !ok {
				partial = &partialToolCall{}
				toolCalls[index] = partial
				toolOrder = append(toolOrder, index)
			}
			if tc.ID != "" {
				partial.id = tc.ID
			}
			if tc.Function.Name != "" {
				partial.name = tc.Function.Name
			}
			partial.args += tc.Function.Arguments
		}

		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
	}

	for _, index := range toolOrder {
		partial := toolCalls[index]
		if partial.name == "" {
			continue
		}
		chunks <- &StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCall{
			ID:        partial.id,
			Name:      partial.name,
			Arguments: ParseToolArguments(partial.args),
		}}
	}

	chunks <- &StreamChunk{
		Type:       ChunkDone,
		Usage:      usage,
		StopReason: mapOpenAIFinishReason(finishReason),
	}
}

func convertOpenAIMessages(messages []Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		result = append(result, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

func convertOpenAITools(tools []ToolSchema) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return result
}

func mapOpenAIFinishReason(native string) string {
	switch native {
	case "stop", "end_turn":
		return StopEndTurn
	case "tool_calls", "function_call":
		return StopToolCalls
	case "length", "max_tokens":
		return StopMaxTokens
	case "content_filter":
		return StopContentFilter
	default:
		return StopEndTurn
	}
}
