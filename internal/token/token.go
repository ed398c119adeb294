// Package token estimates token usage with a character heuristic. The
// numbers feed pruning and compaction decisions made before any provider
// call, so cheap and deterministic beats exact.
package token

import (
	"encoding/json"
	"math"

	"github.com/opencore-ai/opencore/pkg/models"
)

// CharsPerToken is the heuristic ratio between characters and tokens.
const CharsPerToken = 4

// OutputReserve caps how much of the context window is reserved for the
// model's response when checking for overflow.
const OutputReserve = 16384

// Info aggregates estimated token counts over a message list.
type Info struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Total        int `json:"total"`
}

// Estimate approximates the token count of text as len/4, rounded.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := int(math.Round(float64(len(text)) / CharsPerToken))
	if n < 0 {
		return 0
	}
	return n
}

// CountMessages sums estimates over messages: user content and tool
// results count as input, assistant text, reasoning and tool calls count
// as output.
func CountMessages(messages []*models.Message) Info {
	var info Info
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			info.InputTokens += Estimate(msg.Content)
		case models.RoleAssistant:
			for _, part := range msg.Parts {
				switch part.Type {
				case models.PartText, models.PartReasoning:
					info.OutputTokens += Estimate(part.Content)
				case models.PartToolCall:
					info.OutputTokens += Estimate(part.ToolName)
					if len(part.ToolArgs) > 0 {
						if raw, err := json.Marshal(part.ToolArgs); err == nil {
							info.OutputTokens += Estimate(string(raw))
						}
					}
				case models.PartToolResult:
					info.InputTokens += Estimate(part.ToolOutput)
				}
			}
		}
	}
	info.Total = info.InputTokens + info.OutputTokens
	return info
}

// IsOverflow reports whether the estimated total exceeds the usable
// window: context limit minus the output reserve. A zero context limit
// means the limit is unknown and never overflows.
func IsOverflow(messages []*models.Message, contextLimit, outputLimit int) bool {
	if contextLimit == 0 {
		return false
	}
	reserve := outputLimit
	if reserve > OutputReserve {
		reserve = OutputReserve
	}
	return CountMessages(messages).Total > contextLimit-reserve
}
