package provider

import (
	"strings"

	"github.com/opencore-ai/opencore/pkg/models"
)

// ProjectMessages flattens stored history into the provider wire shape.
//
// User messages keep their content; empty ones (loop continuations) are
// dropped. Assistant messages contribute only their joined text parts.
// Tool outputs are re-injected as a synthetic user message so the model
// sees results without a "[Called tool: ...]" echo, which some models
// would otherwise imitate in plain text instead of issuing real calls.
func ProjectMessages(history []*models.Message) []Message {
	var out []Message
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			if msg.Content != "" {
				out = append(out, Message{Role: models.RoleUser, Content: msg.Content})
			}
		case models.RoleAssistant:
			var texts []string
			var results []string
			for i := range msg.Parts {
				part := &msg.Parts[i]
				switch part.Type {
				case models.PartText:
					if part.Content != "" {
						texts = append(texts, part.Content)
					}
				case models.PartToolResult:
					results = append(results, "Tool result:\n"+part.ToolOutput)
				}
			}
			if len(texts) > 0 {
				out = append(out, Message{Role: models.RoleAssistant, Content: strings.Join(texts, "")})
			}
			if len(results) > 0 {
				out = append(out, Message{Role: models.RoleUser, Content: strings.Join(results, "\n\n")})
			}
		}
	}
	return out
}
