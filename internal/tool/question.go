package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/id"
)

// DefaultQuestionTimeout is how long a question waits for an answer.
const DefaultQuestionTimeout = 300 * time.Second

var (
	// ErrQuestionRejected is returned when the user dismisses a question.
	ErrQuestionRejected = errors.New("the user dismissed this question")

	// ErrQuestionTimeout is returned when no answer arrives in time.
	ErrQuestionTimeout = errors.New("question timed out")
)

// QuestionOption is one selectable choice.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// QuestionInfo is one question put to the user.
type QuestionInfo struct {
	Question string           `json:"question"`
	Header   string           `json:"header"`
	Options  []QuestionOption `json:"options"`
	Multiple bool             `json:"multiple"`
	Custom   bool             `json:"custom"`
}

// QuestionRequest is the pending-question record published to clients.
type QuestionRequest struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Questions  []QuestionInfo `json:"questions"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	MessageID  string         `json:"message_id,omitempty"`
}

// questionReply resolves one pending question.
type questionReply struct {
	answers  [][]string
	rejected bool
}

// QuestionChannel is the rendezvous between a tool execution blocked on
// Ask and the API handler delivering the user's answer. Each pending
// request resolves exactly once.
type QuestionChannel struct {
	mu      sync.Mutex
	pending map[string]chan questionReply
	bus     *bus.Bus
	timeout time.Duration
}

// NewQuestionChannel creates the channel with the default timeout.
func NewQuestionChannel(b *bus.Bus) *QuestionChannel {
	return &QuestionChannel{
		pending: make(map[string]chan questionReply),
		bus:     b,
		timeout: DefaultQuestionTimeout,
	}
}

// SetTimeout overrides the answer timeout. Used by tests.
func (c *QuestionChannel) SetTimeout(d time.Duration) { c.timeout = d }

// Ask publishes the questions and blocks until the user replies, the
// question is rejected, the timeout fires, or ctx is done. The request
// ID is the tool call ID when present so clients can correlate directly.
func (c *QuestionChannel) Ask(ctx context.Context, sessionID string, questions []QuestionInfo, toolCallID, messageID string) ([][]string, error) {
	requestID := toolCallID
	if requestID == "" {
		requestID = id.New(id.Question)
	}

	ch := make(chan questionReply, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	req := QuestionRequest{
		ID:         requestID,
		SessionID:  sessionID,
		Questions:  questions,
		ToolCallID: toolCallID,
		MessageID:  messageID,
	}
	if c.bus != nil {
		c.bus.Publish(bus.QuestionAsked, requestPayload(req))
	}

	select {
	case reply := <-ch:
		if reply.rejected {
			return nil, ErrQuestionRejected
		}
		return reply.answers, nil
	case <-time.After(c.timeout):
		return nil, fmt.Errorf("%w after %s", ErrQuestionTimeout, c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply delivers answers to a pending question. Returns false when the
// request is unknown or already resolved.
func (c *QuestionChannel) Reply(requestID string, answers [][]string) bool {
	if !c.resolve(requestID, questionReply{answers: answers}) {
		return false
	}
	if c.bus != nil {
		c.bus.Publish(bus.QuestionReplied, map[string]any{
			"request_id": requestID,
			"answers":    answers,
		})
	}
	return true
}

// Reject dismisses a pending question without an answer.
func (c *QuestionChannel) Reject(requestID string) bool {
	if !c.resolve(requestID, questionReply{rejected: true}) {
		return false
	}
	if c.bus != nil {
		c.bus.Publish(bus.QuestionRejected, map[string]any{"request_id": requestID})
	}
	return true
}

func (c *QuestionChannel) resolve(requestID string, reply questionReply) bool {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- reply
	return true
}

// Pending returns the request IDs still waiting for an answer.
func (c *QuestionChannel) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pending))
	for requestID := range c.pending {
		ids = append(ids, requestID)
	}
	return ids
}

func requestPayload(req QuestionRequest) map[string]any {
	raw, _ := json.Marshal(req)
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	return payload
}

const questionDescription = `Use this tool when you need to ask the user questions during execution. This allows you to:
1. Gather user preferences or requirements
2. Clarify ambiguous instructions
3. Get decisions on implementation choices as you work
4. Offer choices to the user about what direction to take.

IMPORTANT: You MUST provide at least 2 options for each question. Never ask open-ended questions without choices.

Usage notes:
- REQUIRED: Every question MUST have at least 2 options (minItems: 2)
- When ` + "`custom`" + ` is enabled (default), a "Type your own answer" option is added automatically; don't include "Other" or catch-all options
- Answers are returned as arrays of labels; set ` + "`multiple: true`" + ` to allow selecting more than one
- If you recommend a specific option, make that the first option in the list and add "(Recommended)" at the end of the label`

// QuestionTool lets the model ask the user questions mid-run.
type QuestionTool struct {
	channel *QuestionChannel
}

// NewQuestionTool creates the question tool over the given channel.
func NewQuestionTool(channel *QuestionChannel) *QuestionTool {
	return &QuestionTool{channel: channel}
}

func (t *QuestionTool) ID() string          { return "question" }
func (t *QuestionTool) Description() string { return questionDescription }

func (t *QuestionTool) Parameters() json.RawMessage {
	return mustJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":        "array",
				"description": "Questions to ask",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{
							"type":        "string",
							"description": "Complete question",
						},
						"header": map[string]any{
							"type":        "string",
							"description": "Very short label (max 30 chars)",
						},
						"options": map[string]any{
							"type":        "array",
							"description": "Available choices (MUST provide at least 2 options)",
							"minItems":    2,
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"label": map[string]any{
										"type":        "string",
										"description": "Display text (1-5 words, concise)",
									},
									"description": map[string]any{
										"type":        "string",
										"description": "Explanation of choice",
									},
								},
								"required": []string{"label", "description"},
							},
						},
						"multiple": map[string]any{
							"type":        "boolean",
							"description": "Allow selecting multiple choices",
							"default":     false,
						},
					},
					"required": []string{"question", "header", "options"},
				},
			},
		},
		"required": []string{"questions"},
	})
}

func (t *QuestionTool) Execute(ctx context.Context, args map[string]any, tc Context) (*Result, error) {
	questions := parseQuestions(args)
	if len(questions) == 0 {
		return &Result{
			Title:  "No questions",
			Output: "No questions were provided.",
		}, nil
	}

	answers, err := t.channel.Ask(ctx, tc.SessionID, questions, tc.ToolCallID, tc.MessageID)
	if errors.Is(err, ErrQuestionRejected) {
		return &Result{
			Title:    "Questions dismissed",
			Output:   "The user dismissed the questions without answering.",
			Metadata: map[string]any{"rejected": true},
		}, nil
	}
	if errors.Is(err, ErrQuestionTimeout) {
		return &Result{
			Title:    "Questions timed out",
			Output:   err.Error(),
			Metadata: map[string]any{"timeout": true},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	formatted := make([]string, 0, len(questions))
	for i, q := range questions {
		answer := "Unanswered"
		if i < len(answers) && len(answers[i]) > 0 {
			answer = strings.Join(answers[i], ", ")
		}
		formatted = append(formatted, fmt.Sprintf("%q=%q", q.Question, answer))
	}

	title := fmt.Sprintf("Asked %d question", len(questions))
	if len(questions) > 1 {
		title += "s"
	}
	return &Result{
		Title:    title,
		Output:   fmt.Sprintf("User has answered your questions: %s. You can now continue with the user's answers in mind.", strings.Join(formatted, ", ")),
		Metadata: map[string]any{"answers": answers},
	}, nil
}

// parseQuestions decodes the loosely-typed questions argument, skipping
// entries that are not objects.
func parseQuestions(args map[string]any) []QuestionInfo {
	list, ok := args["questions"].([]any)
	if !ok {
		return nil
	}
	var out []QuestionInfo
	for _, item := range list {
		q, ok := item.(map[string]any)
		if !ok {
			continue
		}
		info := QuestionInfo{
			Question: stringArg(q, "question", ""),
			Header:   stringArg(q, "header", ""),
			Multiple: boolArg(q, "multiple", false),
			Custom:   boolArg(q, "custom", true),
		}
		if opts, ok := q["options"].([]any); ok {
			for _, o := range opts {
				opt, ok := o.(map[string]any)
				if !ok {
					continue
				}
				info.Options = append(info.Options, QuestionOption{
					Label:       stringArg(opt, "label", ""),
					Description: stringArg(opt, "description", ""),
				})
			}
		}
		out = append(out, info)
	}
	return out
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
