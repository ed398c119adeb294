package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencore-ai/opencore/internal/storage"
)

// TodoItem is one entry on a session's todo list.
type TodoItem struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`   // pending, in_progress, completed, cancelled
	Priority string `json:"priority"` // high, medium, low
}

// TodoTool tracks a per-session task list in storage under
// ["todo", sessionID].
type TodoTool struct {
	storage storage.Store
}

// NewTodoTool creates the todo tool over the given storage.
func NewTodoTool(st storage.Store) *TodoTool {
	return &TodoTool{storage: st}
}

func (t *TodoTool) ID() string { return "todo" }

func (t *TodoTool) Description() string {
	return "Manage a todo list for tracking tasks. Use this to create, update, " +
		"and track progress on multi-step tasks. Supports pending, in_progress, " +
		"completed, and cancelled statuses."
}

func (t *TodoTool) Parameters() json.RawMessage {
	return mustJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write"},
				"description": "Action to perform: 'read' to get todos, 'write' to update todos",
			},
			"todos": map[string]any{
				"type":        "array",
				"description": "List of todos (required for 'write' action)",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":      map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
						"status": map[string]any{
							"type": "string",
							"enum": []string{"pending", "in_progress", "completed", "cancelled"},
						},
						"priority": map[string]any{
							"type": "string",
							"enum": []string{"high", "medium", "low"},
						},
					},
					"required": []string{"id", "content", "status", "priority"},
				},
			},
		},
		"required": []string{"action"},
	})
}

func (t *TodoTool) Execute(ctx context.Context, args map[string]any, tc Context) (*Result, error) {
	switch stringArg(args, "action", "") {
	case "read":
		return t.read(ctx, tc.SessionID)
	case "write":
		return t.write(ctx, tc.SessionID, args["todos"])
	default:
		return &Result{
			Title:    "Todo Error",
			Output:   fmt.Sprintf("Unknown action: %v", args["action"]),
			Metadata: map[string]any{"error": "invalid_action"},
		}, nil
	}
}

func (t *TodoTool) read(ctx context.Context, sessionID string) (*Result, error) {
	items, err := t.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &Result{
			Title:    "Todo List",
			Output:   "No todos found for this session.",
			Metadata: map[string]any{"count": 0},
		}, nil
	}
	return &Result{
		Title:    "Todo List",
		Output:   formatTodos(items),
		Metadata: map[string]any{"count": len(items)},
	}, nil
}

func (t *TodoTool) write(ctx context.Context, sessionID string, todosArg any) (*Result, error) {
	raw, err := json.Marshal(todosArg)
	if err != nil {
		return nil, err
	}
	var items []TodoItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return &Result{
			Title:    "Todo Error",
			Output:   fmt.Sprintf("Invalid todos: %v", err),
			Metadata: map[string]any{"error": "invalid_todos"},
		}, nil
	}
	if items == nil {
		items = []TodoItem{}
	}
	if err := t.storage.Write(ctx, []string{"todo", sessionID}, items); err != nil {
		return nil, err
	}
	return &Result{
		Title:    "Todo List Updated",
		Output:   formatTodos(items),
		Metadata: map[string]any{"count": len(items)},
	}, nil
}

func (t *TodoTool) load(ctx context.Context, sessionID string) ([]TodoItem, error) {
	var items []TodoItem
	err := t.storage.ReadInto(ctx, []string{"todo", sessionID}, &items)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// HasPending reports whether the session still has todos that are
// pending or in progress. The agentic loop uses this to decide whether
// to nudge the model to keep going.
func (t *TodoTool) HasPending(ctx context.Context, sessionID string) (bool, error) {
	items, err := t.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.Status == "pending" || item.Status == "in_progress" {
			return true, nil
		}
	}
	return false, nil
}

func formatTodos(items []TodoItem) string {
	if len(items) == 0 {
		return "No todos."
	}
	statusIcons := map[string]string{
		"pending":     "[ ]",
		"in_progress": "[~]",
		"completed":   "[x]",
		"cancelled":   "[-]",
	}
	priorityIcons := map[string]string{
		"high":   "!!!",
		"medium": "!!",
		"low":    "!",
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		icon, ok := statusIcons[item.Status]
		if !ok {
			icon = "[ ]"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s (id: %s)", icon, priorityIcons[item.Priority], item.Content, item.ID))
	}
	return strings.Join(lines, "\n")
}
