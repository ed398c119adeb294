// Package orchestrator runs the prompt loop: provider streaming, tool
// dispatch, step accounting, pause/resume, and persistence of every
// part the model produces.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opencore-ai/opencore/internal/agent"
	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/message"
	"github.com/opencore-ai/opencore/internal/observability"
	"github.com/opencore-ai/opencore/internal/processor"
	"github.com/opencore-ai/opencore/internal/provider"
	"github.com/opencore-ai/opencore/internal/session"
	"github.com/opencore-ai/opencore/internal/tool"
	"github.com/opencore-ai/opencore/pkg/models"
)

const (
	maxTodoReminders = 2

	todoReminderText = "[System] There are still unfinished todo items for this session. " +
		"Check the todo list and continue working on the remaining tasks."

	doomLoopWarning = "\n[Warning: repeated identical tool calls detected, stopping the loop]\n"
)

// PromptInput carries one prompt request. Zero-valued optional fields
// fall back to session and agent defaults.
type PromptInput struct {
	Content      string   `json:"content"`
	ProviderID   string   `json:"provider_id,omitempty"`
	ModelID      string   `json:"model_id,omitempty"`
	System       string   `json:"system,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	ToolsEnabled bool     `json:"tools_enabled"`
	AutoContinue *bool    `json:"auto_continue,omitempty"`
	MaxSteps     int      `json:"max_steps,omitempty"`
}

// LoopState tracks one session's live agentic loop.
type LoopState struct {
	Step          int    `json:"step"`
	MaxSteps      int    `json:"max_steps"`
	AutoContinue  bool   `json:"auto_continue"`
	StopReason    string `json:"stop_reason,omitempty"`
	Paused        bool   `json:"paused"`
	PauseReason   string `json:"pause_reason,omitempty"`
	todoReminders int
	reminder      string
}

// Options wires an orchestrator.
type Options struct {
	Sessions   *session.Store
	Messages   *message.Store
	Providers  *provider.Registry
	Agents     *agent.Registry
	Tools      *tool.Registry
	Processors *processor.Registry
	Bus        *bus.Bus
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	Logger     *slog.Logger

	DefaultProviderID string
	DefaultModelID    string
}

// Orchestrator drives prompt execution for all sessions. Each session
// has at most one in-flight loop.
type Orchestrator struct {
	sessions   *session.Store
	messages   *message.Store
	providers  *provider.Registry
	agents     *agent.Registry
	tools      *tool.Registry
	processors *processor.Registry
	bus        *bus.Bus
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger

	defaultProviderID string
	defaultModelID    string

	mu      sync.Mutex
	loops   map[string]*LoopState
	cancels map[string]context.CancelFunc
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NewTracer()
	}
	processors := opts.Processors
	if processors == nil {
		processors = processor.NewProcessorRegistry()
	}
	providers := opts.Providers
	if providers == nil {
		providers = provider.NewRegistry()
	}
	return &Orchestrator{
		sessions:          opts.Sessions,
		messages:          opts.Messages,
		providers:         providers,
		agents:            opts.Agents,
		tools:             opts.Tools,
		processors:        processors,
		bus:               opts.Bus,
		metrics:           metrics,
		tracer:            tracer,
		logger:            logger,
		defaultProviderID: opts.DefaultProviderID,
		defaultModelID:    opts.DefaultModelID,
		loops:             make(map[string]*LoopState),
		cancels:           make(map[string]context.CancelFunc),
	}
}

// Prompt runs a prompt against a session and streams the resulting
// chunks. The returned channel closes when the run finishes, is
// cancelled, or fails.
func (o *Orchestrator) Prompt(ctx context.Context, sessionID string, input PromptInput) (<-chan *provider.StreamChunk, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	agentID := sess.AgentID
	if agentID == "" {
		agentID = agent.DefaultAgentID
	}
	ag := o.agents.Get(agentID)
	if ag == nil {
		ag = o.agents.Default()
	}

	autoContinue := ag.AutoContinue
	if input.AutoContinue != nil {
		autoContinue = *input.AutoContinue
	}
	maxSteps := ag.MaxSteps
	if input.MaxSteps > 0 {
		maxSteps = input.MaxSteps
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[sessionID] = cancel
	o.mu.Unlock()

	out := make(chan *provider.StreamChunk)
	go func() {
		defer close(out)
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.cancels, sessionID)
			o.mu.Unlock()
		}()

		runCtx, span := o.tracer.StartPrompt(runCtx, sessionID, ag.ID)
		defer span.End()

		if autoContinue {
			o.agenticLoop(runCtx, sessionID, input, ag, maxSteps, out)
		} else {
			o.singleTurn(runCtx, sessionID, input, ag, nil, false, out)
		}
	}()
	return out, nil
}

// agenticLoop iterates single turns with tool dispatch between steps
// until the model stops calling tools, a doom loop trips, the step cap
// is reached, or the loop pauses.
func (o *Orchestrator) agenticLoop(ctx context.Context, sessionID string, input PromptInput, ag *models.Agent, maxSteps int, out chan<- *provider.StreamChunk) {
	state := &LoopState{MaxSteps: maxSteps, AutoContinue: true}
	o.mu.Lock()
	o.loops[sessionID] = state
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.loops, sessionID)
		o.mu.Unlock()
		o.processors.Remove(sessionID)
	}()

	proc := o.processors.GetOrCreate(sessionID, maxSteps)

	for proc.ShouldContinue() && !o.paused(state) {
		state.Step++
		proc.StartStep()
		o.publish(bus.StepStarted, map[string]any{
			"session_id": sessionID,
			"step":       state.Step,
			"max_steps":  maxSteps,
		})

		turnInput := input
		isContinuation := false
		switch {
		case state.Step == 1:
		case state.reminder != "":
			turnInput = continuationInput(input, state.reminder)
			state.reminder = ""
		default:
			turnInput = continuationInput(input, "")
			isContinuation = true
		}

		if !emit(ctx, out, &provider.StreamChunk{
			Type:       provider.ChunkStepStart,
			StepNumber: state.Step,
			MaxSteps:   maxSteps,
		}) {
			return
		}

		started := time.Now()
		stepCtx, stepSpan := o.tracer.StartStep(ctx, state.Step, maxSteps)
		o.singleTurn(stepCtx, sessionID, turnInput, ag, state, isContinuation, out)
		stepSpan.End()

		stepStatus := processor.StepCompleted
		if proc.IsDoomLoop() {
			stepStatus = processor.StepDoomLoop
			emit(ctx, out, &provider.StreamChunk{Type: provider.ChunkText, Text: doomLoopWarning})
		}
		proc.FinishStep(stepStatus)
		o.metrics.RecordStep(ag.ID, stepStatus, time.Since(started).Seconds())
		o.publish(bus.StepFinished, map[string]any{
			"session_id": sessionID,
			"step":       state.Step,
			"max_steps":  maxSteps,
		})

		if proc.IsDoomLoop() {
			break
		}
		if ctx.Err() != nil {
			return
		}

		if state.StopReason != provider.StopToolCalls {
			if state.todoReminders < maxTodoReminders && o.hasPendingTodos(ctx, sessionID) {
				state.todoReminders++
				state.reminder = todoReminderText
				o.logger.Debug("pending todos, injecting reminder",
					"session_id", sessionID,
					"reminder", state.todoReminders)
				continue
			}
			break
		}
	}

	if o.paused(state) {
		emit(ctx, out, &provider.StreamChunk{
			Type: provider.ChunkText,
			Text: fmt.Sprintf("\n[Paused: %s]\n", state.PauseReason),
		})
	} else if state.Step >= maxSteps {
		emit(ctx, out, &provider.StreamChunk{
			Type: provider.ChunkText,
			Text: fmt.Sprintf("\n[Max steps (%d) reached]\n", maxSteps),
		})
	}
}

// continuationInput copies the sampling settings of the original input
// onto a follow-up turn.
func continuationInput(input PromptInput, content string) PromptInput {
	return PromptInput{
		Content:      content,
		ProviderID:   input.ProviderID,
		ModelID:      input.ModelID,
		Temperature:  input.Temperature,
		MaxTokens:    input.MaxTokens,
		ToolsEnabled: input.ToolsEnabled,
	}
}

// singleTurn makes one provider call and dispatches any tool calls it
// produces. state is nil outside the agentic loop.
func (o *Orchestrator) singleTurn(ctx context.Context, sessionID string, input PromptInput, ag *models.Agent, state *LoopState, isContinuation bool, out chan<- *provider.StreamChunk) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		emit(ctx, out, &provider.StreamChunk{Type: provider.ChunkError, Error: err.Error()})
		return
	}

	providerID, modelID := o.resolveModel(input, sess, ag)
	prov, err := o.providers.Get(providerID)
	if err != nil {
		emit(ctx, out, &provider.StreamChunk{Type: provider.ChunkError, Error: fmt.Sprintf("Provider not found: %s", providerID)})
		return
	}

	if input.Content != "" && !isContinuation {
		if _, err := o.messages.CreateUser(ctx, sessionID, input.Content); err != nil {
			emit(ctx, out, &provider.StreamChunk{Type: provider.ChunkError, Error: err.Error()})
			return
		}
	}

	asst, err := o.messages.CreateAssistant(ctx, sessionID, message.AssistantOptions{
		ProviderID: providerID,
		ModelID:    modelID,
	})
	if err != nil {
		emit(ctx, out, &provider.StreamChunk{Type: provider.ChunkError, Error: err.Error()})
		return
	}
	if !emit(ctx, out, &provider.StreamChunk{Type: provider.ChunkMessageStart, MessageID: asst.ID}) {
		return
	}
	if state != nil {
		o.addPart(ctx, sessionID, asst.ID, models.Part{
			Type:       models.PartStepStart,
			StepNumber: state.Step,
			MaxSteps:   state.MaxSteps,
		})
	}

	history, err := o.messages.List(ctx, sessionID, 0)
	if err != nil {
		o.failTurn(ctx, sessionID, asst.ID, err, out)
		return
	}
	// The empty assistant message just created is not history.
	if n := len(history); n > 0 && history[n-1].ID == asst.ID {
		history = history[:n-1]
	}

	req := provider.StreamRequest{
		ModelID:   modelID,
		Messages:  provider.ProjectMessages(history),
		System:    agent.BuildSystemPrompt(ag, providerID, input.System),
		MaxTokens: input.MaxTokens,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = ag.MaxTokens
	}
	if input.Temperature != nil {
		req.Temperature = input.Temperature
	} else if ag.Temperature != nil {
		t := float64(*ag.Temperature)
		req.Temperature = &t
	}
	if input.ToolsEnabled {
		req.Tools = o.tools.Schemas()
	}

	chunks, err := prov.Stream(ctx, req)
	if err != nil {
		o.metrics.RecordProviderRequest(providerID, modelID, "error", 0, 0)
		o.failTurn(ctx, sessionID, asst.ID, err, out)
		return
	}

	turn := &turnAccumulator{}
	for chunk := range chunks {
		switch chunk.Type {
		case provider.ChunkText:
			o.accumulateContent(ctx, sessionID, asst.ID, models.PartText, chunk.Text, &turn.textPartID, &turn.text)
			if !emit(ctx, out, chunk) {
				return
			}

		case provider.ChunkReasoning:
			o.accumulateContent(ctx, sessionID, asst.ID, models.PartReasoning, chunk.Text, &turn.reasoningPartID, &turn.reasoning)
			if !emit(ctx, out, chunk) {
				return
			}

		case provider.ChunkToolCall:
			if chunk.ToolCall == nil {
				if !emit(ctx, out, chunk) {
					return
				}
				continue
			}
			if !o.dispatchTool(ctx, sessionID, asst.ID, chunk, ag, state, out) {
				return
			}

		case provider.ChunkDone:
			o.finishTurn(ctx, sessionID, asst.ID, providerID, modelID, chunk, state)
			if !emit(ctx, out, chunk) {
				return
			}

		case provider.ChunkError:
			_ = o.messages.SetError(ctx, sessionID, asst.ID, chunk.Error)
			o.metrics.RecordProviderRequest(providerID, modelID, "error", 0, 0)
			if state != nil {
				state.StopReason = provider.StopEndTurn
			}
			if !emit(ctx, out, chunk) {
				return
			}

		default:
			if !emit(ctx, out, chunk) {
				return
			}
		}
	}

	if err := o.sessions.Touch(ctx, sessionID); err != nil {
		o.logger.Warn("touch session", "session_id", sessionID, "error", err)
	}
}

type turnAccumulator struct {
	textPartID      string
	text            strings.Builder
	reasoningPartID string
	reasoning       strings.Builder
}

// accumulateContent grows a text or reasoning part as chunks stream in.
// The first chunk creates the part; later chunks rewrite its content
// with the full accumulation.
func (o *Orchestrator) accumulateContent(ctx context.Context, sessionID, messageID string, partType models.PartType, text string, partID *string, acc *strings.Builder) {
	acc.WriteString(text)
	if *partID == "" {
		part := o.addPart(ctx, sessionID, messageID, models.Part{Type: partType, Content: acc.String()})
		if part != nil {
			*partID = part.ID
		}
		return
	}
	content := acc.String()
	if _, err := o.messages.UpdatePart(ctx, sessionID, messageID, *partID, func(p *models.Part) {
		p.Content = content
	}); err != nil {
		o.logger.Warn("update part", "part_id", *partID, "error", err)
	}
}

// dispatchTool persists and executes one tool call. The tool_call chunk
// is re-emitted before execution so interactive tools can render their
// UI before blocking. Returns false when the consumer is gone.
func (o *Orchestrator) dispatchTool(ctx context.Context, sessionID, messageID string, chunk *provider.StreamChunk, ag *models.Agent, state *LoopState, out chan<- *provider.StreamChunk) bool {
	tc := chunk.ToolCall

	part := o.addPart(ctx, sessionID, messageID, models.Part{
		Type:       models.PartToolCall,
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		ToolArgs:   tc.Arguments,
		ToolStatus: models.ToolRunning,
	})
	partID := ""
	if part != nil {
		partID = part.ID
	}
	o.publishToolState(sessionID, messageID, partID, tc.Name, models.ToolRunning)

	if !emit(ctx, out, chunk) {
		return false
	}

	if tc.Name == "question" && state != nil && ag.PauseOnQuestion {
		o.setPaused(state, true, "question")
	}

	var output string
	var status models.ToolStatus
	if agent.IsToolAllowed(ag, tc.Name) == models.ActionDeny {
		output = fmt.Sprintf("Error: Tool '%s' is not allowed for this agent", tc.Name)
		status = models.ToolError
		o.addPart(ctx, sessionID, messageID, models.Part{
			Type:       models.PartToolResult,
			ToolCallID: tc.ID,
			ToolOutput: output,
		})
		o.metrics.RecordToolExecution(tc.Name, "denied", 0)
	} else {
		output, status = o.executeTool(ctx, sessionID, messageID, tc, ag)
	}

	if partID != "" {
		if _, err := o.messages.UpdatePart(ctx, sessionID, messageID, partID, func(p *models.Part) {
			p.ToolStatus = status
		}); err != nil {
			o.logger.Warn("update tool status", "part_id", partID, "error", err)
		}
	}
	o.publishToolState(sessionID, messageID, partID, tc.Name, status)

	if state != nil {
		o.clearQuestionPause(state)
	}

	return emit(ctx, out, &provider.StreamChunk{Type: provider.ChunkToolResult, Text: output})
}

// executeTool runs a tool call end to end: doom-loop gate, lookup,
// argument validation, execution, truncation, persistence.
func (o *Orchestrator) executeTool(ctx context.Context, sessionID, messageID string, tc *provider.ToolCall, ag *models.Agent) (string, models.ToolStatus) {
	persist := func(output string) {
		o.addPart(ctx, sessionID, messageID, models.Part{
			Type:       models.PartToolResult,
			ToolCallID: tc.ID,
			ToolOutput: output,
		})
	}

	proc := o.processors.GetOrCreate(sessionID, 0)
	if proc.RecordToolCall(tc.Name, tc.Arguments) {
		output := fmt.Sprintf("Error: Doom loop detected - tool '%s' called repeatedly", tc.Name)
		persist(output)
		o.metrics.RecordToolExecution(tc.Name, "error", 0)
		return output, models.ToolError
	}

	t := o.tools.Get(tc.Name)
	if t == nil {
		output := fmt.Sprintf("Error: Tool '%s' not found", tc.Name)
		persist(output)
		o.metrics.RecordToolExecution(tc.Name, "error", 0)
		return output, models.ToolError
	}

	started := time.Now()
	toolCtx, span := o.tracer.StartTool(ctx, tc.Name, tc.ID)

	var result *tool.Result
	err := o.tools.Validate(tc.Name, tc.Arguments)
	if err == nil {
		result, err = t.Execute(toolCtx, tc.Arguments, tool.Context{
			SessionID:  sessionID,
			MessageID:  messageID,
			ToolCallID: tc.ID,
			Agent:      ag.ID,
		})
	}
	observability.EndSpan(span, err)
	duration := time.Since(started).Seconds()

	if err != nil {
		output := fmt.Sprintf("Error executing tool: %v", err)
		persist(output)
		o.metrics.RecordToolExecution(tc.Name, "error", duration)
		return output, models.ToolError
	}

	result.Truncate()
	o.recordQuestionOutcome(tc.Name, result)
	output := fmt.Sprintf("[%s]\n%s", result.Title, result.Output)
	persist(output)
	o.metrics.RecordToolExecution(tc.Name, "completed", duration)
	return output, models.ToolCompleted
}

func (o *Orchestrator) recordQuestionOutcome(toolName string, result *tool.Result) {
	if toolName != "question" || result.Metadata == nil {
		return
	}
	switch {
	case result.Metadata["rejected"] == true:
		o.metrics.RecordQuestion("rejected")
	case result.Metadata["timeout"] == true:
		o.metrics.RecordQuestion("timeout")
	default:
		o.metrics.RecordQuestion("replied")
	}
}

// finishTurn persists usage, cost, and stop reason from a done chunk.
func (o *Orchestrator) finishTurn(ctx context.Context, sessionID, messageID, providerID, modelID string, chunk *provider.StreamChunk, state *LoopState) {
	if state != nil {
		state.StopReason = chunk.StopReason
	}
	if chunk.StopReason != "" {
		_ = o.messages.SetFinish(ctx, sessionID, messageID, chunk.StopReason)
	}
	if chunk.Usage == nil {
		o.metrics.RecordProviderRequest(providerID, modelID, "success", 0, 0)
		return
	}

	usage := *chunk.Usage
	_ = o.messages.SetUsage(ctx, sessionID, messageID, usage)

	var cost float64
	if model := o.providers.GetModel(providerID, modelID); model != nil {
		cost = (float64(usage.InputTokens)*model.CostInput + float64(usage.OutputTokens)*model.CostOutput) / 1e6
	}
	if _, err := o.sessions.AddUsage(ctx, sessionID, usage, cost); err != nil {
		o.logger.Warn("roll up usage", "session_id", sessionID, "error", err)
	}

	if state != nil {
		o.addPart(ctx, sessionID, messageID, models.Part{
			Type:         models.PartStepFinish,
			StepNumber:   state.Step,
			MaxSteps:     state.MaxSteps,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			Cost:         cost,
			StopReason:   chunk.StopReason,
		})
	}
	o.metrics.RecordProviderRequest(providerID, modelID, "success", usage.InputTokens, usage.OutputTokens)
}

// failTurn persists an error raised outside the provider stream and
// emits the terminal error chunk.
func (o *Orchestrator) failTurn(ctx context.Context, sessionID, messageID string, err error, out chan<- *provider.StreamChunk) {
	if setErr := o.messages.SetError(ctx, sessionID, messageID, err.Error()); setErr != nil {
		o.logger.Warn("persist turn error", "session_id", sessionID, "error", setErr)
	}
	emit(ctx, out, &provider.StreamChunk{Type: provider.ChunkError, Error: err.Error()})
}

// resolveModel applies precedence: explicit input, session default,
// global default; an unset provider is inferred from the model ID.
func (o *Orchestrator) resolveModel(input PromptInput, sess *models.Session, ag *models.Agent) (providerID, modelID string) {
	modelID = input.ModelID
	if modelID == "" {
		modelID = sess.ModelID
	}
	if modelID == "" && ag.Model != nil {
		modelID = ag.Model.ModelID
	}
	if modelID == "" {
		modelID = o.defaultModelID
	}

	providerID = input.ProviderID
	if providerID == "" {
		providerID = sess.ProviderID
	}
	if providerID == "" && ag.Model != nil {
		providerID = ag.Model.ProviderID
	}
	if providerID == "" && modelID != "" {
		providerID = o.providers.Infer(modelID)
	}
	if providerID == "" {
		providerID = o.defaultProviderID
	}
	return providerID, modelID
}

// Cancel stops the session's in-flight loop. Running tool executions
// complete; no further steps start. Idempotent.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	cancelled := false
	if cancel, ok := o.cancels[sessionID]; ok {
		cancel()
		delete(o.cancels, sessionID)
		cancelled = true
	}
	if state, ok := o.loops[sessionID]; ok {
		state.Paused = true
		state.PauseReason = "cancelled"
		delete(o.loops, sessionID)
		cancelled = true
	}
	return cancelled
}

// LoopState returns a snapshot of the session's live loop, or nil.
func (o *Orchestrator) LoopState(sessionID string) *LoopState {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.loops[sessionID]
	if !ok {
		return nil
	}
	snapshot := *state
	return &snapshot
}

// Resume re-enters a loop paused on a question. The question must have
// been answered through the question channel first; the loop continues
// with empty continuation turns while the model keeps calling tools.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (<-chan *provider.StreamChunk, error) {
	o.mu.Lock()
	state, ok := o.loops[sessionID]
	if !ok || !state.Paused {
		o.mu.Unlock()
		return nil, fmt.Errorf("no paused loop to resume for session %s", sessionID)
	}
	state.Paused = false
	state.PauseReason = ""
	o.mu.Unlock()

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	agentID := sess.AgentID
	if agentID == "" {
		agentID = agent.DefaultAgentID
	}
	ag := o.agents.Get(agentID)
	if ag == nil {
		ag = o.agents.Default()
	}

	out := make(chan *provider.StreamChunk)
	go func() {
		defer close(out)
		for state.StopReason == provider.StopToolCalls && !o.paused(state) && state.Step < state.MaxSteps {
			state.Step++
			if !emit(ctx, out, &provider.StreamChunk{
				Type: provider.ChunkText,
				Text: fmt.Sprintf("\n[Resuming... step %d/%d]\n", state.Step, state.MaxSteps),
			}) {
				return
			}
			o.singleTurn(ctx, sessionID, continuationInput(PromptInput{ToolsEnabled: true}, ""), ag, state, true, out)
		}
	}()
	return out, nil
}

func (o *Orchestrator) hasPendingTodos(ctx context.Context, sessionID string) bool {
	todo, ok := o.tools.Get("todo").(*tool.TodoTool)
	if !ok {
		return false
	}
	pending, err := todo.HasPending(ctx, sessionID)
	if err != nil {
		o.logger.Warn("check pending todos", "session_id", sessionID, "error", err)
		return false
	}
	return pending
}

func (o *Orchestrator) paused(state *LoopState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return state.Paused
}

func (o *Orchestrator) setPaused(state *LoopState, paused bool, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state.Paused = paused
	state.PauseReason = reason
}

func (o *Orchestrator) clearQuestionPause(state *LoopState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state.Paused && state.PauseReason == "question" {
		state.Paused = false
		state.PauseReason = ""
	}
}

func (o *Orchestrator) addPart(ctx context.Context, sessionID, messageID string, part models.Part) *models.Part {
	added, err := o.messages.AddPart(ctx, sessionID, messageID, part)
	if err != nil {
		o.logger.Warn("add part", "session_id", sessionID, "message_id", messageID, "error", err)
		return nil
	}
	return added
}

func (o *Orchestrator) publish(eventType string, payload map[string]any) {
	if o.bus != nil {
		o.bus.Publish(eventType, payload)
	}
}

func (o *Orchestrator) publishToolState(sessionID, messageID, partID, toolName string, status models.ToolStatus) {
	o.publish(bus.ToolStateChanged, map[string]any{
		"session_id": sessionID,
		"message_id": messageID,
		"part_id":    partID,
		"tool_name":  toolName,
		"status":     string(status),
	})
}

// emit sends a chunk unless the consumer's context is gone.
func emit(ctx context.Context, out chan<- *provider.StreamChunk, chunk *provider.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
