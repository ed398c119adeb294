// Package processor tracks agentic loop execution per session: step
// accounting, doom-loop detection, and retry backoff.
package processor

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DoomLoopThreshold is how many consecutive identical tool calls count
// as a loop.
const DoomLoopThreshold = 3

// callSignature identifies a tool call by name and argument hash.
type callSignature struct {
	tool string
	args string
}

// DoomLoopDetector flags repeated calls of the same tool with the same
// arguments. Different arguments reset nothing; only an unbroken run of
// identical calls trips it.
type DoomLoopDetector struct {
	threshold int
	history   []callSignature
}

// NewDoomLoopDetector creates a detector with the given threshold.
func NewDoomLoopDetector(threshold int) *DoomLoopDetector {
	if threshold <= 0 {
		threshold = DoomLoopThreshold
	}
	return &DoomLoopDetector{threshold: threshold}
}

// Record notes a tool call and reports whether the last threshold calls
// were identical.
func (d *DoomLoopDetector) Record(toolName string, args map[string]any) bool {
	d.history = append(d.history, callSignature{tool: toolName, args: hashArgs(args)})
	return d.Detected()
}

// Detected reports whether the detector is currently tripped.
func (d *DoomLoopDetector) Detected() bool {
	if len(d.history) < d.threshold {
		return false
	}
	recent := d.history[len(d.history)-d.threshold:]
	for _, sig := range recent[1:] {
		if sig != recent[0] {
			return false
		}
	}
	return true
}

// Reset clears the call history.
func (d *DoomLoopDetector) Reset() {
	d.history = nil
}

// hashArgs canonicalizes arguments to a short hash. json.Marshal sorts
// map keys, so equal argument sets hash equally.
func hashArgs(args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", args))
	}
	sum := md5.Sum(raw)
	return fmt.Sprintf("%x", sum)[:8]
}

// RetryConfig controls exponential backoff for provider retries.
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

// DefaultRetryConfig matches 3 attempts with 1s base and 30s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2,
	}
}

// Delay returns the backoff delay for a zero-based attempt number.
func (c RetryConfig) Delay(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.ExponentialBase)
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Retry runs fn with exponential backoff, returning the last error
// when all attempts fail.
func (c RetryConfig) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == c.MaxRetries-1 {
			break
		}
		select {
		case <-time.After(c.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Step statuses.
const (
	StepRunning   = "running"
	StepCompleted = "completed"
	StepError     = "error"
	StepDoomLoop  = "doom_loop"
)

// StepInfo records one loop step.
type StepInfo struct {
	Step       int        `json:"step"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ToolCalls  []string   `json:"tool_calls,omitempty"`
	Status     string     `json:"status"`
}

// Processor manages one session's agentic loop execution.
type Processor struct {
	mu        sync.Mutex
	sessionID string
	maxSteps  int
	detector  *DoomLoopDetector
	retry     RetryConfig
	steps     []*StepInfo
	current   *StepInfo
	aborted   bool
}

// New creates a processor for a session.
func New(sessionID string, maxSteps int) *Processor {
	if maxSteps <= 0 {
		maxSteps = 50
	}
	return &Processor{
		sessionID: sessionID,
		maxSteps:  maxSteps,
		detector:  NewDoomLoopDetector(DoomLoopThreshold),
		retry:     DefaultRetryConfig(),
	}
}

// StartStep opens a new step and returns its info.
func (p *Processor) StartStep() *StepInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	step := &StepInfo{
		Step:      len(p.steps) + 1,
		StartedAt: time.Now().UTC(),
		Status:    StepRunning,
	}
	p.steps = append(p.steps, step)
	p.current = step
	return step
}

// FinishStep closes the current step with the given status.
func (p *Processor) FinishStep(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return
	}
	now := time.Now().UTC()
	p.current.FinishedAt = &now
	p.current.Status = status
}

// RecordToolCall notes a tool call on the current step and reports
// whether it tripped the doom-loop detector.
func (p *Processor) RecordToolCall(toolName string, args map[string]any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.ToolCalls = append(p.current.ToolCalls, toolName)
	}
	return p.detector.Record(toolName, args)
}

// IsDoomLoop reports whether the detector is tripped.
func (p *Processor) IsDoomLoop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detector.Detected()
}

// ShouldContinue reports whether the loop may run another step.
func (p *Processor) ShouldContinue() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.aborted {
		return false
	}
	if len(p.steps) >= p.maxSteps {
		return false
	}
	return !p.detector.Detected()
}

// Abort stops the loop at the next step boundary.
func (p *Processor) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aborted = true
}

// Retry exposes the processor's retry config.
func (p *Processor) Retry() RetryConfig {
	return p.retry
}

// Steps returns a snapshot of recorded steps.
func (p *Processor) Steps() []StepInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StepInfo, len(p.steps))
	for i, s := range p.steps {
		out[i] = *s
	}
	return out
}

// Registry tracks live processors by session ID.
type Registry struct {
	mu         sync.Mutex
	processors map[string]*Processor
}

// NewProcessorRegistry creates an empty processor registry.
func NewProcessorRegistry() *Registry {
	return &Registry{processors: make(map[string]*Processor)}
}

// GetOrCreate returns the session's processor, creating one when
// absent. maxSteps only applies on creation.
func (r *Registry) GetOrCreate(sessionID string, maxSteps int) *Processor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.processors[sessionID]; ok {
		return p
	}
	p := New(sessionID, maxSteps)
	r.processors[sessionID] = p
	return p
}

// Get returns the session's processor or nil.
func (r *Registry) Get(sessionID string) *Processor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processors[sessionID]
}

// Remove drops the session's processor.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processors, sessionID)
}
