package processor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoomLoopDetector(t *testing.T) {
	t.Run("identical calls trip at threshold", func(t *testing.T) {
		d := NewDoomLoopDetector(3)
		args := map[string]any{"query": "weather"}
		if d.Record("websearch", args) {
			t.Fatal("tripped after 1 call")
		}
		if d.Record("websearch", args) {
			t.Fatal("tripped after 2 calls")
		}
		if !d.Record("websearch", args) {
			t.Fatal("not tripped after 3 identical calls")
		}
	})

	t.Run("different arguments break the run", func(t *testing.T) {
		d := NewDoomLoopDetector(3)
		d.Record("websearch", map[string]any{"query": "a"})
		d.Record("websearch", map[string]any{"query": "b"})
		if d.Record("websearch", map[string]any{"query": "a"}) {
			t.Fatal("A/B/A tripped the detector")
		}
	})

	t.Run("different tools break the run", func(t *testing.T) {
		d := NewDoomLoopDetector(3)
		d.Record("websearch", nil)
		d.Record("webfetch", nil)
		if d.Record("websearch", nil) {
			t.Fatal("alternating tools tripped the detector")
		}
	})

	t.Run("key order does not matter", func(t *testing.T) {
		d := NewDoomLoopDetector(2)
		d.Record("t", map[string]any{"a": 1.0, "b": 2.0})
		if !d.Record("t", map[string]any{"b": 2.0, "a": 1.0}) {
			t.Fatal("equal args with different key order not detected as identical")
		}
	})

	t.Run("reset clears history", func(t *testing.T) {
		d := NewDoomLoopDetector(2)
		d.Record("t", nil)
		d.Reset()
		if d.Record("t", nil) {
			t.Fatal("tripped after reset")
		}
	})
}

func TestRetryConfigDelay(t *testing.T) {
	c := DefaultRetryConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := c.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRetry(t *testing.T) {
	c := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}

	calls := 0
	err := c.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("Retry = %v after %d calls", err, calls)
	}

	calls = 0
	wantErr := errors.New("permanent")
	err = c.Retry(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) || calls != 3 {
		t.Fatalf("Retry = %v after %d calls, want permanent after 3", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Retry(ctx, func() error { return errors.New("x") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled Retry = %v", err)
	}
}

func TestProcessorSteps(t *testing.T) {
	p := New("ses_1", 2)

	if !p.ShouldContinue() {
		t.Fatal("fresh processor should continue")
	}

	step := p.StartStep()
	if step.Step != 1 || step.Status != StepRunning {
		t.Fatalf("step = %+v", step)
	}
	if p.RecordToolCall("websearch", nil) {
		t.Fatal("single call tripped doom loop")
	}
	p.FinishStep(StepCompleted)

	steps := p.Steps()
	if len(steps) != 1 || steps[0].Status != StepCompleted || steps[0].FinishedAt == nil {
		t.Fatalf("steps = %+v", steps)
	}
	if steps[0].ToolCalls[0] != "websearch" {
		t.Errorf("tool calls = %v", steps[0].ToolCalls)
	}

	p.StartStep()
	p.FinishStep(StepCompleted)
	if p.ShouldContinue() {
		t.Error("continues past max steps")
	}
}

func TestProcessorDoomLoopStops(t *testing.T) {
	p := New("ses_1", 50)
	p.StartStep()
	for i := 0; i < 3; i++ {
		p.RecordToolCall("todo", map[string]any{"action": "read"})
	}
	if !p.IsDoomLoop() {
		t.Fatal("doom loop not detected")
	}
	if p.ShouldContinue() {
		t.Error("continues despite doom loop")
	}
}

func TestProcessorAbort(t *testing.T) {
	p := New("ses_1", 50)
	p.Abort()
	if p.ShouldContinue() {
		t.Error("continues after abort")
	}
}

func TestRegistry(t *testing.T) {
	r := NewProcessorRegistry()

	p1 := r.GetOrCreate("ses_1", 10)
	p2 := r.GetOrCreate("ses_1", 99)
	if p1 != p2 {
		t.Fatal("GetOrCreate created a second processor")
	}
	if r.Get("ses_2") != nil {
		t.Fatal("Get returned processor for unknown session")
	}

	r.Remove("ses_1")
	if r.Get("ses_1") != nil {
		t.Fatal("processor survived Remove")
	}
	if p3 := r.GetOrCreate("ses_1", 10); p3 == p1 {
		t.Fatal("Remove did not drop the old processor")
	}
}
