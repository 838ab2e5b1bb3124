package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/scttfrdmn/toolplan/executor"
	"github.com/scttfrdmn/toolplan/memory"
	"github.com/scttfrdmn/toolplan/plan"
	"github.com/scttfrdmn/toolplan/toolplan"
	"github.com/scttfrdmn/toolplan/tools"
)

type fakePlanner struct {
	plan    plan.Plan
	err     error
	history [][]toolplan.Message
}

func (f *fakePlanner) Plan(_ context.Context, _ string, history []toolplan.Message) (plan.Plan, error) {
	f.history = append(f.history, history)
	return f.plan, f.err
}

// callLog records tool invocations in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) tool(name string, reply func(params map[string]interface{}) string) toolplan.Tool {
	return toolplan.NewFuncTool(toolplan.ToolSpec{Name: name}, func(_ context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
		c.mu.Lock()
		c.calls = append(c.calls, name)
		c.mu.Unlock()
		return toolplan.NewToolResult(reply(params)), nil
	})
}

func newTestAssistant(t *testing.T, p Planner, log memory.Log) (*Assistant, *callLog) {
	t.Helper()
	calls := &callLog{}
	reg, err := tools.Build(context.Background(), []toolplan.Tool{
		calls.tool("get_weather", func(params map[string]interface{}) string {
			return fmt.Sprintf(`{"location":%q,"temp":21}`, params["location"])
		}),
		calls.tool("create_event", func(params map[string]interface{}) string {
			return fmt.Sprintf("Event created: %v", params["title"])
		}),
	}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var opts []Option
	if log != nil {
		opts = append(opts, WithHistory(log))
	}
	return New(p, executor.New(reg), opts...), calls
}

// ============================================
// Pipeline
// ============================================

func TestHandleRunsPlan(t *testing.T) {
	p := &fakePlanner{plan: plan.Plan{Steps: []plan.Step{
		{Tool: "create_event", Args: map[string]interface{}{"title": "Dinner"}},
	}}}
	a, calls := newTestAssistant(t, p, nil)

	answer, err := a.Handle(context.Background(), "s1", "Schedule dinner tomorrow at 7")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if answer.Text != "Event created: Dinner" {
		t.Errorf("unexpected answer %q", answer.Text)
	}
	if answer.Repaired {
		t.Error("plan should not be repaired")
	}
	if answer.Run == nil || answer.Run.State() != executor.Done {
		t.Error("expected a finished run")
	}
	if len(calls.calls) != 1 {
		t.Errorf("expected one tool call, got %v", calls.calls)
	}
}

func TestHandleRepairsWeatherDependentPlan(t *testing.T) {
	p := &fakePlanner{plan: plan.Plan{Steps: []plan.Step{
		{Tool: "create_event", Args: map[string]interface{}{"title": "Picnic"}},
	}}}
	a, calls := newTestAssistant(t, p, nil)

	answer, err := a.Handle(context.Background(), "s1", "내일 서울에서 야외 피크닉 일정 잡아줘")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !answer.Repaired {
		t.Fatal("expected the plan to be repaired")
	}
	if len(calls.calls) != 2 || calls.calls[0] != "get_weather" || calls.calls[1] != "create_event" {
		t.Errorf("expected weather before event, got %v", calls.calls)
	}
	if got := answer.Run.Steps[0].ResolvedArgs["location"]; got != "Seoul" {
		t.Errorf("expected location Seoul, got %v", got)
	}
	// The planner's plan is left untouched.
	if p.plan.Len() != 1 {
		t.Errorf("planner plan was modified: %v", p.plan)
	}
}

func TestHandleEmptyPlan(t *testing.T) {
	a, calls := newTestAssistant(t, &fakePlanner{}, nil)
	answer, err := a.Handle(context.Background(), "s1", "thanks")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if answer.Text != executor.NoStepsMessage {
		t.Errorf("expected no-steps message, got %q", answer.Text)
	}
	if len(calls.calls) != 0 {
		t.Errorf("expected no tool calls, got %v", calls.calls)
	}
}

func TestHandlePlanFailure(t *testing.T) {
	perr := &plan.ParseError{Reason: "no JSON object found"}
	a, calls := newTestAssistant(t, &fakePlanner{err: perr}, nil)

	answer, err := a.Handle(context.Background(), "s1", "???")
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if answer.Text != PlanFailureMessage {
		t.Errorf("expected failure message, got %q", answer.Text)
	}
	if answer.Run != nil {
		t.Error("expected no run")
	}
	if !errors.Is(answer.PlanErr, perr) {
		t.Errorf("expected plan error recorded, got %v", answer.PlanErr)
	}
	if len(calls.calls) != 0 {
		t.Errorf("expected no tool calls, got %v", calls.calls)
	}
}

func TestHandleCancelledContext(t *testing.T) {
	a, _ := newTestAssistant(t, &fakePlanner{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Handle(ctx, "s1", "hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ============================================
// History
// ============================================

func TestHandleRecordsHistory(t *testing.T) {
	log := memory.NewInMemoryLog(memory.DefaultMaxMessages)
	p := &fakePlanner{plan: plan.Plan{Steps: []plan.Step{
		{Tool: "create_event", Args: map[string]interface{}{"title": "Gym"}},
	}}}
	a, _ := newTestAssistant(t, p, log)

	ctx := context.Background()
	if _, err := a.Handle(ctx, "s1", "first"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if _, err := a.Handle(ctx, "s1", "second"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(p.history[0]) != 0 {
		t.Errorf("expected no history on the first request, got %d messages", len(p.history[0]))
	}
	second := p.history[1]
	if len(second) != 2 || second[0].Content != "first" || second[1].Content != "Event created: Gym" {
		t.Errorf("unexpected history for second request: %+v", second)
	}

	msgs, _ := log.Recent(ctx, "s1", 0)
	if len(msgs) != 4 {
		t.Errorf("expected 4 logged messages, got %d", len(msgs))
	}

	other, _ := log.Recent(ctx, "s2", 0)
	if len(other) != 0 {
		t.Errorf("expected sessions to be isolated, got %d messages", len(other))
	}
}
