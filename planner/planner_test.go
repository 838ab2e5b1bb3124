package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/scttfrdmn/toolplan/adapter/llm"
	"github.com/scttfrdmn/toolplan/plan"
	"github.com/scttfrdmn/toolplan/toolplan"
)

type staticCatalog string

func (c staticCatalog) Describe() string { return string(c) }

var kst = time.FixedZone("KST", 9*60*60)

func fixedClock() time.Time {
	return time.Date(2025, 5, 30, 9, 30, 0, 0, time.UTC)
}

// ============================================
// Prompt
// ============================================

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(fixedClock().In(kst), "- get_weather(location: string): Weather.\n")

	for _, want := range []string{
		"2025-05-30T18:30:00+09:00 (Friday, KST)",
		"## AVAILABLE TOOLS\n- get_weather(location: string): Weather.",
		"{{step_N_output}}",
		`"text_to_process": "{{step_1_output}}"`,
		"extract_best_title MUST NEVER be the first step",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptNoTools(t *testing.T) {
	if !strings.Contains(BuildPrompt(fixedClock(), "  "), "No tools available.") {
		t.Error("expected placeholder catalog text")
	}
}

// ============================================
// Plan
// ============================================

func TestPlan(t *testing.T) {
	model := &llm.Static{Reply: "```json\n{\"steps\": [{\"tool\": \"get_weather\", \"args\": {\"location\": \"Seoul\"}}]}\n```"}
	p := New(model, staticCatalog("- get_weather(location: string): Weather."),
		WithClock(fixedClock), WithLocation(kst))

	history := []toolplan.Message{
		*toolplan.NewMessage(toolplan.RoleUser, "hi"),
		*toolplan.NewMessage(toolplan.RoleAssistant, "hello"),
	}
	result, err := p.Plan(context.Background(), "What's the weather in Seoul?", history)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Len() != 1 || result.Steps[0].Tool != "get_weather" {
		t.Fatalf("unexpected plan %v", result)
	}

	sent := model.Calls[0]
	if len(sent) != 4 {
		t.Fatalf("expected system + 2 history + user messages, got %d", len(sent))
	}
	if sent[0].Role != toolplan.RoleSystem || !strings.Contains(sent[0].Content, "Friday, KST") {
		t.Errorf("unexpected system message %q", sent[0].Content)
	}
	if sent[2].Content != "hello" || sent[3].Content != "What's the weather in Seoul?" {
		t.Errorf("unexpected message order: %q, %q", sent[2].Content, sent[3].Content)
	}
}

func TestPlanEmpty(t *testing.T) {
	p := New(&llm.Static{Reply: `{"steps": []}`}, staticCatalog(""), WithClock(fixedClock))
	result, err := p.Plan(context.Background(), "thanks!", nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Len() != 0 {
		t.Errorf("expected empty plan, got %v", result)
	}
}

func TestPlanParseError(t *testing.T) {
	p := New(&llm.Static{Reply: "I cannot help with that."}, staticCatalog(""), WithClock(fixedClock))
	_, err := p.Plan(context.Background(), "do something", nil)

	var perr *plan.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *plan.ParseError, got %v", err)
	}
}

func TestPlanCompletionError(t *testing.T) {
	cause := errors.New("rate limited")
	p := New(&llm.Static{Err: cause}, staticCatalog(""), WithClock(fixedClock))
	_, err := p.Plan(context.Background(), "do something", nil)

	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped completion error, got %v", err)
	}
	var perr *plan.ParseError
	if errors.As(err, &perr) {
		t.Error("completion failure should not be a parse error")
	}
}
