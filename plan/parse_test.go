package plan

import (
	"errors"
	"testing"
)

func TestParseValidPlan(t *testing.T) {
	text := `{"steps":[
		{"tool":"web_search","args":{"query":"action movies","k":3}},
		{"tool":"extract_best_title","args":{"text_to_process":"{{step_1_output}}"}},
		{"tool":"create_event","args":{"title":"{{step_2_output}}","start":"2025-05-26T13:00:00","end":"2025-05-26T15:00:00"}}
	]}`

	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("expected 3 steps, got %d", p.Len())
	}
	if p.Steps[0].Tool != "web_search" || p.Steps[0].Args["k"] != float64(3) {
		t.Errorf("unexpected first step: %+v", p.Steps[0])
	}
	if p.Steps[2].Args["title"] != "{{step_2_output}}" {
		t.Errorf("placeholder should be kept verbatim, got %v", p.Steps[2].Args["title"])
	}
}

func TestParseStripsCodeFence(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"steps\":[{\"tool\":\"get_weather\",\"args\":{\"location\":\"Seoul\"}}]}\n```\n"
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Len() != 1 || p.Steps[0].Tool != "get_weather" {
		t.Errorf("unexpected plan: %+v", p)
	}
}

func TestParseLeadingProse(t *testing.T) {
	p, err := Parse(`Sure! {"steps":[{"tool":"web_search","args":{"query":"x"}}]} Let me know.`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Len() != 1 {
		t.Errorf("expected 1 step, got %d", p.Len())
	}
}

func TestParseEmptyAndMissingSteps(t *testing.T) {
	for _, text := range []string{`{"steps":[]}`, `{}`, `{"steps":null}`} {
		p, err := Parse(text)
		if err != nil {
			t.Errorf("Parse(%s) failed: %v", text, err)
			continue
		}
		if p.Len() != 0 {
			t.Errorf("Parse(%s): expected empty plan, got %d steps", text, p.Len())
		}
	}
}

func TestParseMissingArgs(t *testing.T) {
	p, err := Parse(`{"steps":[{"tool":"delete_event"}]}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Steps[0].Args == nil || len(p.Steps[0].Args) != 0 {
		t.Errorf("expected empty args map, got %#v", p.Steps[0].Args)
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		"",
		"I could not come up with a plan.",
		`{"steps": [`,
		`{"steps": "web_search"}`,
		`{"steps": ["web_search"]}`,
		`{"steps": [{"tool": 42}]}`,
		`{"steps": [{"tool": "x", "args": [1, 2]}]}`,
		`[{"tool": "web_search"}]`,
	}
	for _, in := range inputs {
		_, err := Parse(in)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("Parse(%q): expected ParseError, got %v", in, err)
		}
	}
}

func TestPlanString(t *testing.T) {
	p := Plan{Steps: []Step{{Tool: "get_weather", Args: map[string]interface{}{"location": "Seoul"}}}}
	want := `{"steps":[{"tool":"get_weather","args":{"location":"Seoul"}}]}`
	if got := p.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}

	back, err := Parse(p.String())
	if err != nil || back.Steps[0].Args["location"] != "Seoul" {
		t.Errorf("round trip failed: %+v, %v", back, err)
	}
}
