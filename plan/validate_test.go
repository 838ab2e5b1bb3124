package plan

import (
	"reflect"
	"testing"
)

func createEventStep() Step {
	return Step{Tool: "create_event", Args: map[string]interface{}{
		"title": "Picnic",
		"start": "2025-05-31T12:00:00",
		"end":   "2025-05-31T15:00:00",
	}}
}

func TestRepairPrependsWeatherStep(t *testing.T) {
	v := DefaultValidator()
	p := Plan{Steps: []Step{createEventStep()}}

	repaired, changed := v.Repair(p, "이번 주말 날씨 좋으면 피크닉 일정 잡아줘")
	if !changed {
		t.Fatal("expected plan to be repaired")
	}
	if got := repaired.Tools(); !reflect.DeepEqual(got, []string{"get_weather", "create_event"}) {
		t.Fatalf("unexpected tools: %v", got)
	}
	if repaired.Steps[0].Args["location"] != "Seoul" {
		t.Errorf("expected default location, got %v", repaired.Steps[0].Args["location"])
	}
	if !reflect.DeepEqual(repaired.Steps[1], createEventStep()) {
		t.Errorf("event step changed: %+v", repaired.Steps[1])
	}
	if len(p.Steps) != 1 {
		t.Error("input plan was modified")
	}

	again, changedAgain := v.Repair(repaired, "이번 주말 날씨 좋으면 피크닉 일정 잡아줘")
	if changedAgain || !reflect.DeepEqual(again, repaired) {
		t.Errorf("repair is not idempotent: %+v", again)
	}
}

func TestRepairResolvesLocation(t *testing.T) {
	v := DefaultValidator()
	p := Plan{Steps: []Step{createEventStep()}}

	repaired, _ := v.Repair(p, "부산에서 비 안 오면 야외 바베큐 잡아줘")
	if repaired.Steps[0].Args["location"] != "Busan" {
		t.Errorf("expected Busan, got %v", repaired.Steps[0].Args["location"])
	}

	repaired, _ = v.Repair(p, "Schedule a picnic in Seoul if the weather is nice")
	if repaired.Steps[0].Args["location"] != "Seoul" {
		t.Errorf("expected Seoul, got %v", repaired.Steps[0].Args["location"])
	}
}

func TestRepairRenumbersPlaceholders(t *testing.T) {
	v := DefaultValidator()
	p := Plan{Steps: []Step{
		createEventStep(),
		{Tool: "web_search", Args: map[string]interface{}{"query": "{{step_1_output}}", "k": float64(3)}},
	}}

	repaired, changed := v.Repair(p, "outdoor concert booking")
	if !changed {
		t.Fatal("expected repair")
	}
	if got := repaired.Steps[2].Args["query"]; got != "{{step_2_output}}" {
		t.Errorf("expected placeholder to follow the shifted step, got %v", got)
	}
	if repaired.Steps[2].Args["k"] != float64(3) {
		t.Errorf("non-string arg changed: %v", repaired.Steps[2].Args["k"])
	}
	if p.Steps[1].Args["query"] != "{{step_1_output}}" {
		t.Error("input plan was modified")
	}
}

func TestRepairLeavesOtherPlansAlone(t *testing.T) {
	v := DefaultValidator()

	tests := []struct {
		name string
		plan Plan
		text string
	}{
		{"no weather keyword", Plan{Steps: []Step{createEventStep()}}, "내일 3시에 회의 잡아줘"},
		{"empty plan", Plan{}, "날씨 어때?"},
		{"weather first", Plan{Steps: []Step{
			{Tool: "get_weather", Args: map[string]interface{}{"location": "Seoul"}},
			createEventStep(),
		}}, "날씨 보고 일정 잡아줘"},
		{"search first", Plan{Steps: []Step{
			{Tool: "web_search", Args: map[string]interface{}{"query": "weather"}},
			createEventStep(),
		}}, "weather permitting, book it"},
		{"training is not rain", Plan{Steps: []Step{createEventStep()}}, "Schedule team training tomorrow at 3pm"},
		{"train is not rain", Plan{Steps: []Step{createEventStep()}}, "Book a train to Busan on Friday"},
		{"brainstorming is not rain", Plan{Steps: []Step{createEventStep()}}, "Add a brainstorming session Monday 10am"},
		{"first step is not an event", Plan{Steps: []Step{
			{Tool: "fetch_recommendations", Args: map[string]interface{}{"types": "movie"}},
		}}, "비 오는 날 볼 영화 추천해줘"},
	}

	for _, tt := range tests {
		got, changed := v.Repair(tt.plan, tt.text)
		if changed {
			t.Errorf("%s: expected no change, got %v", tt.name, got.Tools())
		}
		if !reflect.DeepEqual(got, tt.plan) {
			t.Errorf("%s: plan changed", tt.name)
		}
	}
}

func TestRepairMatchesWholeEnglishWords(t *testing.T) {
	v := DefaultValidator()
	p := Plan{Steps: []Step{createEventStep()}}

	for _, text := range []string{
		"Book a BBQ unless it's Rainy on Saturday",
		"outdoor lunch in Busan, rain or shine",
		"Check the weather, then schedule a hike",
	} {
		if _, changed := v.Repair(p, text); !changed {
			t.Errorf("expected repair for %q", text)
		}
	}
}

func TestPlaceTableMatchesWholeRomanizedNames(t *testing.T) {
	table := DefaultPlaces()
	if got, ok := table.Resolve("picnic in busan, weather permitting"); !ok || got != "Busan" {
		t.Errorf("expected Busan, got %q", got)
	}
	if _, ok := table.Resolve("meet at the Suwonchon gallery"); ok {
		t.Error("expected no match inside a longer word")
	}
	if got, _ := table.Resolve("부산에서 만나자"); got != "Busan" {
		t.Errorf("expected Korean alias with particle to match, got %q", got)
	}
}

func TestPlaceTablePrefersLongestAlias(t *testing.T) {
	table := PlaceTable{"제주": "Jeju", "제주시": "Jeju City"}
	if got, _ := table.Resolve("제주시 날씨"); got != "Jeju City" {
		t.Errorf("expected longest match, got %q", got)
	}
	if _, ok := table.Resolve("nowhere"); ok {
		t.Error("expected no match")
	}
}
