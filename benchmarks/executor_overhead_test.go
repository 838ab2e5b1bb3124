package benchmarks

import (
	"context"
	"testing"

	"github.com/scttfrdmn/toolplan/executor"
	"github.com/scttfrdmn/toolplan/plan"
	"github.com/scttfrdmn/toolplan/toolplan"
	"github.com/scttfrdmn/toolplan/tools"
)

// ============================================
// Plan execution
// ============================================

// BenchmarkPlaceholderChain runs a three-step plan where each step consumes
// the previous output, the shape of a search → title → recommendation plan.
func BenchmarkPlaceholderChain(b *testing.B) {
	reg := tools.NewRegistry()
	for _, name := range []string{"web_search", "extract_best_title", "fetch_recommendations"} {
		name := name
		if err := reg.Register(toolplan.NewFuncTool(toolplan.ToolSpec{Name: name},
			func(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
				return toolplan.NewToolResult(name + " output"), nil
			})); err != nil {
			b.Fatal(err)
		}
	}

	p := plan.Plan{Steps: []plan.Step{
		{Tool: "web_search", Args: map[string]interface{}{"query": "new sci-fi movies"}},
		{Tool: "extract_best_title", Args: map[string]interface{}{"text_to_process": "{{step_1_output}}"}},
		{Tool: "fetch_recommendations", Args: map[string]interface{}{"types": "movie", "seed": "{{step_2_output}}"}},
	}}
	exec := executor.New(reg)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		run := exec.Execute(ctx, p)
		if run.State() != executor.Done {
			b.Fatal("run did not finish")
		}
	}
}

func BenchmarkParsePlan(b *testing.B) {
	reply := "```json\n{\"steps\": [{\"tool\": \"get_weather\", \"args\": {\"location\": \"Seoul\"}}, " +
		"{\"tool\": \"create_event\", \"args\": {\"title\": \"Picnic\", \"start\": \"2025-05-31T12:00:00+09:00\"}}]}\n```"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := plan.Parse(reply); err != nil {
			b.Fatal(err)
		}
	}
}
