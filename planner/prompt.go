package planner

import (
	"strings"
	"time"
)

// TimeLayout renders the current time in the prompt.
const TimeLayout = "2006-01-02T15:04:05Z07:00 (Monday, MST)"

const promptIntro = `You are an expert task planner. Your goal is to create a JSON plan of tool calls that fulfills the user's request.

## CONTEXT
- Your most important context is the current time: `

const promptRules = `## RULES
1. Your top priority is to resolve relative dates and times ("this weekend", "tomorrow") into absolute ISO-8601 timestamps based on the current time above.
2. Interpret requests to "book" or "reserve" as a request to SCHEDULE an event on the calendar with create_event. This does not book tickets.
3. For multi-part requests ("find X and schedule it"), first use a search tool, then use create_event.
4. If an argument depends on a previous step's output, use the placeholder {{step_N_output}}, where N is the 1-based number of that step.
5. Respond ONLY with the JSON object.
6. If the user asks to schedule an outdoor or weather-dependent event, you MUST first call get_weather if it is available, and only create the calendar event after obtaining the weather. If get_weather is unavailable, use web_search with a weather query first.
7. Never create an event before gathering the context (such as the weather) needed to decide whether it is feasible.
8. Pass city names to get_weather in their standard English form (서울 becomes Seoul).
9. extract_best_title MUST NEVER be the first step or be used alone. Use it only immediately after a web_search or fetch_recommendations step, consuming that step's output through {{step_N_output}}.
   - Do not use it for factual, definitional, explanatory, translation or yes/no questions.
   - Do not use it when the user gives the event title explicitly ("schedule a team meeting tomorrow at 3").
   - Valid pattern: web_search -> extract_best_title -> create_event.

## EXAMPLE
USER: "Find a good action movie for this weekend and add it to my calendar for Saturday at 8pm."
ASSISTANT:
{
  "steps": [
    {"tool": "web_search", "args": {"query": "recommended new action movies"}},
    {"tool": "extract_best_title", "args": {"text_to_process": "{{step_1_output}}"}},
    {"tool": "create_event", "args": {"title": "{{step_2_output}}", "start": "<SATURDAY_20:00_ISO>", "end": "<SATURDAY_22:00_ISO>"}}
  ]
}

If nothing needs to be done, respond with {"steps": []}.`

// BuildPrompt returns the system prompt for a planning call at now with
// the given tool catalog.
func BuildPrompt(now time.Time, catalog string) string {
	catalog = strings.TrimSpace(catalog)
	if catalog == "" {
		catalog = "No tools available."
	}

	var sb strings.Builder
	sb.WriteString(promptIntro)
	sb.WriteString(now.Format(TimeLayout))
	sb.WriteString("\n\n## AVAILABLE TOOLS\n")
	sb.WriteString(catalog)
	sb.WriteString("\n\n")
	sb.WriteString(promptRules)
	return sb.String()
}
