package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports planner output that cannot be read as a plan.
type ParseError struct {
	Reason string
	Cause  error
	Input  string
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("plan parse error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("plan parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

var codeFenceRE = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// Parse reads a plan document such as
//
//	{"steps":[{"tool":"web_search","args":{"query":"..."}}]}
//
// The document may be wrapped in a Markdown code fence or preceded by
// prose; the first JSON object in the text is used. A missing "steps" key
// yields an empty plan and a step without "args" gets an empty map.
func Parse(text string) (Plan, error) {
	trimmed := strings.TrimSpace(text)
	if m := codeFenceRE.FindStringSubmatch(trimmed); len(m) > 1 {
		trimmed = strings.TrimSpace(m[1])
	}
	if trimmed == "" {
		return Plan{}, &ParseError{Reason: "empty planner output", Input: text}
	}

	if trimmed[0] == '[' {
		return Plan{}, &ParseError{Reason: "top-level value is not an object", Input: text}
	}
	start := strings.IndexByte(trimmed, '{')
	if start < 0 {
		return Plan{}, &ParseError{Reason: "no JSON object found", Input: text}
	}

	var doc map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(trimmed[start:]))
	if err := dec.Decode(&doc); err != nil {
		return Plan{}, &ParseError{Reason: "invalid JSON", Cause: err, Input: text}
	}

	rawSteps, ok := doc["steps"]
	if !ok || isNull(rawSteps) {
		return Plan{Steps: []Step{}}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawSteps, &items); err != nil {
		return Plan{}, &ParseError{Reason: "'steps' is not an array", Cause: err, Input: text}
	}

	p := Plan{Steps: make([]Step, 0, len(items))}
	for i, item := range items {
		step, err := parseStep(item)
		if err != nil {
			return Plan{}, &ParseError{Reason: fmt.Sprintf("step %d", i+1), Cause: err, Input: text}
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

func parseStep(raw json.RawMessage) (Step, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Step{}, fmt.Errorf("not an object")
	}

	var step Step
	if tool, ok := fields["tool"]; ok && !isNull(tool) {
		if err := json.Unmarshal(tool, &step.Tool); err != nil {
			return Step{}, fmt.Errorf("'tool' is not a string")
		}
	}

	step.Args = map[string]interface{}{}
	if args, ok := fields["args"]; ok && !isNull(args) {
		if err := json.Unmarshal(args, &step.Args); err != nil {
			return Step{}, fmt.Errorf("'args' is not an object")
		}
	}
	return step, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// String renders the plan as its JSON document.
func (p Plan) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%+v", p.Steps)
	}
	return string(data)
}
