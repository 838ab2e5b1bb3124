// Package plan defines the plan document produced by the planner, the
// placeholder substitution applied between steps, and the rule-based
// validator that repairs known-bad plans before execution.
package plan

import (
	"fmt"
	"strconv"
)

// Step is one tool invocation in a plan.
type Step struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// Plan is an ordered list of steps.
type Plan struct {
	Steps []Step `json:"steps"`
}

// Len returns the number of steps.
func (p Plan) Len() int {
	return len(p.Steps)
}

// Tools returns the tool names in step order.
func (p Plan) Tools() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Tool
	}
	return names
}

// Clone returns a deep copy of the step list and the top-level argument
// maps. Argument values themselves are shared.
func (p Plan) Clone() Plan {
	out := Plan{Steps: make([]Step, len(p.Steps))}
	for i, s := range p.Steps {
		out.Steps[i] = Step{Tool: s.Tool, Args: cloneArgs(s.Args)}
	}
	return out
}

func cloneArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// OutputKey returns the key under which the output of the n-th step
// (1-based) is recorded, e.g. "step_2_output".
func OutputKey(n int) string {
	return "step_" + strconv.Itoa(n) + "_output"
}

// Lookuper resolves placeholder keys to values.
type Lookuper interface {
	Lookup(key string) (string, bool)
}

// StepOutputs holds the outputs produced so far by one plan execution.
// Entries are only ever appended, in step order, and never modified.
type StepOutputs struct {
	values []string
}

// NewStepOutputs returns an empty output store.
func NewStepOutputs() *StepOutputs {
	return &StepOutputs{}
}

// Record stores the output of step n (1-based). Steps must be recorded in
// order: n must equal Len()+1.
func (o *StepOutputs) Record(n int, value string) error {
	if n != len(o.values)+1 {
		return fmt.Errorf("step outputs: cannot record step %d after %d recorded steps", n, len(o.values))
	}
	o.values = append(o.values, value)
	return nil
}

// Lookup returns the output recorded under key.
func (o *StepOutputs) Lookup(key string) (string, bool) {
	n, ok := parseOutputKey(key)
	if !ok || n < 1 || n > len(o.values) {
		return "", false
	}
	return o.values[n-1], true
}

// Get returns the output of step n (1-based).
func (o *StepOutputs) Get(n int) (string, bool) {
	if n < 1 || n > len(o.values) {
		return "", false
	}
	return o.values[n-1], true
}

// Len returns the number of recorded outputs.
func (o *StepOutputs) Len() int {
	return len(o.values)
}

// Last returns the most recently recorded output.
func (o *StepOutputs) Last() (string, bool) {
	if len(o.values) == 0 {
		return "", false
	}
	return o.values[len(o.values)-1], true
}

// Map returns a copy of the outputs keyed by OutputKey.
func (o *StepOutputs) Map() map[string]string {
	out := make(map[string]string, len(o.values))
	for i, v := range o.values {
		out[OutputKey(i+1)] = v
	}
	return out
}

// parseOutputKey extracts n from "step_{n}_output". Only canonical decimal
// forms are accepted, so "step_01_output" does not alias step 1.
func parseOutputKey(key string) (int, bool) {
	const prefix, suffix = "step_", "_output"
	if len(key) <= len(prefix)+len(suffix) || key[:len(prefix)] != prefix || key[len(key)-len(suffix):] != suffix {
		return 0, false
	}
	digits := key[len(prefix) : len(key)-len(suffix)]
	n, err := strconv.Atoi(digits)
	if err != nil || strconv.Itoa(n) != digits {
		return 0, false
	}
	return n, true
}
