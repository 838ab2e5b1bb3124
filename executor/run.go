package executor

import (
	"context"
	"time"

	"github.com/scttfrdmn/toolplan/plan"
)

// State is the lifecycle state of a Run.
type State int

const (
	Pending State = iota
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// StepRecord is what happened to one step.
type StepRecord struct {
	// Index is 1-based, matching step_{Index}_output.
	Index        int
	Tool         string
	Args         map[string]interface{}
	ResolvedArgs map[string]interface{}
	Output       string
	// Err is a *ToolNotFoundError or *ToolInvocationError.
	Err error
	// Failed is set when the tool ran but returned an error result.
	Failed   bool
	Duration time.Duration
}

// OK reports whether the step produced a successful result.
func (r StepRecord) OK() bool {
	return r.Err == nil && !r.Failed
}

// Run is one execution of a plan. It is not safe for concurrent use.
type Run struct {
	exec  *Executor
	plan  plan.Plan
	state State
	next  int

	Steps   []StepRecord
	Outputs *plan.StepOutputs
}

// Plan returns the plan being executed.
func (r *Run) Plan() plan.Plan {
	return r.plan
}

// State returns the current state.
func (r *Run) State() State {
	return r.state
}

// Next returns the 0-based index of the next step to run.
func (r *Run) Next() int {
	return r.next
}

// Step runs the next step and reports whether any steps remain. On an
// empty or finished run it does nothing and returns false.
func (r *Run) Step(ctx context.Context) bool {
	if r.state == Done {
		return false
	}
	if r.next >= len(r.plan.Steps) {
		r.state = Done
		return false
	}

	r.state = Running
	rec := r.exec.runStep(ctx, r.next, r.plan.Steps[r.next], r.Outputs)
	// Record cannot fail: steps are recorded strictly in order.
	_ = r.Outputs.Record(rec.Index, rec.Output)
	r.Steps = append(r.Steps, rec)
	r.next++

	if r.next >= len(r.plan.Steps) {
		r.state = Done
	}
	return r.state != Done
}

// Final returns the output of the last executed step, or NoStepsMessage
// for an empty plan.
func (r *Run) Final() string {
	if len(r.plan.Steps) == 0 {
		return NoStepsMessage
	}
	if out, ok := r.Outputs.Last(); ok {
		return out
	}
	return ""
}
