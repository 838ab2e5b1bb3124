// Package executor runs a plan step by step.
//
// A Run moves from Pending through Running (one step at a time) to Done.
// There is no failure state: a step that fails records an error text as
// its output and the run moves on to the next step. Later steps see
// earlier outputs through {{step_N_output}} placeholders.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scttfrdmn/toolplan/observability"
	"github.com/scttfrdmn/toolplan/plan"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// NoStepsMessage is the final answer of a run over an empty plan.
const NoStepsMessage = "I couldn't find anything to do for that request."

// Log widths for substituted values and step results.
const (
	DefaultSubstitutionLogWidth = 100
	DefaultResultLogWidth       = 200
)

// ToolLookup resolves tool names. *tools.Registry implements it.
type ToolLookup interface {
	Get(name string) (toolplan.Tool, bool)
}

// ToolNotFoundError records a step whose tool is not registered.
type ToolNotFoundError struct {
	Tool string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("Error: Tool '%s' not found.", e.Tool)
}

// ToolInvocationError records a step whose tool failed to run: it returned
// an error, panicked, timed out or was cancelled.
type ToolInvocationError struct {
	Tool  string
	Cause error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("Error executing tool '%s': %v", e.Tool, e.Cause)
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Cause
}

// Executor runs plans against a set of tools. It holds no per-run state
// and can be shared.
type Executor struct {
	tools       ToolLookup
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *observability.ToolMetrics
	stepTimeout time.Duration
	subWidth    int
	resultWidth int
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithTracer sets the tracer used for step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithMetrics sets the step metrics.
func WithMetrics(m *observability.ToolMetrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithStepTimeout bounds each tool invocation.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) { e.stepTimeout = d }
}

// WithLogWidths sets how many characters of substituted values and results
// are logged.
func WithLogWidths(substitution, result int) Option {
	return func(e *Executor) {
		e.subWidth = substitution
		e.resultWidth = result
	}
}

// New creates an executor over tools.
func New(tools ToolLookup, opts ...Option) *Executor {
	e := &Executor{
		tools:       tools,
		logger:      slog.Default(),
		tracer:      observability.GetTracer("toolplan.executor"),
		subWidth:    DefaultSubstitutionLogWidth,
		resultWidth: DefaultResultLogWidth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start returns a Pending run over p. The plan is copied.
func (e *Executor) Start(p plan.Plan) *Run {
	return &Run{
		exec:    e,
		plan:    p.Clone(),
		state:   Pending,
		Outputs: plan.NewStepOutputs(),
	}
}

// Execute runs every step of p and returns the finished run.
func (e *Executor) Execute(ctx context.Context, p plan.Plan) *Run {
	run := e.Start(p)
	for run.Step(ctx) {
	}
	return run
}

func (e *Executor) runStep(ctx context.Context, index int, step plan.Step, outputs *plan.StepOutputs) StepRecord {
	n := index + 1
	rec := StepRecord{
		Index: n,
		Tool:  step.Tool,
		Args:  step.Args,
	}

	ctx, span := e.tracer.Start(ctx, "executor.step",
		trace.WithAttributes(
			attribute.Int("step.index", n),
			attribute.String("tool.name", step.Tool),
		),
	)

	e.logger.InfoContext(ctx, "executing step", "step", n, "tool", step.Tool)

	rec.ResolvedArgs = plan.SubstituteArgs(step.Args, outputs)
	e.logSubstitutions(ctx, n, step.Args, outputs)
	span.SetAttributes(observability.SpanAttributes("tool.arg.", rec.ResolvedArgs)...)

	start := time.Now()
	outcome := "success"

	tool, ok := e.tools.Get(step.Tool)
	if !ok {
		rec.Err = &ToolNotFoundError{Tool: step.Tool}
		rec.Output = rec.Err.Error()
		outcome = "not_found"
	} else {
		res, err := e.invoke(ctx, tool, rec.ResolvedArgs)
		switch {
		case err != nil:
			rec.Err = &ToolInvocationError{Tool: step.Tool, Cause: err}
			rec.Output = rec.Err.Error()
			outcome = "error"
		case !res.Success:
			rec.Output = res.Error
			rec.Failed = true
			outcome = "error"
		default:
			rec.Output = res.Output
		}
	}
	rec.Duration = time.Since(start)

	if rec.Err != nil {
		e.logger.WarnContext(ctx, "step failed",
			"step", n,
			"tool", step.Tool,
			"error", observability.Truncate(rec.Output, e.resultWidth),
		)
	} else {
		e.logger.InfoContext(ctx, "step finished",
			"step", n,
			"tool", step.Tool,
			"duration", rec.Duration,
			"result", observability.Truncate(rec.Output, e.resultWidth),
		)
	}

	e.metrics.Record(ctx, step.Tool, outcome, rec.Duration)
	span.SetAttributes(attribute.String("step.outcome", outcome))
	observability.EndSpan(span, rec.Err)
	return rec
}

// invoke runs the tool, converting panics, nil results and context errors
// into errors.
func (e *Executor) invoke(ctx context.Context, tool toolplan.Tool, args map[string]interface{}) (res *toolplan.ToolResult, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "tool panicked", "tool", tool.Name(), "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	res, err = tool.Execute(ctx, args)
	if err == nil && res == nil {
		err = fmt.Errorf("tool returned no result")
	}
	return res, err
}

func (e *Executor) logSubstitutions(ctx context.Context, n int, args map[string]interface{}, outputs *plan.StepOutputs) {
	if !e.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	for key, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, ph := range plan.Placeholders(s) {
			if value, ok := outputs.Lookup(ph); ok {
				e.logger.DebugContext(ctx, "substituting placeholder",
					"step", n,
					"arg", key,
					"placeholder", ph,
					"value", observability.Truncate(value, e.subWidth),
				)
			}
		}
	}
}
