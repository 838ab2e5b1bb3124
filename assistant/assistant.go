// Package assistant wires the request pipeline: recent history is loaded,
// the planner proposes a plan, the validator repairs it, the executor runs
// it and the final step output becomes the answer.
package assistant

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scttfrdmn/toolplan/executor"
	"github.com/scttfrdmn/toolplan/memory"
	"github.com/scttfrdmn/toolplan/observability"
	"github.com/scttfrdmn/toolplan/plan"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// PlanFailureMessage is the answer when no plan could be produced.
const PlanFailureMessage = "Sorry, I couldn't work out a plan for that request. Please try rephrasing it."

// Planner produces a plan for a request. *planner.Planner implements it.
type Planner interface {
	Plan(ctx context.Context, userText string, history []toolplan.Message) (plan.Plan, error)
}

// Answer is the outcome of one request.
type Answer struct {
	Text string
	// Plan is the plan that was executed, after repair.
	Plan plan.Plan
	// Repaired reports whether the validator changed the planner's plan.
	Repaired bool
	// Run is nil when planning failed.
	Run *executor.Run
	// PlanErr is the planning failure, if any.
	PlanErr error
}

// Assistant handles user requests. It is safe for concurrent use.
type Assistant struct {
	planner   Planner
	validator *plan.Validator
	executor  *executor.Executor
	history   memory.Log
	window    memory.Window
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithValidator replaces the default plan validator. Nil disables repair.
func WithValidator(v *plan.Validator) Option {
	return func(a *Assistant) { a.validator = v }
}

// WithHistory sets the conversation log. Without one no history is kept.
func WithHistory(log memory.Log) Option {
	return func(a *Assistant) { a.history = log }
}

// WithWindow sets how much history reaches the planner.
func WithWindow(w memory.Window) Option {
	return func(a *Assistant) { a.window = w }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) { a.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Assistant) { a.tracer = tracer }
}

// New creates an assistant.
func New(p Planner, exec *executor.Executor, opts ...Option) *Assistant {
	a := &Assistant{
		planner:   p,
		validator: plan.DefaultValidator(),
		executor:  exec,
		window:    memory.DefaultWindow(),
		logger:    slog.Default(),
		tracer:    observability.GetTracer("toolplan.assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle answers one request. Planning failures are reported in the
// answer, not as an error; the returned error is reserved for a cancelled
// context before any work was done.
func (a *Assistant) Handle(ctx context.Context, sessionID, text string) (*Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "assistant.handle",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	history := a.loadHistory(ctx, sessionID)
	a.record(ctx, sessionID, toolplan.RoleUser, text)

	answer := &Answer{}
	proposed, err := a.planner.Plan(ctx, text, history)
	if err != nil {
		a.logger.WarnContext(ctx, "planning failed", "session", sessionID, "error", err)
		span.SetAttributes(attribute.Bool("plan.failed", true))
		answer.Text = PlanFailureMessage
		answer.PlanErr = err
		a.record(ctx, sessionID, toolplan.RoleAssistant, answer.Text)
		return answer, nil
	}

	answer.Plan = proposed
	if a.validator != nil {
		answer.Plan, answer.Repaired = a.validator.Repair(proposed, text)
		if answer.Repaired {
			a.logger.InfoContext(ctx, "plan repaired", "session", sessionID, "tools", answer.Plan.Tools())
		}
	}
	span.SetAttributes(
		attribute.Int("plan.steps", answer.Plan.Len()),
		attribute.Bool("plan.repaired", answer.Repaired),
	)

	answer.Run = a.executor.Execute(ctx, answer.Plan)
	answer.Text = answer.Run.Final()

	a.record(ctx, sessionID, toolplan.RoleAssistant, answer.Text)
	return answer, nil
}

func (a *Assistant) loadHistory(ctx context.Context, sessionID string) []toolplan.Message {
	if a.history == nil {
		return nil
	}
	msgs, err := a.window.Select(ctx, a.history, sessionID)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to load history", "session", sessionID, "error", err)
		return nil
	}
	return msgs
}

// record appends to the conversation log. Failures are logged only.
func (a *Assistant) record(ctx context.Context, sessionID, role, content string) {
	if a.history == nil {
		return
	}
	if err := a.history.Append(ctx, sessionID, toolplan.NewMessage(role, content)); err != nil {
		a.logger.WarnContext(ctx, "failed to append to history", "session", sessionID, "role", role, "error", err)
	}
}
