// Package planner turns a user request into a plan by asking a completion
// model to fill in a fixed planning prompt.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scttfrdmn/toolplan/adapter/llm"
	"github.com/scttfrdmn/toolplan/observability"
	"github.com/scttfrdmn/toolplan/plan"
	"github.com/scttfrdmn/toolplan/toolplan"
)

// Catalog describes the available tools. *tools.Registry implements it.
type Catalog interface {
	Describe() string
}

// Planner produces plans. It is safe for concurrent use when its LLM is.
type Planner struct {
	model    llm.LLM
	catalog  Catalog
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
	callOpts []llm.CallOption
}

// Option configures a Planner.
type Option func(*Planner)

// WithLocation sets the zone the current time is shown in.
func WithLocation(loc *time.Location) Option {
	return func(p *Planner) { p.location = loc }
}

// WithClock sets the clock.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Planner) { p.tracer = tracer }
}

// WithCallOptions replaces the completion options. The default is
// temperature 0 in JSON mode.
func WithCallOptions(opts ...llm.CallOption) Option {
	return func(p *Planner) { p.callOpts = opts }
}

// New creates a planner.
func New(model llm.LLM, catalog Catalog, opts ...Option) *Planner {
	p := &Planner{
		model:    model,
		catalog:  catalog,
		location: time.Local,
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   observability.GetTracer("toolplan.planner"),
		callOpts: []llm.CallOption{llm.WithTemperature(0), llm.WithJSONMode()},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prompt returns the system prompt as it would be sent now.
func (p *Planner) Prompt() string {
	return BuildPrompt(p.now().In(p.location), p.catalog.Describe())
}

// Plan asks the model for a plan for userText. history is earlier
// conversation, oldest first. Unparsable output yields a *plan.ParseError;
// a failed completion is returned wrapped.
func (p *Planner) Plan(ctx context.Context, userText string, history []toolplan.Message) (plan.Plan, error) {
	ctx, span := p.tracer.Start(ctx, "planner.plan",
		trace.WithAttributes(
			attribute.String("llm.model", p.model.Model()),
			attribute.Int("history.messages", len(history)),
		),
	)

	messages := make([]*toolplan.Message, 0, len(history)+2)
	messages = append(messages, toolplan.NewMessage(toolplan.RoleSystem, p.Prompt()))
	for i := range history {
		msg := history[i]
		messages = append(messages, &msg)
	}
	messages = append(messages, toolplan.NewMessage(toolplan.RoleUser, userText))

	start := time.Now()
	resp, err := p.model.Complete(ctx, messages, p.callOpts...)
	if err != nil {
		err = fmt.Errorf("planner completion failed: %w", err)
		p.logger.ErrorContext(ctx, "planner completion failed", "model", p.model.Model(), "error", err)
		observability.EndSpan(span, err)
		return plan.Plan{}, err
	}

	result, err := plan.Parse(resp.Content)
	if err != nil {
		p.logger.WarnContext(ctx, "planner returned an unparsable plan",
			"error", err,
			"output", observability.Truncate(strings.TrimSpace(resp.Content), 200),
		)
		observability.EndSpan(span, err)
		return plan.Plan{}, err
	}

	p.logger.InfoContext(ctx, "plan created",
		"steps", result.Len(),
		"tools", result.Tools(),
		"duration", time.Since(start),
	)
	span.SetAttributes(
		attribute.Int("plan.steps", result.Len()),
		attribute.StringSlice("plan.tools", result.Tools()),
	)
	observability.EndSpan(span, nil)
	return result, nil
}
