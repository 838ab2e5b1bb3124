// Command toolplan answers requests by planning and running tool calls.
//
// With a request on the command line it answers once; without one it reads
// requests from stdin, one per line, keeping history for the session.
//
// Usage:
//
//	toolplan -config toolplan.toml "What's the weather in Seoul tomorrow?"
//	toolplan -plan-only "Schedule a picnic tomorrow at noon"
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/scttfrdmn/toolplan/assistant"
	"github.com/scttfrdmn/toolplan/config"
	"github.com/scttfrdmn/toolplan/executor"
	"github.com/scttfrdmn/toolplan/memory"
	"github.com/scttfrdmn/toolplan/middleware"
	"github.com/scttfrdmn/toolplan/observability"
	"github.com/scttfrdmn/toolplan/plan"
	"github.com/scttfrdmn/toolplan/planner"
	"github.com/scttfrdmn/toolplan/tools"
	"github.com/scttfrdmn/toolplan/tools/builtin"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type flags struct {
	configPath string
	session    string
	user       string
	planOnly   bool
	verbose    bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to a TOML config file")
	flag.StringVar(&f.session, "session", "cli", "conversation session id")
	flag.StringVar(&f.user, "user", "", "user id passed to calendar and recommendation tools (defaults to -session)")
	flag.BoolVar(&f.planOnly, "plan-only", false, "print the repaired plan as JSON without running it")
	flag.BoolVar(&f.verbose, "v", false, "print every step's output")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, strings.Join(flag.Args(), " ")); err != nil {
		fmt.Fprintf(os.Stderr, "toolplan: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, request string) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	logger := observability.ConfigureLogging(observability.LogConfig{
		Level:               observability.ParseLevel(cfg.Logging.Level),
		Structured:          cfg.Logging.Structured,
		IncludeTraceContext: cfg.Logging.IncludeTraceContext,
	})
	if cfg.Telemetry.Enabled() {
		service := observability.Service{Name: "toolplan", Version: version, Role: observability.RoleAssistant}
		if _, err := observability.InitTracing(ctx, service, cfg.Telemetry); err != nil {
			return err
		}
		defer func() { _ = observability.Shutdown(context.Background()) }()
	}

	var cleanup closers
	defer cleanup.Close()

	model, closer, err := newLLM(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	if closer != nil {
		cleanup = append(cleanup, closer)
	}

	user := f.user
	if user == "" {
		user = f.session
	}
	local := newToolset(ctx, cfg, builtin.Session{UserID: user, Location: loc}, model, logger)

	sources, err := newSources(cfg, logger)
	if err != nil {
		return err
	}
	opts := []tools.Option{tools.WithLogger(logger)}
	if cfg.Executor.BreakerThreshold > 0 {
		breaker := middleware.DefaultCircuitBreakerConfig()
		breaker.FailureThreshold = cfg.Executor.BreakerThreshold
		breaker.RecoveryTimeout = cfg.Executor.BreakerRecovery.Duration
		opts = append(opts, tools.WithCircuitBreaker(breaker))
	}
	registry, err := tools.Build(ctx, local, sources, opts...)
	if err != nil {
		return err
	}
	if cfg.Executor.RefreshInterval.Duration > 0 {
		registry.StartRefresh(ctx, cfg.Executor.RefreshInterval.Duration)
		defer registry.StopRefresh()
	}
	logger.Debug("tools ready", "tools", registry.Names())

	history, closer, err := newHistory(ctx, cfg.History, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		cleanup = append(cleanup, closer)
	}

	metrics, err := observability.NewToolMetrics(observability.GetMeter("toolplan"), "toolplan.executor")
	if err != nil {
		return err
	}

	p := planner.New(model, registry, planner.WithLocation(loc), planner.WithLogger(logger))
	exec := executor.New(registry,
		executor.WithStepTimeout(cfg.Executor.StepTimeout.Duration),
		executor.WithMetrics(metrics),
		executor.WithLogger(logger),
	)
	a := assistant.New(p, exec,
		assistant.WithHistory(history),
		assistant.WithWindow(memory.Window{
			Messages: cfg.History.WindowMessages,
			MaxChars: cfg.History.WindowChars,
		}),
		assistant.WithLogger(logger),
	)

	if f.planOnly {
		return printPlan(ctx, os.Stdout, p, request)
	}
	if request != "" {
		return answer(ctx, os.Stdout, a, f, request)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(os.Stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := answer(ctx, os.Stdout, a, f, line); err != nil {
			return err
		}
	}
}

func answer(ctx context.Context, out io.Writer, a *assistant.Assistant, f flags, request string) error {
	ans, err := a.Handle(ctx, f.session, request)
	if err != nil {
		return err
	}
	if f.verbose && ans.Run != nil {
		for _, rec := range ans.Run.Steps {
			fmt.Fprintf(out, "[%d] %s: %s\n", rec.Index, rec.Tool, observability.Truncate(rec.Output, 200))
		}
	}
	fmt.Fprintln(out, ans.Text)
	return nil
}

func printPlan(ctx context.Context, out io.Writer, p *planner.Planner, request string) error {
	if request == "" {
		return fmt.Errorf("-plan-only needs a request")
	}
	proposed, err := p.Plan(ctx, request, nil)
	if err != nil {
		return err
	}
	repaired, _ := plan.DefaultValidator().Repair(proposed, request)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(repaired)
}
