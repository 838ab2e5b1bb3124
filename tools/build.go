package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/scttfrdmn/toolplan/middleware"
	"github.com/scttfrdmn/toolplan/toolplan"
)

type options struct {
	logger         *slog.Logger
	toolTimeout    time.Duration
	circuitBreaker *middleware.CircuitBreakerConfig
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}

// decorate applies the configured middleware. The circuit breaker only
// guards remote tools.
func (o options) decorate(t toolplan.Tool, remote bool) toolplan.Tool {
	if remote && o.circuitBreaker != nil {
		t = middleware.NewCircuitBreakerDecorator(t, *o.circuitBreaker)
	}
	if o.toolTimeout > 0 {
		t = middleware.Timeout(t, o.toolTimeout)
	}
	return t
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger used for discovery warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithToolTimeout bounds every tool call.
func WithToolTimeout(d time.Duration) Option {
	return func(o *options) { o.toolTimeout = d }
}

// WithCircuitBreaker guards each remote tool with a circuit breaker.
func WithCircuitBreaker(cfg middleware.CircuitBreakerConfig) Option {
	return func(o *options) { o.circuitBreaker = &cfg }
}

// Build creates a registry holding the local tools followed by the tools of
// each remote source.
//
// A source that cannot be reached contributes no tools; its failure is
// logged and the registry is still returned. A remote tool whose name is
// already taken is skipped with a warning. The only error is an invalid or
// duplicate local tool.
func Build(ctx context.Context, local []toolplan.Tool, sources []RemoteSource, opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	for _, t := range local {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	r.sources = append(r.sources, sources...)
	r.Refresh(ctx)
	return r, nil
}

// Refresh rediscovers the tools of every remote source. Local tools are
// never touched. A source that fails keeps the tools from its last
// successful discovery. Refresh returns the number of remote tools now
// registered.
func (r *Registry) Refresh(ctx context.Context) int {
	total := 0
	for _, src := range r.sources {
		discovered, err := Discover(ctx, src, r.logger.Warn)
		if err != nil {
			r.logger.Warn("remote tool discovery failed",
				"source", src.Name,
				"error", err,
			)
			total += r.countSource(src.Name)
			continue
		}

		added, skipped := r.replaceSource(src.Name, discovered)
		for _, s := range skipped {
			r.logger.Warn("skipping remote tool with conflicting name", "source", src.Name, "tool", s)
		}
		r.logger.Info("remote tools discovered", "source", src.Name, "count", added)
		total += added
	}
	return total
}

func (r *Registry) countSource(source string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.tools {
		if e.source == source {
			n++
		}
	}
	return n
}

// StartRefresh refreshes remote tools every interval until ctx is done or
// StopRefresh is called. Calling it while a loop is running is a no-op.
func (r *Registry) StartRefresh(ctx context.Context, interval time.Duration) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	if r.cancel != nil || interval <= 0 {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.refreshLoop(loopCtx, interval, r.done)
}

// StopRefresh stops the refresh loop and waits for it to exit.
func (r *Registry) StopRefresh() {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
	}
}

func (r *Registry) refreshLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}
