// Package tools holds the registry that maps tool names to invocable tools,
// whether they run in-process or on a remote tool server.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// ErrToolNotFound is returned by Invoke when no tool has the requested name.
type ErrToolNotFound struct {
	Name string
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool '%s' not found", e.Name)
}

type entry struct {
	tool toolplan.Tool
	// source is the RemoteSource name, empty for local tools.
	source string
}

// Registry maps tool names to tools. It is safe for concurrent use: the
// executor reads it while a refresh loop may replace remote entries.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]entry
	sources []RemoteSource
	opts    options
	logger  *slog.Logger

	stopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		tools:  make(map[string]entry),
		opts:   o,
		logger: o.logger,
	}
}

// Register adds a local tool.
func (r *Registry) Register(tool toolplan.Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	if tool.Name() == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool '%s' is already registered", tool.Name())
	}
	r.tools[tool.Name()] = entry{tool: r.opts.decorate(tool, false)}
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (toolplan.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the spec of every registered tool, sorted by name.
func (r *Registry) Specs() []toolplan.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]toolplan.ToolSpec, 0, len(r.tools))
	for _, e := range r.tools {
		specs = append(specs, toolplan.SpecOf(e.tool))
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Source returns the name of the remote source a tool came from, or "" for
// local tools.
func (r *Registry) Source(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name].source
}

// Describe renders the tool catalog shown to the planner, one line per tool:
//
//   - web_search(query: string, k?: integer): Search the web ...
func (r *Registry) Describe() string {
	specs := r.Specs()
	if len(specs) == 0 {
		return "No tools available."
	}

	var sb strings.Builder
	for _, spec := range specs {
		sb.WriteString("- ")
		sb.WriteString(spec.Name)
		sb.WriteByte('(')
		for i, p := range spec.Parameters {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name)
			if !p.Required {
				sb.WriteByte('?')
			}
			typ := p.Type
			if typ == "" {
				typ = toolplan.TypeString
			}
			sb.WriteString(": ")
			sb.WriteString(typ)
		}
		sb.WriteString("): ")
		sb.WriteString(oneLine(spec.Description))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Invoke runs the named tool. An unknown name yields *ErrToolNotFound.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (*toolplan.ToolResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, &ErrToolNotFound{Name: name}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return tool.Execute(ctx, args)
}

// replaceSource swaps every tool from source for tools. Names held by a local
// tool or by another source are skipped and reported.
func (r *Registry) replaceSource(source string, tools []toolplan.Tool) (added int, skipped []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.tools {
		if e.source == source {
			delete(r.tools, name)
		}
	}
	for _, t := range tools {
		if existing, exists := r.tools[t.Name()]; exists {
			skipped = append(skipped, fmt.Sprintf("%s (held by %s)", t.Name(), describeSource(existing.source)))
			continue
		}
		r.tools[t.Name()] = entry{tool: r.opts.decorate(t, true), source: source}
		added++
	}
	return added, skipped
}

func describeSource(source string) string {
	if source == "" {
		return "local tool"
	}
	return "source " + source
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
