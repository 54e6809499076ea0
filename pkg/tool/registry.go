package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/odvcencio/controlplane/pkg/tool/builtin"
)

// Registry manages all available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewEmptyRegistry creates a registry without any built-in tools.
func NewEmptyRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewRegistry creates a registry with the built-in tools registered.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.Register(&builtin.EchoTool{})
	r.Register(&builtin.ClockTool{})
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	if t == nil || t.Name() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in name order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Filter returns a registry narrowed to the allowed tool names. An empty
// allow list yields an empty registry: the dispatch core never grants
// implicit access.
func (r *Registry) Filter(allowed []string) *Registry {
	filtered := NewEmptyRegistry()
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}
	for _, t := range r.List() {
		if allowedSet[t.Name()] {
			filtered.Register(t)
		}
	}
	return filtered
}

// Execute implements Dispatcher.
func (r *Registry) Execute(toolID string, arguments map[string]any) (*builtin.Result, error) {
	t, ok := r.Get(toolID)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", toolID)
	}
	if arguments == nil {
		arguments = map[string]any{}
	}
	return t.Execute(arguments)
}

// Definitions implements Dispatcher.
func (r *Registry) Definitions() []map[string]any {
	var defs []map[string]any
	for _, t := range r.List() {
		defs = append(defs, ToFunctionDefinition(t))
	}
	return defs
}
