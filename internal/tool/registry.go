package tool

import (
	"sort"
	"strings"
	"sync"

	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/internal/storage"
)

// Registry holds the tools available to the agent loop: the reference
// built-ins plus whatever the MCP manager registers under "<server>_" names.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logging.Logger.Debug().Str("tool", t.Name()).Msg("registering tool")
	r.tools[t.Name()] = t
}

// Deregister removes a tool by name.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// DeregisterPrefix removes every tool whose name starts with prefix and
// returns how many were removed. MCP disconnect uses this to drop a
// server's "<server>_" tools in one call.
func (r *Registry) DeregisterPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name := range r.tools {
		if strings.HasPrefix(name, prefix) {
			delete(r.tools, name)
			removed++
		}
	}
	return removed
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools, sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Names returns all tool names, sorted.
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

// DefaultRegistry creates a registry with the reference tools, the todo
// pair, and the task tool (executor wired later via SetTaskExecutor).
func DefaultRegistry(store *storage.Storage) *Registry {
	r := NewRegistry()
	r.Register(NewEchoTool())
	r.Register(NewFailNTool())
	r.Register(NewSlowTool())
	r.Register(NewTodoWriteTool(store))
	r.Register(NewTodoReadTool(store))
	r.Register(NewTaskTool())
	logging.Logger.Info().Strs("tools", r.Names()).Msg("tool registry created")
	return r
}

// SetTaskExecutor wires the loop re-entry implementation into the task
// tool, if registered.
func (r *Registry) SetTaskExecutor(executor TaskExecutor) {
	r.mu.RLock()
	t, ok := r.tools["task"]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if taskTool, ok := t.(*TaskTool); ok {
		taskTool.SetExecutor(executor)
	}
}
