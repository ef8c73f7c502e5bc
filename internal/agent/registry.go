package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arborio/agentcore/pkg/types"
)

// Registry holds the named agents of the active environment.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates a registry seeded with the built-in agents.
func NewRegistry() *Registry {
	r := &Registry{agents: make(map[string]*Agent)}
	for _, a := range BuiltIn() {
		r.agents[a.Name] = a
	}
	return r
}

// Get returns the named agent, or an error listing what exists.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q not found (have: %v)", name, r.namesLocked())
	}
	return a.Clone(), nil
}

// Register adds or replaces an agent.
func (r *Registry) Register(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name] = a
}

// List returns every agent, sorted by name.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListSubagents returns the agents usable for loop re-entries.
func (r *Registry) ListSubagents() []*Agent {
	var out []*Agent
	for _, a := range r.List() {
		if a.IsSubagent() {
			out = append(out, a)
		}
	}
	return out
}

// Names returns all agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFromConfig overlays per-environment agent settings onto the
// registry. Disabled entries are removed; unknown names become new agents.
func (r *Registry) LoadFromConfig(config map[string]types.AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, cfg := range config {
		if cfg.Disable {
			delete(r.agents, name)
			continue
		}

		a, ok := r.agents[name]
		if !ok {
			a = &Agent{Name: name, Mode: ModeAll}
			r.agents[name] = a
		}
		if cfg.Mode != "" {
			a.Mode = Mode(cfg.Mode)
		}
		if cfg.Prompt != "" {
			a.Prompt = cfg.Prompt
		}
		if cfg.Model != "" {
			a.Model = cfg.Model
		}
		if cfg.Temperature != nil {
			a.Temperature = cfg.Temperature
		}
		if cfg.TopP != nil {
			a.TopP = cfg.TopP
		}
		if cfg.MaxSteps > 0 {
			a.MaxSteps = cfg.MaxSteps
		}
		if cfg.Description != "" {
			a.Description = cfg.Description
		}
		for tool, enabled := range cfg.Tools {
			if enabled {
				a.Tools = append(a.Tools, tool)
			} else {
				a.DisabledTools = append(a.DisabledTools, tool)
			}
		}
	}
}
