// Package orchestrator implements the environment orchestrator: it glues
// the session store, event bus, provider registry, tool registry, and MCP
// manager together, owns the active environment's configuration, and
// registers the bus's default dispatch rules.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/arborio/agentcore/internal/agent"
	"github.com/arborio/agentcore/internal/config"
	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/executor"
	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/internal/mcp"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/internal/session"
	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/internal/tool"
	"github.com/arborio/agentcore/pkg/types"
)

// ChildResult is the outcome of a re-entered agent loop, as returned by
// RunChildLoop.
type ChildResult struct {
	SessionID string
	Output    string
	Error     string
}

// LoopHost is the narrow interface tool factories and agent-prompt rule
// handlers see of the orchestrator, breaking the orchestrator/tool cycle.
type LoopHost interface {
	PublishEvent(evt event.Event)
	GetSession(id string) (*types.Session, bool)
	Tools() []tool.Tool
	RunChildLoop(ctx context.Context, parentID, agentName, prompt string) (*ChildResult, error)
}

// Config bundles the dependencies Orchestrator needs.
type Config struct {
	EnvDir           string
	Storage          *storage.Storage
	SessionService   *session.Service
	ProviderRegistry *provider.Registry
	ToolRegistry     *tool.Registry
	AgentRegistry    *agent.Registry
	MCPManager       *mcp.Manager
	Bus              *event.Bus
}

// Orchestrator wires the core components and serves the spec's
// handle_query / switch_model / switch_environment operations.
type Orchestrator struct {
	mu sync.RWMutex

	envDir         string
	store          *storage.Storage
	sessionService *session.Service
	providerReg    *provider.Registry
	toolReg        *tool.Registry
	agentReg       *agent.Registry
	mcpManager     *mcp.Manager
	bus            *event.Bus

	subagentExec *executor.SubagentExecutor

	// recentModels is the persisted most-recent-first model list consulted
	// by the selection fallback chain; SwitchModel pushes onto it.
	recentModels *provider.RecentModels

	appConfig *types.Config

	// activeSessionID is the session most recently driven through
	// HandleQuery; environment.switched announcements target it when set.
	activeSessionID string

	watcher *envWatcher
}

// New creates an Orchestrator wired to cfg's dependencies and registers the
// bus's default rule table.
func New(cfg Config) *Orchestrator {
	bus := cfg.Bus
	if bus == nil {
		bus = event.NewBus()
	}

	o := &Orchestrator{
		envDir:         cfg.EnvDir,
		store:          cfg.Storage,
		sessionService: cfg.SessionService,
		providerReg:    cfg.ProviderRegistry,
		toolReg:        cfg.ToolRegistry,
		agentReg:       cfg.AgentRegistry,
		mcpManager:     cfg.MCPManager,
		bus:            bus,
		recentModels:   provider.NewRecentModels(cfg.Storage, provider.DefaultRecentCapacity),
	}

	o.subagentExec = executor.NewSubagentExecutor(executor.SubagentExecutorConfig{
		Storage:          cfg.Storage,
		ProviderRegistry: cfg.ProviderRegistry,
		ToolRegistry:     cfg.ToolRegistry,
		AgentRegistry:    cfg.AgentRegistry,
	})
	if cfg.ToolRegistry != nil {
		cfg.ToolRegistry.SetTaskExecutor(o.subagentExec)
	}

	o.RegisterDefaultRules()
	return o
}

// Bus returns the orchestrator's event bus.
func (o *Orchestrator) Bus() *event.Bus {
	return o.bus
}

// PublishEvent implements LoopHost.
func (o *Orchestrator) PublishEvent(evt event.Event) {
	o.bus.Publish(evt)
}

// GetSession implements LoopHost.
func (o *Orchestrator) GetSession(id string) (*types.Session, bool) {
	sess, err := o.sessionService.Get(context.Background(), id)
	if err != nil || sess == nil {
		return nil, false
	}
	return sess, true
}

// Tools implements LoopHost.
func (o *Orchestrator) Tools() []tool.Tool {
	if o.toolReg == nil {
		return nil
	}
	return o.toolReg.List()
}

// RunChildLoop implements LoopHost: it re-enters the agent loop on a fresh
// child session.
func (o *Orchestrator) RunChildLoop(ctx context.Context, parentID, agentName, prompt string) (*ChildResult, error) {
	result, err := o.subagentExec.ExecuteSubtask(ctx, parentID, agentName, prompt, tool.TaskOptions{
		Description: "rule-triggered re-entry",
	})
	if err != nil {
		return nil, err
	}
	return &ChildResult{
		SessionID: result.SessionID,
		Output:    result.Output,
		Error:     result.Error,
	}, nil
}

// HandleQuery serves one prompt: it publishes user_query (whose default
// rule observes the dispatch) and drives the agent loop on the session.
func (o *Orchestrator) HandleQuery(ctx context.Context, sessionID, content string, model *types.ModelRef) (*types.Message, []types.Part, error) {
	o.mu.Lock()
	o.activeSessionID = sessionID
	o.mu.Unlock()

	o.bus.PublishSync(event.Event{
		Type:      event.UserQuery,
		SessionID: sessionID,
		Data:      event.UserQueryData{SessionID: sessionID, Content: content, Model: model},
	})

	sess, err := o.sessionService.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}

	return o.sessionService.ProcessMessage(ctx, sess, content, model, nil)
}

// SwitchModel validates the selection, records it as the environment's
// default, and pushes it onto the recency list.
func (o *Orchestrator) SwitchModel(providerID, modelID string) error {
	if _, err := o.providerReg.GetModel(providerID, modelID); err != nil {
		return fmt.Errorf("switch model: %w", err)
	}

	o.mu.Lock()
	if o.appConfig != nil {
		o.appConfig.Model = providerID + "/" + modelID
	}
	o.mu.Unlock()

	if err := o.recentModels.Touch(context.Background(), types.ModelRef{ProviderID: providerID, ModelID: modelID}); err != nil {
		logging.Logger.Warn().Err(err).Msg("failed to persist recent-model entry")
	}
	return nil
}

// SelectModel resolves the model for a new turn via the fallback chain:
// current selection, recency list, config default, first advertised model.
func (o *Orchestrator) SelectModel(ctx context.Context, current *types.ModelRef) (*types.Model, error) {
	o.mu.RLock()
	configModel := ""
	if o.appConfig != nil {
		configModel = o.appConfig.Model
	}
	o.mu.RUnlock()

	return provider.SelectModel(ctx, o.providerReg, current, configModel, o.recentModels)
}

// StartEnvironmentWatch begins watching envDir for changes that trigger an
// automatic SwitchEnvironment.
func (o *Orchestrator) StartEnvironmentWatch(envDir string) error {
	w, err := newEnvWatcher(envDir, func() {
		if err := o.SwitchEnvironment(context.Background(), envDir); err != nil {
			logging.Logger.Warn().Err(err).Str("envDir", envDir).Msg("environment hot-reload failed")
		}
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.watcher != nil {
		o.watcher.Stop()
	}
	o.watcher = w
	o.mu.Unlock()

	w.Start()
	return nil
}

// StopEnvironmentWatch stops the active environment watcher, if any.
func (o *Orchestrator) StopEnvironmentWatch() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.watcher != nil {
		o.watcher.Stop()
		o.watcher = nil
	}
}

// SwitchEnvironment runs the environment switch flow: quiesce MCP, re-read
// config, re-discover MCP servers, re-register their tools, re-select the
// model, and announce the change on the active session.
func (o *Orchestrator) SwitchEnvironment(ctx context.Context, envDir string) error {
	toolsBefore := 0
	if o.toolReg != nil {
		toolsBefore = len(o.toolReg.Names())
	}
	mcpBefore := 0
	if o.mcpManager != nil {
		mcpBefore = o.mcpManager.ConnectedCount()
		for _, status := range o.mcpManager.Status() {
			mcp.DeregisterServer(status.Name, o.toolReg)
		}
		if err := o.mcpManager.Close(); err != nil {
			logging.Logger.Warn().Err(err).Msg("error quiescing MCP servers during environment switch")
		}
	}

	newConfig, err := config.Load(envDir)
	if err != nil {
		return fmt.Errorf("load environment config: %w", err)
	}

	o.mu.Lock()
	o.appConfig = newConfig
	o.envDir = envDir
	o.mu.Unlock()

	if o.agentReg != nil {
		o.agentReg.LoadFromConfig(newConfig.Agent)
	}

	if o.mcpManager != nil {
		o.connectMCP(ctx, envDir, newConfig)
	}

	model, modelErr := o.SelectModel(ctx, nil)
	toolsAfter := 0
	if o.toolReg != nil {
		toolsAfter = len(o.toolReg.Names())
	}
	mcpAfter := 0
	if o.mcpManager != nil {
		mcpAfter = o.mcpManager.ConnectedCount()
	}

	announcement := event.EnvSwitchedData{
		EnvDir:      envDir,
		ToolsBefore: toolsBefore,
		ToolsAfter:  toolsAfter,
		MCPBefore:   mcpBefore,
		MCPAfter:    mcpAfter,
	}
	if modelErr == nil && model != nil {
		announcement.Model = model.ID
	}

	o.mu.RLock()
	activeSession := o.activeSessionID
	o.mu.RUnlock()

	o.bus.Publish(event.Event{
		Type:      event.EnvSwitched,
		SessionID: activeSession,
		Data:      announcement,
	})
	return nil
}

// connectMCP discovers servers in the environment's mcpservers directory,
// merges explicit config entries, connects everything enabled, and
// registers the resulting tools.
func (o *Orchestrator) connectMCP(ctx context.Context, envDir string, cfg *types.Config) {
	explicit := make(map[string]*mcp.Config, len(cfg.MCP))
	for name, mc := range cfg.MCP {
		enabled := mc.Enabled == nil || *mc.Enabled
		explicit[name] = &mcp.Config{
			Enabled:     enabled,
			Type:        mcp.TransportType(mc.Type),
			Command:     mc.Command,
			URL:         mc.URL,
			Headers:     mc.Headers,
			Environment: mc.Environment,
			Timeout:     mc.Timeout,
		}
	}

	candidates, err := mcp.Discover(config.MCPServersDir(envDir), explicit)
	if err != nil {
		logging.Logger.Warn().Err(err).Msg("mcp discovery failed")
	}
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		seen[cand.Name] = true
		if err := o.mcpManager.Connect(ctx, cand.Name, cand.Config); err != nil {
			logging.Logger.Warn().Err(err).Str("server", cand.Name).Msg("mcp server connect failed")
		}
	}
	// Explicit entries without a discovered directory (e.g. remote servers)
	// connect too.
	for name, mcfg := range explicit {
		if seen[name] {
			continue
		}
		if err := o.mcpManager.Connect(ctx, name, mcfg); err != nil {
			logging.Logger.Warn().Err(err).Str("server", name).Msg("mcp server connect failed")
		}
	}

	mcp.RegisterTools(o.mcpManager, o.toolReg)
}

// Shutdown quiesces the orchestrator: stops the environment watcher and
// closes MCP connections.
func (o *Orchestrator) Shutdown() error {
	o.StopEnvironmentWatch()
	if o.mcpManager != nil {
		return o.mcpManager.Close()
	}
	return nil
}
