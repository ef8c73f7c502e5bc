// Package session owns the conversation store and the agent loop: sessions
// and their messages/parts, the reason-act processor that drives LLM turns
// and tool execution through the control plane, and the compaction/title
// machinery around them.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/internal/tool"
	"github.com/arborio/agentcore/internal/toolplane"
	"github.com/arborio/agentcore/pkg/types"
)

// Processor runs the agent loop: one logically sequential turn per session,
// different sessions in parallel.
type Processor struct {
	mu sync.Mutex

	providerRegistry *provider.Registry
	toolRegistry     *tool.Registry
	storage          *storage.Storage
	toolPlane        *toolplane.Plane

	defaultProviderID string
	defaultModelID    string

	// sessions holds the state of every turn currently in flight, keyed by
	// session id. Presence here is what makes a session "busy".
	sessions map[string]*sessionState
}

// sessionState tracks one in-flight turn.
type sessionState struct {
	ctx     context.Context
	cancel  context.CancelFunc
	message *types.Message
	parts   []types.Part
	step    int
}

// ProcessCallback receives message updates as the turn streams.
type ProcessCallback func(msg *types.Message, parts []types.Part)

// NewProcessor creates a processor with a default control plane.
func NewProcessor(
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	store *storage.Storage,
	defaultProviderID string,
	defaultModelID string,
) *Processor {
	if defaultProviderID == "" {
		defaultProviderID = "anthropic"
	}
	if defaultModelID == "" {
		defaultModelID = "claude-sonnet-4-20250514"
	}
	return &Processor{
		providerRegistry:  providerReg,
		toolRegistry:      toolReg,
		storage:           store,
		toolPlane:         toolplane.NewPlane(30_000, 4, time.Second),
		defaultProviderID: defaultProviderID,
		defaultModelID:    defaultModelID,
		sessions:          make(map[string]*sessionState),
	}
}

// SetToolPlane overrides the processor's tool-execution control plane, e.g.
// to install per-tool timeout/retry/concurrency policy before serving
// traffic.
func (p *Processor) SetToolPlane(plane *toolplane.Plane) {
	p.toolPlane = plane
}

// Process runs one turn for sessionID. A session with a turn already in
// flight returns ErrSessionBusy; responses on one session are serialized by
// rejection, not queueing.
func (p *Processor) Process(ctx context.Context, sessionID string, agent *Agent, callback ProcessCallback) error {
	p.mu.Lock()
	if _, ok := p.sessions[sessionID]; ok {
		p.mu.Unlock()
		return ErrSessionBusy
	}

	loopCtx, cancel := context.WithCancel(ctx)
	state := &sessionState{ctx: loopCtx, cancel: cancel}
	p.sessions[sessionID] = state
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.sessions, sessionID)
		p.mu.Unlock()
	}()

	return p.runLoop(loopCtx, sessionID, state, agent, callback)
}

// Abort cancels the in-flight turn for sessionID, if any. Idempotent: an
// idle session is a no-op.
func (p *Processor) Abort(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.sessions[sessionID]; ok {
		state.cancel()
	}
}

// IsProcessing reports whether sessionID has a turn in flight.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[sessionID]
	return ok
}

// ToolMetrics returns the control plane's rolling per-tool aggregates.
func (p *Processor) ToolMetrics() map[string]toolplane.Aggregate {
	out := make(map[string]toolplane.Aggregate)
	for _, name := range p.toolPlane.Metrics.Tools() {
		out[name] = p.toolPlane.Metrics.Snapshot(name)
	}
	return out
}

// GetActiveState returns the streaming message and parts of an in-flight
// turn.
func (p *Processor) GetActiveState(sessionID string) (*types.Message, []types.Part, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}
	return state.message, state.parts, true
}
