package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/arborio/agentcore/pkg/types"
)

// SystemPrompt assembles the system message for a turn: the agent's base
// prompt, provider-specific framing, and session context.
type SystemPrompt struct {
	session    *types.Session
	agent      *Agent
	providerID string
	modelID    string
}

// NewSystemPrompt creates a prompt builder for one turn.
func NewSystemPrompt(session *types.Session, agent *Agent, providerID, modelID string) *SystemPrompt {
	return &SystemPrompt{
		session:    session,
		agent:      agent,
		providerID: providerID,
		modelID:    modelID,
	}
}

// Build concatenates the prompt sections that apply to this turn.
func (s *SystemPrompt) Build() string {
	var sections []string

	if header := s.providerHeader(); header != "" {
		sections = append(sections, header)
	}
	if s.agent != nil && s.agent.Prompt != "" {
		sections = append(sections, s.agent.Prompt)
	}
	sections = append(sections, s.sessionContext())

	return strings.Join(sections, "\n\n")
}

// providerHeader frames tool use the way each provider family responds to
// best.
func (s *SystemPrompt) providerHeader() string {
	base := "You are an assistant running inside an agent execution server. " +
		"You answer by reasoning step by step and calling the available tools when they help."
	switch s.providerID {
	case "anthropic":
		return base + " When a tool call fails, read the error and adjust rather than repeating the identical call."
	case "openai":
		return base + " Prefer a single well-formed tool call over several speculative ones."
	default:
		return base
	}
}

// sessionContext describes the session the turn belongs to.
func (s *SystemPrompt) sessionContext() string {
	var b strings.Builder
	b.WriteString("# Session\n\n")
	if s.session != nil {
		fmt.Fprintf(&b, "Session: %s (%s)\n", s.session.Title, s.session.ID)
		if s.session.ParentID != nil {
			fmt.Fprintf(&b, "Forked from: %s\n", *s.session.ParentID)
		}
	}
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format("2006-01-02"))
	if s.modelID != "" {
		fmt.Fprintf(&b, "Model: %s/%s\n", s.providerID, s.modelID)
	}
	return b.String()
}
