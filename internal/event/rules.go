package event

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/arborio/agentcore/internal/logging"
)

// HandlerKind discriminates the two Handler variants from spec §4.2/§9.
type HandlerKind int

const (
	// HandlerFunction runs an in-process Subscriber synchronously.
	HandlerFunction HandlerKind = iota
	// HandlerAgent re-enters the agent loop through the table's AgentRunner,
	// which receives Prompt and the triggering event. The orchestrator's
	// runner sends Prompt followed by a summary of the event as the user
	// message of a child loop; no separate system prompt is set from Prompt.
	HandlerAgent
)

// AgentLoopRunner re-enters the agent loop for a HandlerAgent rule. It
// mirrors SPEC_FULL.md's LoopHost.RunChildLoop: given the prompt configured
// on the rule and the event that triggered it, it runs a child agent loop
// and returns once that loop completes (or fails).
type AgentLoopRunner func(evt Event, prompt string) error

// Handler is the sum type `{Function(fn), Agent{prompt}}` from spec §9:
// a rule either runs a plain in-process function or spawns a sub-agent.
// Exactly one of Fn (Kind == HandlerFunction) or Prompt (Kind ==
// HandlerAgent) is meaningful, selected by Kind.
type Handler struct {
	Kind   HandlerKind
	Fn     Subscriber
	Prompt string
}

// FunctionHandler builds a Function-kind rule handler.
func FunctionHandler(fn Subscriber) Handler {
	return Handler{Kind: HandlerFunction, Fn: fn}
}

// AgentHandler builds an Agent-kind rule handler: prompt is handed to the
// table's AgentRunner when the rule fires.
func AgentHandler(prompt string) Handler {
	return Handler{Kind: HandlerAgent, Prompt: prompt}
}

// Rule binds an event type to a handler with a dispatch priority (spec
// §4.2 Rule, §4.8 default rules table). EventType may be the literal "*"
// wildcard, which matches every event, runs after all exact-type rules for
// that event, and always runs last regardless of its configured Priority.
type Rule struct {
	ID        uint64
	EventType EventType
	Handler   Handler
	Priority  int
}

// RuleTable holds the bus's registered rules and dispatches events to them
// synchronously, in priority order, before subscriber delivery (spec §4.2:
// "routes to rules synchronously in priority order (highest first, stable
// within equal priority), then to matching subscribers").
type RuleTable struct {
	mu     sync.RWMutex
	rules  []Rule
	nextID uint64

	// AgentRunner, when set, lets HandlerAgent rules actually re-enter the
	// agent loop (wired by the Environment Orchestrator at startup). Left
	// nil, Agent-kind rules are recorded as a no-op with a logged warning
	// rather than silently dropped.
	AgentRunner AgentLoopRunner
}

// NewRuleTable creates an empty rule table.
func NewRuleTable() *RuleTable {
	return &RuleTable{}
}

// RegisterRule adds rule to the table and returns an unregister function.
func (t *RuleTable) RegisterRule(eventType EventType, handler Handler, priority int) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := atomic.AddUint64(&t.nextID, 1)
	t.rules = append(t.rules, Rule{
		ID:        id,
		EventType: eventType,
		Handler:   handler,
		Priority:  priority,
	})

	return func() {
		t.unregister(id)
	}
}

func (t *RuleTable) unregister(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, r := range t.rules {
		if r.ID == id {
			t.rules = append(t.rules[:i], t.rules[i+1:]...)
			return
		}
	}
}

// matching returns the rules bound to evt.Type plus the "*" fallback
// rules, ordered highest-priority-first (stable within equal priority),
// with exact-type matches always sorted ahead of wildcard matches so the
// wildcard genuinely behaves as a fallback rather than merely a
// low-priority entry.
func (t *RuleTable) matching(eventType EventType) []Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var matched []Rule
	for _, r := range t.rules {
		if r.EventType == eventType || r.EventType == EventType("*") {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		iWild := matched[i].EventType == EventType("*")
		jWild := matched[j].EventType == EventType("*")
		if iWild != jWild {
			return !iWild
		}
		return matched[i].Priority > matched[j].Priority
	})

	return matched
}

// Dispatch runs every matching rule against evt in order. Each rule's
// error, if any, is recorded into evt.Metadata keyed by the rule's event
// type; dispatch never stops early and never blocks subscriber delivery
// (spec §4.2: "Rule errors are logged and do not prevent subscriber
// delivery").
func (t *RuleTable) Dispatch(evt Event) Event {
	rules := t.matching(evt.Type)
	if len(rules) == 0 {
		return evt
	}

	for _, r := range rules {
		if err := t.run(r, evt); err != nil {
			logging.Logger.Error().
				Err(err).
				Str("eventType", string(evt.Type)).
				Str("ruleType", string(r.EventType)).
				Int("priority", r.Priority).
				Msg("event rule handler failed")

			if evt.Metadata == nil {
				evt.Metadata = make(map[string]any)
			}
			evt.Metadata[fmt.Sprintf("rule_error:%s", r.EventType)] = err.Error()
		}
	}

	return evt
}

func (t *RuleTable) run(r Rule, evt Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rule panic: %v", rec)
		}
	}()

	switch r.Handler.Kind {
	case HandlerFunction:
		if r.Handler.Fn != nil {
			r.Handler.Fn(evt)
		}
		return nil
	case HandlerAgent:
		if t.AgentRunner == nil {
			logging.Logger.Warn().
				Str("eventType", string(evt.Type)).
				Str("prompt", r.Handler.Prompt).
				Msg("agent rule fired with no agent loop runner wired; skipping")
			return nil
		}
		return t.AgentRunner(evt, r.Handler.Prompt)
	default:
		return fmt.Errorf("unknown rule handler kind %d", r.Handler.Kind)
	}
}
