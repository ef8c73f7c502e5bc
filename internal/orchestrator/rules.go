package orchestrator

import (
	"context"
	"fmt"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/logging"
)

// RegisterDefaultRules installs the bus's default rule table (spec §4.8):
//
//	user_query                          priority 100  run the agent loop
//	session.created/updated/deleted     priority  50  log + forward
//	background_task.completed           priority  80  analysis re-entry
//	background_task.failed              priority  80  failure-diagnosis re-entry
//	environment.switched                priority  80  announce re-entry
//	*  (fallback)                       priority  10  respond/continue/ask
func (o *Orchestrator) RegisterDefaultRules() {
	rules := o.bus.Rules()

	rules.RegisterRule(event.UserQuery, event.FunctionHandler(o.onUserQuery), 100)

	rules.RegisterRule(event.SessionCreated, event.FunctionHandler(o.onSessionLifecycle), 50)
	rules.RegisterRule(event.SessionUpdated, event.FunctionHandler(o.onSessionLifecycle), 50)
	rules.RegisterRule(event.SessionDeleted, event.FunctionHandler(o.onSessionLifecycle), 50)

	rules.RegisterRule(
		event.BackgroundDone,
		event.AgentHandler("Summarize and analyze the completed background task result for the user."),
		80,
	)
	rules.RegisterRule(
		event.BackgroundFailed,
		event.AgentHandler("Diagnose why the background task failed and propose a remediation."),
		80,
	)
	rules.RegisterRule(
		event.EnvSwitched,
		event.AgentHandler("Announce the environment switch to the user, summarizing what changed."),
		80,
	)

	rules.RegisterRule(event.EventType("*"), event.AgentHandler(fallbackPrompt), 10)

	rules.AgentRunner = o.runAgentRule
}

// fallbackPrompt is the prompt given to the wildcard fallback rule (spec
// §4.8: "agent-prompt handler that decides to respond, continue, or ask for
// confirmation").
const fallbackPrompt = "An unclassified event occurred. Decide whether to " +
	"respond to the user, continue silently, or ask for confirmation."

// onUserQuery is the priority-100 default rule for user queries. It does
// not run the agent loop itself: loop invocation happens in
// Orchestrator.HandleQuery, which publishes this event synchronously before
// calling ProcessMessage directly — this handler only records that the
// query was accepted for dispatch; interrupt handling (persisting partial
// content and appending the interrupt notice) lives in
// session.Service.Interrupt.
func (o *Orchestrator) onUserQuery(evt event.Event) {
	logging.Logger.Debug().Str("sessionID", evt.SessionID).Msg("user_query rule dispatched")
}

// onSessionLifecycle is the priority-50 default rule: log + forward.
// Forwarding is a no-op beyond logging because subscriber delivery (SSE
// plane, etc.) already happens after rule dispatch in Bus.Publish/
// PublishSync; this rule's job is purely the audit log entry spec §4.8
// calls for.
func (o *Orchestrator) onSessionLifecycle(evt event.Event) {
	logging.Logger.Info().
		Str("eventType", string(evt.Type)).
		Str("sessionID", evt.SessionID).
		Msg("session lifecycle event")
}

// runAgentRule is the RuleTable.AgentRunner wired for every HandlerAgent
// rule: background_task.completed/failed, environment.switched, and the
// wildcard fallback. It re-enters the agent loop through RunChildLoop with
// the "general" sub-agent on a child of the triggering session, falling back
// to the active session; when neither is set it skips re-entry. The user
// message is prompt followed by a summary of evt; prompt is not installed as
// a separate system prompt.
func (o *Orchestrator) runAgentRule(evt event.Event, prompt string) error {
	parentID := evt.SessionID
	if parentID == "" {
		o.mu.RLock()
		parentID = o.activeSessionID
		o.mu.RUnlock()
	}
	if parentID == "" {
		logging.Logger.Debug().
			Str("eventType", string(evt.Type)).
			Msg("agent rule fired with no session context; skipping re-entry")
		return nil
	}

	message := fmt.Sprintf("%s\n\nTriggering event: %s\nData: %v", prompt, evt.Type, evt.Data)

	_, err := o.RunChildLoop(context.Background(), parentID, "general", message)
	return err
}
