package toolplane

import "fmt"

// RecoveryKind selects what happens once an attempt exhausts its retries.
type RecoveryKind string

const (
	RecoveryRetry    RecoveryKind = "retry"
	RecoveryFallback RecoveryKind = "fallback"
	RecoverySkip     RecoveryKind = "skip"
	RecoveryError    RecoveryKind = "error"
)

// RecoveryStrategy is the per-tool strategy selector consulted once retries
// are exhausted. Fallback re-routes to a different tool with the same args;
// Skip returns SkipValue; Error surfaces the failure as-is.
type RecoveryStrategy struct {
	Kind         RecoveryKind
	MaxRetries   int
	FallbackTool string
	SkipValue    any
}

// DoomLoopAction is the policy applied when a tool is called repeatedly with
// identical arguments.
type DoomLoopAction string

const (
	DoomLoopAllow DoomLoopAction = "allow"
	DoomLoopDeny  DoomLoopAction = "deny"
	DoomLoopAsk   DoomLoopAction = "ask"
)

// ErrDoomLoop is returned when the doom-loop guard blocks a dispatch.
type ErrDoomLoop struct {
	Tool  string
	Count int
}

func (e *ErrDoomLoop) Error() string {
	return fmt.Sprintf("doom loop detected: %q called %d times with identical arguments", e.Tool, e.Count)
}

// DoomLoopThreshold is the number of identical consecutive calls that
// triggers the guard.
const DoomLoopThreshold = 3

// DoomLoopGuard keys repeated-call detection on (tool, canonical_args_json)
// over the metrics collector's bounded recent-history window, so the guard
// shares its view of "recent" with the rolling metrics the control plane
// already maintains rather than keeping a second shadow history.
type DoomLoopGuard struct {
	metrics *MetricsCollector
	// Asker resolves an "ask" policy decision when the caller provides one;
	// nil means "ask" degrades to "deny" (no interactive surface at this layer).
	Asker func(tool string, args string, count int) bool
}

// NewDoomLoopGuard creates a guard backed by the given metrics collector.
func NewDoomLoopGuard(metrics *MetricsCollector) *DoomLoopGuard {
	return &DoomLoopGuard{metrics: metrics}
}

// Check inspects the tail of tool's recent history for consecutive,
// identical-argument calls and applies action. A nil return means dispatch
// may proceed.
func (g *DoomLoopGuard) Check(tool, canonicalArgs string, action DoomLoopAction) error {
	if action == "" {
		action = DoomLoopAsk
	}

	history := g.metrics.History(tool)
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Args != canonicalArgs {
			break
		}
		count++
	}
	// +1 to account for the call currently being evaluated, not yet recorded.
	count++

	if count < DoomLoopThreshold {
		return nil
	}

	switch action {
	case DoomLoopAllow:
		return nil
	case DoomLoopDeny:
		return &ErrDoomLoop{Tool: tool, Count: count}
	case DoomLoopAsk:
		if g.Asker != nil && g.Asker(tool, canonicalArgs, count) {
			return nil
		}
		return &ErrDoomLoop{Tool: tool, Count: count}
	default:
		return &ErrDoomLoop{Tool: tool, Count: count}
	}
}
