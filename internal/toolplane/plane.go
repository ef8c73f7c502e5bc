package toolplane

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/arborio/agentcore/internal/trace"
)

// Dispatch invokes the named tool and returns its result. Callers close
// over the call's canonical arguments; Plane only ever varies the tool name
// (for fallback re-routing).
type Dispatch func(ctx context.Context, tool string) (any, error)

// ToolConfig bundles the per-tool policy knobs consulted by the plane.
type ToolConfig struct {
	Retry            RetryConfig
	Recovery         RecoveryStrategy
	DoomLoop         DoomLoopAction
	TimeoutMs        int64 // 0 = manager default
	ConcurrencyMax   int   // 0 = manager default
	AcquireMaxWaitMs int64 // 0 = manager default
}

// DefaultToolConfig returns the baseline policy applied to any tool without
// an explicit override.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		Retry:    DefaultRetryConfig(),
		Recovery: RecoveryStrategy{Kind: RecoveryError},
		DoomLoop: DoomLoopAsk,
	}
}

// Plane is the tool-execution control plane: doom-loop guard -> recovery ->
// retry -> concurrency slot -> timeout -> execute, with metrics recorded on
// every attempt.
type Plane struct {
	mu       sync.RWMutex
	configs  map[string]ToolConfig
	fallback ToolConfig

	Timeout     *TimeoutManager
	Concurrency *ConcurrencyManager
	Metrics     *MetricsCollector
	DoomLoop    *DoomLoopGuard

	// Tracer, when set, records one span per Execute call (child of any
	// span already on the caller's context).
	Tracer *trace.Recorder

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPlane builds a control plane with the given defaults. defaultTimeoutMs
// and defaultConcurrency apply to any tool without a SetConfig override.
func NewPlane(defaultTimeoutMs int64, defaultConcurrency int, defaultAcquireWait time.Duration) *Plane {
	metrics := NewMetricsCollector(time.Hour, 1000)
	return &Plane{
		configs:     make(map[string]ToolConfig),
		fallback:    DefaultToolConfig(),
		Timeout:     NewTimeoutManager(defaultTimeoutMs),
		Concurrency: NewConcurrencyManager(defaultConcurrency, defaultAcquireWait),
		Metrics:     metrics,
		DoomLoop:    NewDoomLoopGuard(metrics),
		rng:         rand.New(rand.NewSource(1)),
	}
}

// SetConfig installs the policy for a specific tool.
func (p *Plane) SetConfig(tool string, cfg ToolConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[tool] = cfg

	if cfg.TimeoutMs > 0 {
		p.Timeout.SetOverride(tool, "", cfg.TimeoutMs)
	}
	if cfg.ConcurrencyMax > 0 {
		p.Concurrency.SetLimit(tool, cfg.ConcurrencyMax)
	}
}

func (p *Plane) configFor(tool string) ToolConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cfg, ok := p.configs[tool]; ok {
		return cfg
	}
	return p.fallback
}

func (p *Plane) jitterFactor() *rand.Rand {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng
}

// Execute runs tool through the full pipeline. canonicalArgs must be a
// stable JSON encoding of the call's arguments (used for the doom-loop
// guard and recorded alongside each metrics entry). dispatch performs the
// actual call for whichever tool name the plane asks it to run (the
// original tool, or its configured fallback).
func (p *Plane) Execute(ctx context.Context, tool, canonicalArgs string, dispatch Dispatch) (any, error) {
	cfg := p.configFor(tool)

	var span *trace.Span
	if p.Tracer != nil {
		ctx, span = p.Tracer.Start(ctx, "tool:"+tool, trace.KindTool)
		p.Tracer.SetAttribute(span, "args", canonicalArgs)
	}

	if err := p.DoomLoop.Check(tool, canonicalArgs, cfg.DoomLoop); err != nil {
		if p.Tracer != nil {
			p.Tracer.End(span, nil, err)
		}
		return nil, err
	}

	result, err := p.executeWithRecovery(ctx, tool, canonicalArgs, dispatch, cfg)
	if p.Tracer != nil {
		p.Tracer.End(span, result, err)
	}
	return result, err
}

func (p *Plane) executeWithRecovery(ctx context.Context, tool, canonicalArgs string, dispatch Dispatch, cfg ToolConfig) (any, error) {
	result, err := p.executeWithRetry(ctx, tool, canonicalArgs, dispatch, cfg)
	if err == nil {
		return result, nil
	}

	switch cfg.Recovery.Kind {
	case RecoveryFallback:
		if cfg.Recovery.FallbackTool == "" || cfg.Recovery.FallbackTool == tool {
			return nil, fmt.Errorf("tool %q: recovery=fallback has no distinct fallback tool configured: %w", tool, err)
		}
		fbCfg := p.configFor(cfg.Recovery.FallbackTool)
		return p.executeWithRetry(ctx, cfg.Recovery.FallbackTool, canonicalArgs, dispatch, fbCfg)
	case RecoverySkip:
		return cfg.Recovery.SkipValue, nil
	default:
		return nil, err
	}
}

func (p *Plane) executeWithRetry(ctx context.Context, tool, canonicalArgs string, dispatch Dispatch, cfg ToolConfig) (any, error) {
	maxRetries := cfg.Retry.MaxRetries

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, durationMs, err := p.executeOnce(ctx, tool, canonicalArgs, dispatch, cfg)
		p.Metrics.Record(tool, canonicalArgs, err == nil, durationMs, errString(err))

		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == maxRetries || !cfg.Retry.IsRetryable(err) {
			return nil, lastErr
		}

		select {
		case <-time.After(cfg.Retry.Delay(attempt, p.jitterFactor())):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (p *Plane) executeOnce(ctx context.Context, tool, canonicalArgs string, dispatch Dispatch, cfg ToolConfig) (result any, durationMs int64, err error) {
	maxWait := time.Duration(cfg.AcquireMaxWaitMs) * time.Millisecond

	slot, err := p.Concurrency.AcquireSlot(ctx, tool, maxWait)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		slot.Release()
		p.Concurrency.GC(tool)
	}()

	timeout := cfg.timeoutOrDefault(p.Timeout, tool)

	start := time.Now()
	v, err := ExecuteWithTimeout(ctx, tool, timeout, func(attemptCtx context.Context) (any, error) {
		return dispatch(attemptCtx, tool)
	})
	return v, time.Since(start).Milliseconds(), err
}

func (c ToolConfig) timeoutOrDefault(mgr *TimeoutManager, tool string) time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return mgr.GetTimeout(tool, "")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
