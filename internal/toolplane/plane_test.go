package toolplane

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborio/agentcore/internal/trace"
)

func testPlane() *Plane {
	return NewPlane(200, 4, time.Second)
}

func TestPlane_Execute_Success(t *testing.T) {
	p := testPlane()

	result, err := p.Execute(context.Background(), "echo", `{"text":"hi"}`, func(ctx context.Context, tool string) (any, error) {
		return "hi", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", result)

	agg := p.Metrics.Snapshot("echo")
	assert.Equal(t, 1, agg.Total)
	assert.Equal(t, 1, agg.Success)
}

func TestPlane_Execute_RetriesThenSucceeds(t *testing.T) {
	p := testPlane()
	cfg := DefaultToolConfig()
	cfg.Retry = RetryConfig{MaxRetries: 3, BaseDelayMs: 1, MaxDelayMs: 5, BackoffMultiplier: 2, Jitter: false}
	p.SetConfig("fail_n", cfg)

	var calls int32
	result, err := p.Execute(context.Background(), "fail_n", `{"n":2}`, func(ctx context.Context, tool string) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	agg := p.Metrics.Snapshot("fail_n")
	assert.Equal(t, 3, agg.Total)
	assert.Equal(t, 2, agg.Failure)
}

func TestPlane_Execute_NonRetryableFailsFast(t *testing.T) {
	p := testPlane()

	var calls int32
	_, err := p.Execute(context.Background(), "fail_n", `{"n":99}`, func(ctx context.Context, tool string) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("invalid argument")
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPlane_Execute_TimesOut(t *testing.T) {
	p := testPlane()
	cfg := DefaultToolConfig()
	cfg.Retry.MaxRetries = 0
	cfg.TimeoutMs = 20
	p.SetConfig("slow", cfg)

	_, err := p.Execute(context.Background(), "slow", `{}`, func(ctx context.Context, tool string) (any, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	require.Error(t, err)
	var timeoutErr *ErrTimedOut
	require.ErrorAs(t, err, &timeoutErr)
}

func TestPlane_Execute_RecoveryFallback(t *testing.T) {
	p := testPlane()
	cfg := DefaultToolConfig()
	cfg.Retry.MaxRetries = 0
	cfg.Recovery = RecoveryStrategy{Kind: RecoveryFallback, FallbackTool: "backup_tool"}
	p.SetConfig("primary_tool", cfg)

	result, err := p.Execute(context.Background(), "primary_tool", `{}`, func(ctx context.Context, tool string) (any, error) {
		if tool == "primary_tool" {
			return nil, errors.New("connection refused")
		}
		return "from " + tool, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "from backup_tool", result)
}

func TestPlane_Execute_RecoverySkip(t *testing.T) {
	p := testPlane()
	cfg := DefaultToolConfig()
	cfg.Retry.MaxRetries = 0
	cfg.Recovery = RecoveryStrategy{Kind: RecoverySkip, SkipValue: "fallback-value"}
	p.SetConfig("optional_tool", cfg)

	result, err := p.Execute(context.Background(), "optional_tool", `{}`, func(ctx context.Context, tool string) (any, error) {
		return nil, errors.New("connection refused")
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback-value", result)
}

func TestPlane_Execute_DoomLoopBlocksRepeatedCalls(t *testing.T) {
	p := testPlane()
	cfg := DefaultToolConfig()
	cfg.DoomLoop = DoomLoopDeny
	p.SetConfig("write_file", cfg)

	dispatch := func(ctx context.Context, tool string) (any, error) { return "ok", nil }

	_, err := p.Execute(context.Background(), "write_file", `{"path":"a"}`, dispatch)
	require.NoError(t, err)
	_, err = p.Execute(context.Background(), "write_file", `{"path":"a"}`, dispatch)
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), "write_file", `{"path":"a"}`, dispatch)
	require.Error(t, err)
	var dl *ErrDoomLoop
	require.ErrorAs(t, err, &dl)
}

func TestPlane_Execute_ConcurrencyLimitsParallelism(t *testing.T) {
	p := testPlane()
	p.SetConfig("limited", ToolConfig{
		Retry:          RetryConfig{MaxRetries: 0},
		Recovery:       RecoveryStrategy{Kind: RecoveryError},
		DoomLoop:       DoomLoopAllow,
		ConcurrencyMax: 1,
		TimeoutMs:      1_000,
	})

	var inFlight, maxInFlight int32
	done := make(chan struct{}, 3)

	for i := 0; i < 3; i++ {
		go func() {
			_, _ = p.Execute(context.Background(), "limited", `{}`, func(ctx context.Context, tool string) (any, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					cur := atomic.LoadInt32(&maxInFlight)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return "ok", nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestPlane_Execute_RecordsSpan(t *testing.T) {
	p := testPlane()
	p.Tracer = trace.NewRecorder(0)

	_, err := p.Execute(context.Background(), "echo", `{"text":"hi"}`, func(ctx context.Context, tool string) (any, error) {
		return "hi", nil
	})
	require.NoError(t, err)

	traces := p.Tracer.Snapshot()
	require.Len(t, traces, 1)

	spans := p.Tracer.Trace(traces[0])
	require.Len(t, spans, 1)
	assert.Equal(t, "tool:echo", spans[0].Name)
	assert.Equal(t, trace.KindTool, spans[0].Kind)
	assert.Equal(t, trace.StatusOK, spans[0].Status)
	assert.Equal(t, `{"text":"hi"}`, spans[0].Attributes["args"])
	assert.Equal(t, "hi", spans[0].Result)
}

func TestPlane_Execute_SpanCapturesFailure(t *testing.T) {
	p := testPlane()
	p.Tracer = trace.NewRecorder(0)
	p.SetConfig("broken", ToolConfig{
		Retry:    RetryConfig{MaxRetries: 0},
		Recovery: RecoveryStrategy{Kind: RecoveryError},
		DoomLoop: DoomLoopAllow,
	})

	_, err := p.Execute(context.Background(), "broken", `{}`, func(ctx context.Context, tool string) (any, error) {
		return nil, errors.New("kaput")
	})
	require.Error(t, err)

	traces := p.Tracer.Snapshot()
	require.Len(t, traces, 1)
	spans := p.Tracer.Trace(traces[0])
	require.Len(t, spans, 1)
	assert.Equal(t, trace.StatusError, spans[0].Status)
	assert.Contains(t, spans[0].Error, "kaput")
}
