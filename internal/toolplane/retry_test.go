package toolplane

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryConfig_IsRetryable(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.True(t, cfg.IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, cfg.IsRetryable(errors.New("Rate Limit exceeded")))
	assert.False(t, cfg.IsRetryable(errors.New("invalid argument: missing field")))
	assert.False(t, cfg.IsRetryable(nil))
}

func TestRetryConfig_Delay_NoJitter(t *testing.T) {
	cfg := RetryConfig{
		BaseDelayMs:       500,
		MaxDelayMs:        10_000,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}

	assert.Equal(t, 500*time.Millisecond, cfg.Delay(0, nil))
	assert.Equal(t, 1_000*time.Millisecond, cfg.Delay(1, nil))
	assert.Equal(t, 2_000*time.Millisecond, cfg.Delay(2, nil))
}

func TestRetryConfig_Delay_CapsAtMax(t *testing.T) {
	cfg := RetryConfig{
		BaseDelayMs:       500,
		MaxDelayMs:        1_500,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}

	assert.Equal(t, 1_500*time.Millisecond, cfg.Delay(5, nil))
}

// Seed scenario S5: jittered retry delay must always land within
// [0.5*expected, expected] of the unjittered backoff value.
func TestRetryConfig_Delay_JitterBounded(t *testing.T) {
	cfg := RetryConfig{
		BaseDelayMs:       1_000,
		MaxDelayMs:        10_000,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	rng := rand.New(rand.NewSource(42))

	unjittered := 2_000 * time.Millisecond // attempt 1: 1000 * 2^1
	for i := 0; i < 200; i++ {
		d := cfg.Delay(1, rng)
		assert.GreaterOrEqual(t, d, unjittered/2)
		assert.LessOrEqual(t, d, unjittered)
	}
}
