package toolplane

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// DefaultRetryablePatterns are substrings (case-insensitive) that mark an
// error as retryable when a tool's own RetryConfig does not override them.
var DefaultRetryablePatterns = []string{
	"connection reset",
	"econnreset",
	"timeout",
	"timed out",
	"etimedout",
	"dns",
	"no such host",
	"rate limit",
	"too many requests",
	"connection refused",
}

// RetryConfig configures the retry manager for one tool.
type RetryConfig struct {
	MaxRetries        int
	BaseDelayMs       int64
	MaxDelayMs        int64
	BackoffMultiplier float64
	Jitter            bool
	RetryablePatterns []string
}

// DefaultRetryConfig returns the control plane's baseline retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelayMs:       500,
		MaxDelayMs:        10_000,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryablePatterns: DefaultRetryablePatterns,
	}
}

// IsRetryable reports whether err's message matches any configured pattern,
// case-insensitively, falling back to DefaultRetryablePatterns when the
// config supplies none.
func (c RetryConfig) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	patterns := c.RetryablePatterns
	if len(patterns) == 0 {
		patterns = DefaultRetryablePatterns
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Delay computes the backoff for attempt n (0-indexed): min(base *
// multiplier^n, max), then, if jitter is enabled, scaled by a uniform
// random factor in [0.5, 1.0] to avoid thundering herds.
func (c RetryConfig) Delay(n int, rng *rand.Rand) time.Duration {
	base := float64(c.BaseDelayMs)
	mult := c.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	maxMs := float64(c.MaxDelayMs)
	if maxMs <= 0 {
		maxMs = base
	}

	delay := math.Min(base*math.Pow(mult, float64(n)), maxMs)
	if c.Jitter {
		factor := 0.5
		if rng != nil {
			factor += rng.Float64() * 0.5
		} else {
			factor += rand.Float64() * 0.5
		}
		delay *= factor
	}
	return time.Duration(delay) * time.Millisecond
}
