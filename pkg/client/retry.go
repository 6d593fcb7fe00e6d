package client

import (
	"math/rand"
	"time"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c *RetryConfig) applyDefaults() {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
}

// jittered spreads a backoff by ±20% to prevent thundering herd.
func jittered(backoff time.Duration) time.Duration {
	return time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
}

// nextBackoff grows the backoff exponentially up to the configured cap.
func (c RetryConfig) nextBackoff(backoff time.Duration) time.Duration {
	backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}
