package agent

import (
	"context"

	"golang.org/x/time/rate"
)

const (
	defaultRateBurst     = 5
	defaultRatePerMinute = 30.0
)

// RateLimiter throttles model calls with a token bucket shared by every turn
// of the process.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows maxBurst calls at once and refills at ratePerMinute.
// Non-positive values fall back to 5 and 30/min.
func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = defaultRateBurst
	}
	if ratePerMinute <= 0 {
		ratePerMinute = defaultRatePerMinute
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerMinute/60.0), maxBurst),
	}
}

// Wait blocks until a call is allowed or ctx is done. A nil limiter never
// blocks.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	return rl.limiter.Wait(ctx)
}
