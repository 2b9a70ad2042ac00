// Package ratelimiter throttles transfer throughput in bytes per second.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter limits byte throughput using the token bucket algorithm.
//
// Each byte transferred consumes one token. Tokens are added at the
// configured rate and the bucket holds at most burst tokens, so a transfer
// may briefly exceed the sustained rate by up to one burst.
//
// A nil *RateLimiter is valid and never waits.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing bytesPerSecond sustained throughput.
//
// Special cases:
//   - bytesPerSecond = 0: no limit, New returns nil
//   - burst = 0: burst defaults to one second worth of bytes
func New(bytesPerSecond, burst uint) *RateLimiter {
	if bytesPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = bytesPerSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
	}
}

// WaitN blocks until n bytes may be transferred or ctx is cancelled.
//
// Requests larger than the burst are split, so any n is accepted.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	if r == nil {
		return nil
	}
	burst := r.limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := r.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Limit returns the sustained rate in bytes per second, 0 when unlimited.
func (r *RateLimiter) Limit() uint {
	if r == nil {
		return 0
	}
	return uint(r.limiter.Limit())
}

// Burst returns the bucket capacity in bytes.
func (r *RateLimiter) Burst() uint {
	if r == nil {
		return 0
	}
	return uint(r.limiter.Burst())
}
