package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// DefaultMaxDelay caps backoff when a policy sets no MaxDelay.
const DefaultMaxDelay = 30 * time.Second

// RetryPolicy decides how many fetch attempts a phrase gets and how long to
// wait between them. MaxAttempts of zero means retry until success.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy with jittered exponential backoff.
func NewExponentialRetryPolicy(maxAttempts int, base, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
	}
}

// ShouldRetry reports whether another attempt is allowed after `attempt`
// attempts have failed.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyPool) {
		return false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return false
	}
	return true
}

// Backoff returns the wait duration before the next attempt. The result is
// always within [0, MaxDelay], or [0, DefaultMaxDelay] when MaxDelay is unset.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	if attempt < 0 {
		attempt = 0
	}
	// Pow overflows to +Inf for large attempts; the cap still applies.
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay > float64(limit) {
		delay = float64(limit)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Wait sleeps for the backoff of attempt, returning early if ctx ends.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	d := p.Backoff(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
