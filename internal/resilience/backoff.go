package resilience

import (
	"context"
	"math/rand"
	"time"
)

const (
	// DefaultBackoffBase is the delay before the first retry.
	DefaultBackoffBase = 1000 * time.Millisecond
	// DefaultBackoffCap bounds the un-jittered delay.
	DefaultBackoffCap = 8000 * time.Millisecond
)

// BackoffPolicy computes retry delays: Base doubled per attempt, capped at
// Cap, then multiplied by a uniform jitter in [0.75, 1.25].
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff is the policy used when callers do not carry their own.
var DefaultBackoff = BackoffPolicy{Base: DefaultBackoffBase, Cap: DefaultBackoffCap}

// Delay returns the jittered delay for the given zero-based attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	ceiling := p.Cap
	if ceiling <= 0 {
		ceiling = DefaultBackoffCap
	}

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			d = ceiling
			break
		}
	}
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}

// Sleep blocks for Delay(attempt) or until ctx is cancelled, returning the
// context error in the latter case.
func (p BackoffPolicy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the default policy's delay for the given attempt.
func Backoff(attempt int) time.Duration {
	return DefaultBackoff.Delay(attempt)
}
