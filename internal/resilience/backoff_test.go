package resilience

import (
	"context"
	"testing"
	"time"
)

func TestBackoffRanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{0, 750 * time.Millisecond, 1250 * time.Millisecond},
		{1, 1500 * time.Millisecond, 2500 * time.Millisecond},
		{2, 3000 * time.Millisecond, 5000 * time.Millisecond},
		{10, 6000 * time.Millisecond, 10000 * time.Millisecond},
	}
	for _, tt := range tests {
		// Jitter is random; sample enough times to catch range violations.
		for i := 0; i < 200; i++ {
			d := Backoff(tt.attempt)
			if d < tt.min || d > tt.max {
				t.Fatalf("attempt %d: delay %s outside [%s, %s]", tt.attempt, d, tt.min, tt.max)
			}
		}
	}
}

func TestBackoffZeroValuePolicyUsesDefaults(t *testing.T) {
	t.Parallel()

	var p BackoffPolicy
	d := p.Delay(0)
	if d < 750*time.Millisecond || d > 1250*time.Millisecond {
		t.Fatalf("zero-value policy delay %s outside default first-attempt range", d)
	}
}

func TestBackoffSleepHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := BackoffPolicy{Base: time.Second, Cap: 8 * time.Second}
	if err := p.Sleep(ctx, 5); err == nil {
		t.Fatalf("expected context error from cancelled sleep")
	}
}
