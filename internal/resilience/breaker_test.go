package resilience

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreakerSet(3, 30*time.Second)
	for i := 0; i < 3; i++ {
		if !b.AllowCall("cloud") {
			t.Fatalf("expected call %d to be allowed while closed", i)
		}
		b.RecordFailure("cloud")
	}
	if b.AllowCall("cloud") {
		t.Fatalf("expected breaker open after 3 consecutive failures")
	}
	if got := b.ChannelPhase("cloud"); got != PhaseOpen {
		t.Fatalf("expected phase open, got %s", got)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	b := NewBreakerSet(2, 30*time.Second, WithClock(clock))

	b.RecordFailure("local")
	b.RecordFailure("local")
	if b.AllowCall("local") {
		t.Fatalf("expected open breaker to reject calls")
	}

	now = now.Add(31 * time.Second)
	if !b.AllowCall("local") {
		t.Fatalf("expected exactly one probe after cooldown")
	}
	if got := b.ChannelPhase("local"); got != PhaseHalfOpen {
		t.Fatalf("expected half-open during probe, got %s", got)
	}
	if b.AllowCall("local") {
		t.Fatalf("expected second call during outstanding probe to be rejected")
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	b := NewBreakerSet(1, 10*time.Second, WithClock(func() time.Time { return now }))

	b.RecordFailure("cloud")
	now = now.Add(11 * time.Second)
	if !b.AllowCall("cloud") {
		t.Fatalf("expected probe to be admitted")
	}
	b.RecordSuccess("cloud")
	if got := b.ChannelPhase("cloud"); got != PhaseClosed {
		t.Fatalf("expected closed after probe success, got %s", got)
	}
	if got := b.Failures("cloud"); got != 0 {
		t.Fatalf("expected failure count reset, got %d", got)
	}
	if !b.AllowCall("cloud") {
		t.Fatalf("expected calls allowed after reset")
	}
}

func TestBreakerProbeFailureReopensAndRestartsCooldown(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	b := NewBreakerSet(1, 10*time.Second, WithClock(func() time.Time { return now }))

	b.RecordFailure("cloud")
	now = now.Add(11 * time.Second)
	if !b.AllowCall("cloud") {
		t.Fatalf("expected probe to be admitted")
	}
	b.RecordFailure("cloud")
	if got := b.ChannelPhase("cloud"); got != PhaseOpen {
		t.Fatalf("expected reopen after probe failure, got %s", got)
	}

	// Cooldown restarted at the probe failure, not the original trip.
	now = now.Add(9 * time.Second)
	if b.AllowCall("cloud") {
		t.Fatalf("expected rejection before restarted cooldown elapses")
	}
	now = now.Add(2 * time.Second)
	if !b.AllowCall("cloud") {
		t.Fatalf("expected probe after restarted cooldown")
	}
}

func TestBreakerChannelsAreIndependent(t *testing.T) {
	t.Parallel()

	b := NewBreakerSet(1, time.Minute)
	b.RecordFailure("local")
	if b.AllowCall("local") {
		t.Fatalf("expected local open")
	}
	if !b.AllowCall("cloud") {
		t.Fatalf("expected cloud unaffected by local failures")
	}
}
