// Package resilience provides the fault-isolation primitives shared by the
// generation router and the acquisition coordinator: a per-channel circuit
// breaker and a jittered exponential backoff.
package resilience

import (
	"sync"
	"time"
)

// Phase is the circuit breaker phase for one channel.
type Phase string

const (
	PhaseClosed   Phase = "closed"
	PhaseOpen     Phase = "open"
	PhaseHalfOpen Phase = "half-open"
)

// BreakerSet tracks one circuit breaker per named channel. State is explicit
// and checked on each call; there are no background timers, so behavior is
// fully determined by the injected clock.
type BreakerSet struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	channels  map[string]*channelState
}

type channelState struct {
	failures  int
	phase     Phase
	changedAt time.Time
	probing   bool
}

// BreakerOption configures a BreakerSet.
type BreakerOption func(*BreakerSet)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *BreakerSet) { b.now = now }
}

// NewBreakerSet creates a breaker set that opens a channel after threshold
// consecutive failures and re-probes it after cooldown.
func NewBreakerSet(threshold int, cooldown time.Duration, opts ...BreakerOption) *BreakerSet {
	b := &BreakerSet{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		channels:  map[string]*channelState{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BreakerSet) state(channel string) *channelState {
	st, ok := b.channels[channel]
	if !ok {
		st = &channelState{phase: PhaseClosed}
		b.channels[channel] = st
	}
	return st
}

// AllowCall reports whether the channel may be called right now. While open,
// the first call after the cooldown elapses flips the channel to half-open
// and is admitted as the single probe; everything else is rejected until the
// probe's outcome is recorded.
func (b *BreakerSet) AllowCall(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(channel)
	switch st.phase {
	case PhaseClosed:
		return true
	case PhaseOpen:
		if b.now().Sub(st.changedAt) >= b.cooldown {
			st.phase = PhaseHalfOpen
			st.changedAt = b.now()
			st.probing = true
			return true
		}
		return false
	case PhaseHalfOpen:
		if st.probing {
			return false
		}
		st.probing = true
		return true
	}
	return false
}

// RecordSuccess resets the channel to closed with a zero failure count.
func (b *BreakerSet) RecordSuccess(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(channel)
	st.failures = 0
	st.probing = false
	if st.phase != PhaseClosed {
		st.phase = PhaseClosed
		st.changedAt = b.now()
	}
}

// RecordFailure bumps the consecutive-failure count. Crossing the threshold
// while closed, or any failure while half-open, opens the channel and
// restarts the cooldown.
func (b *BreakerSet) RecordFailure(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(channel)
	st.failures++
	st.probing = false
	switch st.phase {
	case PhaseHalfOpen:
		st.phase = PhaseOpen
		st.changedAt = b.now()
	case PhaseClosed:
		if st.failures >= b.threshold {
			st.phase = PhaseOpen
			st.changedAt = b.now()
		}
	}
}

// ChannelPhase returns the current phase for a channel, for status reporting.
func (b *BreakerSet) ChannelPhase(channel string) Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(channel).phase
}

// Failures returns the consecutive-failure count for a channel.
func (b *BreakerSet) Failures(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(channel).failures
}
