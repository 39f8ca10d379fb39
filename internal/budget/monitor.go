package budget

import (
	"fmt"
	"sync"
	"time"
)

// Monitor tracks actual usage against the limits during a run. It is safe
// for concurrent use by acquisition sub-tasks.
type Monitor struct {
	limits  Limits
	mu      sync.Mutex
	costUSD float64
	tokens  int64
	started time.Time
}

func NewMonitor(limits Limits) *Monitor {
	return &Monitor{limits: limits, started: time.Now()}
}

// Add records incremental cost and tokens, returning ErrExceeded when a
// limit is breached. The usage is recorded either way so reporting stays
// accurate after the breach.
func (m *Monitor) Add(costUSD float64, tokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costUSD += costUSD
	m.tokens += tokens
	if m.limits.MaxCostUSD > 0 && m.costUSD > m.limits.MaxCostUSD {
		return ErrExceeded{
			Kind:  "cost",
			Usage: fmt.Sprintf("$%.4f", m.costUSD),
			Limit: fmt.Sprintf("$%.4f", m.limits.MaxCostUSD),
		}
	}
	if m.limits.MaxTokens > 0 && m.tokens > m.limits.MaxTokens {
		return ErrExceeded{
			Kind:  "tokens",
			Usage: fmt.Sprintf("%d tokens", m.tokens),
			Limit: fmt.Sprintf("%d tokens", m.limits.MaxTokens),
		}
	}
	return nil
}

// CheckTime verifies elapsed wall-clock time against the limit.
func (m *Monitor) CheckTime() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limits.MaxTime <= 0 {
		return nil
	}
	if elapsed := time.Since(m.started); elapsed > m.limits.MaxTime {
		return ErrExceeded{
			Kind:  "time",
			Usage: elapsed.Round(time.Millisecond).String(),
			Limit: m.limits.MaxTime.String(),
		}
	}
	return nil
}

// Usage returns the accumulated metrics.
func (m *Monitor) Usage() (costUSD float64, tokens int64, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.costUSD, m.tokens, time.Since(m.started)
}

// Limits returns the guardrails the monitor enforces.
func (m *Monitor) Limits() Limits {
	return m.limits
}
