// Package budget enforces per-run spend guardrails: tokens, dollar cost and
// wall-clock time.
package budget

import (
	"fmt"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
)

// Limits are the guardrails for one research run. Zero values mean unlimited.
type Limits struct {
	MaxCostUSD        float64
	MaxTokens         int64
	MaxTime           time.Duration
	ApprovalThreshold float64
}

// FromConfig lifts the configured defaults into Limits.
func FromConfig(cfg config.BudgetConfig) Limits {
	return Limits{
		MaxCostUSD:        cfg.MaxCostUSD,
		MaxTokens:         cfg.MaxTokens,
		MaxTime:           time.Duration(cfg.MaxTimeSeconds) * time.Second,
		ApprovalThreshold: cfg.ApprovalThresholdUSD,
	}
}

// Validate ensures the limits are sane before use.
func (l Limits) Validate() error {
	if l.MaxCostUSD < 0 {
		return fmt.Errorf("max cost cannot be negative")
	}
	if l.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if l.MaxTime < 0 {
		return fmt.Errorf("max time cannot be negative")
	}
	if l.ApprovalThreshold < 0 {
		return fmt.Errorf("approval threshold cannot be negative")
	}
	if l.ApprovalThreshold > 0 && l.MaxCostUSD > 0 && l.ApprovalThreshold > l.MaxCostUSD {
		return fmt.Errorf("approval threshold cannot exceed max cost")
	}
	return nil
}

// Merge overlays the non-zero fields of override onto base, so a single
// research request can tighten or loosen the configured defaults.
func Merge(base, override Limits) Limits {
	out := base
	if override.MaxCostUSD != 0 {
		out.MaxCostUSD = override.MaxCostUSD
	}
	if override.MaxTokens != 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.MaxTime != 0 {
		out.MaxTime = override.MaxTime
	}
	if override.ApprovalThreshold != 0 {
		out.ApprovalThreshold = override.ApprovalThreshold
	}
	return out
}

// IsZero reports whether no limit is set at all.
func (l Limits) IsZero() bool {
	return l.MaxCostUSD == 0 && l.MaxTokens == 0 && l.MaxTime == 0 && l.ApprovalThreshold == 0
}

// RequiresApproval reports whether a run estimated at estimatedCost needs
// manual approval before it starts.
func RequiresApproval(l Limits, estimatedCost float64) bool {
	return l.ApprovalThreshold > 0 && estimatedCost > l.ApprovalThreshold
}
