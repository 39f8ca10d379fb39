package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
)

func TestLimitsValidate(t *testing.T) {
	if err := (Limits{MaxCostUSD: -1}).Validate(); err == nil {
		t.Fatalf("expected validation error for negative cost")
	}
	if err := (Limits{MaxCostUSD: 10, ApprovalThreshold: 20}).Validate(); err == nil {
		t.Fatalf("expected threshold validation error")
	}
	if err := (Limits{MaxCostUSD: 10, ApprovalThreshold: 5}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMergeKeepsBaseForZeroFields(t *testing.T) {
	base := Limits{MaxCostUSD: 5, MaxTokens: 100000, MaxTime: time.Hour}
	merged := Merge(base, Limits{MaxCostUSD: 2})
	if merged.MaxCostUSD != 2 {
		t.Fatalf("override not applied: %v", merged.MaxCostUSD)
	}
	if merged.MaxTokens != 100000 || merged.MaxTime != time.Hour {
		t.Fatalf("base fields lost: %+v", merged)
	}
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.BudgetConfig{MaxTokens: 500, MaxCostUSD: 1.5, MaxTimeSeconds: 90})
	if got.MaxTokens != 500 || got.MaxCostUSD != 1.5 || got.MaxTime != 90*time.Second {
		t.Fatalf("unexpected limits: %+v", got)
	}
}

func TestMonitorAddBreaches(t *testing.T) {
	mon := NewMonitor(Limits{MaxCostUSD: 5, MaxTokens: 1000})
	if err := mon.Add(2.5, 400); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := mon.Add(1.0, 700)
	if err == nil {
		t.Fatalf("expected token budget breach")
	}
	var exceeded ErrExceeded
	if !errors.As(err, &exceeded) || exceeded.Kind != "tokens" {
		t.Fatalf("unexpected error: %v", err)
	}

	// Usage keeps accumulating past the breach.
	cost, tokens, _ := mon.Usage()
	if cost != 3.5 || tokens != 1100 {
		t.Fatalf("usage = %v/%d, want 3.5/1100", cost, tokens)
	}
}

func TestMonitorUnlimitedByDefault(t *testing.T) {
	mon := NewMonitor(Limits{})
	if err := mon.Add(1000, 1<<40); err != nil {
		t.Fatalf("zero limits must not breach: %v", err)
	}
	if err := mon.CheckTime(); err != nil {
		t.Fatalf("zero time limit must not breach: %v", err)
	}
}

func TestRequiresApproval(t *testing.T) {
	if RequiresApproval(Limits{}, 5) {
		t.Fatalf("unexpected approval requirement")
	}
	if !RequiresApproval(Limits{ApprovalThreshold: 4}, 5) {
		t.Fatalf("expected approval requirement above threshold")
	}
}
