// Package router dispatches generation calls across the local and cloud
// channels according to the configured strategy, with circuit breaker gating,
// one-shot fallback, and truncation-aware retry. Callers always get an
// envelope back; channel exhaustion yields a sentinel text, never an error.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider/models"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/resilience"
)

// Strategy selects the channel order for generation calls.
type Strategy string

const (
	LocalOnly              Strategy = "local_only"
	CloudOnly              Strategy = "cloud_only"
	CloudPrimary           Strategy = "cloud_primary"
	LocalWithCloudFallback Strategy = "local_with_cloud_fallback"
)

// Channel names used for breaker bookkeeping and envelopes.
const (
	ChannelLocal = "local"
	ChannelCloud = "cloud"
)

// UnavailablePrefix marks sentinel envelope text produced when no channel
// could serve a call. Downstream consumers branch on it instead of an error.
const UnavailablePrefix = "[generation unavailable]"

// Tier is an optional quality hint attached to a request.
type Tier string

const (
	TierDefault  Tier = ""
	TierPrecise  Tier = "precise"
	TierCreative Tier = "creative"
)

// Request is one generation call.
type Request struct {
	Prompt string
	System string
	// MaxTokens pins the output budget. Zero lets the router manage it,
	// including the automatic truncation retry.
	MaxTokens int
	Tier      Tier
}

// Envelope is the uniform response for every generation call.
type Envelope struct {
	Text         string
	WasTruncated bool
	FinishReason string
	Provider     string
	ToolCalls    []models.ToolCall
	Usage        models.Usage
	CostUSD      float64
}

// Unavailable reports whether the envelope carries the sentinel text.
func (e Envelope) Unavailable() bool {
	return strings.HasPrefix(e.Text, UnavailablePrefix)
}

// Router routes generation calls to the local and cloud channels.
type Router struct {
	strategy  Strategy
	local     provider.Provider
	cloud     provider.Provider
	breakers  *resilience.BreakerSet
	defTokens int
	capTokens int
	pricing   map[string]config.Cost
	counter   *tokenCounter
	logger    *log.Logger
}

// New builds a router with real backends from configuration. A channel whose
// backend cannot be constructed is left nil and skipped at call time, which
// keeps a half-configured deployment usable through the other channel.
func New(cfg config.LLMConfig, breakers *resilience.BreakerSet, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(log.Writer(), "[ROUTER] ", log.LstdFlags)
	}
	r := &Router{
		strategy:  Strategy(cfg.Strategy),
		breakers:  breakers,
		defTokens: cfg.MaxTokensDefault,
		capTokens: cfg.MaxTokensCap,
		pricing:   cfg.Pricing,
		counter:   &tokenCounter{},
		logger:    logger,
	}
	if cloud, err := provider.NewCloud(cfg); err == nil {
		r.cloud = cloud
	} else {
		logger.Printf("cloud channel disabled: %v", err)
	}
	if local, err := provider.NewLocal(cfg); err == nil {
		r.local = local
	} else {
		logger.Printf("local channel disabled: %v", err)
	}
	return r
}

// NewWithBackends builds a router around explicit backends. Tests and callers
// with custom providers use this.
func NewWithBackends(strategy Strategy, local, cloud provider.Provider, breakers *resilience.BreakerSet, defTokens, capTokens int) *Router {
	if defTokens <= 0 {
		defTokens = 2048
	}
	if capTokens < defTokens {
		capTokens = defTokens * 4
	}
	return &Router{
		strategy:  strategy,
		local:     local,
		cloud:     cloud,
		breakers:  breakers,
		defTokens: defTokens,
		capTokens: capTokens,
		counter:   &tokenCounter{},
		logger:    log.New(log.Writer(), "[ROUTER] ", log.LstdFlags),
	}
}

// Generate produces text for the request via the strategy's channel order.
func (r *Router) Generate(ctx context.Context, req Request) Envelope {
	return r.dispatch(ctx, req, nil)
}

// GenerateJSON is Generate with the system prompt extended so the model
// answers with a single JSON object. Parsing stays with the caller, which
// owns the fallback when the model disobeys.
func (r *Router) GenerateJSON(ctx context.Context, req Request) Envelope {
	instr := "Respond with a single valid JSON object and nothing else. No markdown fences, no commentary."
	if req.System == "" {
		req.System = instr
	} else {
		req.System += "\n" + instr
	}
	if req.Tier == TierDefault {
		req.Tier = TierPrecise
	}
	return r.dispatch(ctx, req, nil)
}

// GenerateWithTools exposes tool declarations to the model; any requested
// calls come back on the envelope.
func (r *Router) GenerateWithTools(ctx context.Context, req Request, tools []models.ToolSpec) Envelope {
	return r.dispatch(ctx, req, tools)
}

func (r *Router) channelOrder() []string {
	switch r.strategy {
	case LocalOnly:
		return []string{ChannelLocal}
	case CloudOnly:
		return []string{ChannelCloud}
	case LocalWithCloudFallback:
		return []string{ChannelLocal, ChannelCloud}
	default: // CloudPrimary
		return []string{ChannelCloud, ChannelLocal}
	}
}

func (r *Router) backend(channel string) provider.Provider {
	if channel == ChannelLocal {
		return r.local
	}
	return r.cloud
}

// dispatch walks the channel order. The order holds at most two entries, so
// fallback happens exactly once per call.
func (r *Router) dispatch(ctx context.Context, req Request, tools []models.ToolSpec) Envelope {
	var diags []string
	for _, channel := range r.channelOrder() {
		backend := r.backend(channel)
		if backend == nil {
			diags = append(diags, channel+": not configured")
			continue
		}
		if !r.breakers.AllowCall(channel) {
			diags = append(diags, channel+": circuit open")
			continue
		}

		env, err := r.attempt(ctx, backend, req, tools)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				// Cooperative cancellation, not a channel fault.
				diags = append(diags, channel+": cancelled")
				break
			}
			r.breakers.RecordFailure(channel)
			r.logger.Printf("%s attempt failed: %v", channel, err)
			diags = append(diags, fmt.Sprintf("%s: %v", channel, err))
			continue
		}
		r.breakers.RecordSuccess(channel)
		return env
	}
	return Envelope{
		Text:         fmt.Sprintf("%s %s", UnavailablePrefix, strings.Join(diags, "; ")),
		FinishReason: "unavailable",
	}
}

// attempt runs one completion on a backend, retrying once with a doubled
// token budget when the backend reports truncation and the caller left the
// budget to the router.
func (r *Router) attempt(ctx context.Context, backend provider.Provider, req Request, tools []models.ToolSpec) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}

	budget := req.MaxTokens
	pinned := budget > 0
	if !pinned {
		budget = r.defTokens
	}

	res, err := backend.Complete(ctx, r.completionRequest(req, tools, budget))
	if err != nil {
		return Envelope{}, err
	}
	if res.Truncated && !pinned {
		doubled := budget * 2
		if doubled > r.capTokens {
			doubled = r.capTokens
		}
		if doubled > budget {
			retry, retryErr := backend.Complete(ctx, r.completionRequest(req, tools, doubled))
			if retryErr == nil {
				retry.Usage.InputTokens += res.Usage.InputTokens
				retry.Usage.OutputTokens += res.Usage.OutputTokens
				res = retry
			}
		}
	}
	if res.Text == "" && len(res.ToolCalls) == 0 {
		return Envelope{}, fmt.Errorf("empty response (finish=%s)", res.FinishReason)
	}

	r.fillUsage(&res, req)
	return Envelope{
		Text:         res.Text,
		WasTruncated: res.Truncated,
		FinishReason: res.FinishReason,
		Provider:     backend.Name(),
		ToolCalls:    res.ToolCalls,
		Usage:        res.Usage,
		CostUSD:      r.cost(backend.Name(), res.Usage),
	}, nil
}

func (r *Router) completionRequest(req Request, tools []models.ToolSpec, budget int) models.CompletionRequest {
	out := models.CompletionRequest{
		Prompt:    req.Prompt,
		System:    req.System,
		MaxTokens: budget,
		Tools:     tools,
	}
	switch req.Tier {
	case TierPrecise:
		out.Temperature = 0.1
	case TierCreative:
		out.Temperature = 0.9
	}
	return out
}

// fillUsage backfills token counts from the tokenizer when a backend reported
// nothing, so budget accounting keeps working against local servers.
func (r *Router) fillUsage(res *models.CompletionResult, req Request) {
	if res.Usage.InputTokens == 0 {
		res.Usage.InputTokens = r.counter.Count(req.System) + r.counter.Count(req.Prompt)
	}
	if res.Usage.OutputTokens == 0 {
		res.Usage.OutputTokens = r.counter.Count(res.Text)
	}
}

// cost prices a call from the configured per-1K pricing table, keyed by the
// backend name. Unknown backends cost zero.
func (r *Router) cost(name string, usage models.Usage) float64 {
	price, ok := r.pricing[name]
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1000*price.Input + float64(usage.OutputTokens)/1000*price.Output
}
