// Package provider holds the generation backends the router dispatches to.
// Each backend adapts one vendor API to the neutral completion contract; the
// router never sees vendor types.
package provider

import (
	"context"
	"fmt"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider/anthropic"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider/gemini"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider/models"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/provider/openai"
)

// Provider is one generation backend.
type Provider interface {
	// Name identifies the backend in envelopes and logs, e.g. "openai:gpt-4o-mini".
	Name() string
	Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResult, error)
}

// Kind selects a backend implementation.
type Kind string

const (
	OpenAIKind    Kind = "openai"
	AnthropicKind Kind = "anthropic"
	GeminiKind    Kind = "gemini"
	LocalKind     Kind = "local"
)

// NewCloud builds the configured cloud backend.
func NewCloud(cfg config.LLMConfig) (Provider, error) {
	switch Kind(cfg.Cloud.Provider) {
	case OpenAIKind, "":
		return openai.New(openai.Config{
			Name:        "openai",
			APIKey:      cfg.Cloud.OpenAI.APIKey,
			Model:       cfg.Cloud.OpenAI.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}), nil
	case AnthropicKind:
		return anthropic.New(anthropic.Config{
			APIKey:      cfg.Cloud.Anthropic.APIKey,
			Model:       cfg.Cloud.Anthropic.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}), nil
	case GeminiKind:
		return gemini.New(gemini.Config{
			APIKey:      cfg.Cloud.Gemini.APIKey,
			Model:       cfg.Cloud.Gemini.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported cloud provider %q", cfg.Cloud.Provider)
	}
}

// NewLocal builds the local backend. Local inference servers expose the
// OpenAI-compatible chat API, so the openai backend is reused with a base URL.
func NewLocal(cfg config.LLMConfig) (Provider, error) {
	if cfg.Local.BaseURL == "" {
		return nil, fmt.Errorf("local provider requires llm.local.base_url")
	}
	return openai.New(openai.Config{
		Name:        "local",
		APIKey:      cfg.Local.APIKey,
		BaseURL:     cfg.Local.BaseURL,
		Model:       cfg.Local.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}), nil
}
