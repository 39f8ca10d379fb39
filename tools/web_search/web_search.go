package web_search

import (
	"context"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/brave"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/feeds"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/models"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/serper"
)

// WebSearcher is one discovery channel. Implementations return at most k
// results for q; sites narrows to specific hosts and recency caps result age
// in days where the channel supports it.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
	FeedsProvider  Provider = "feeds"
)

type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

var ErrUnsupportedProvider = &Error{"unsupported provider"}

func NewWebSearcher(provider Provider, cfg config.SearchConfig) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: cfg.SerperAPIKey, Timeout: cfg.Timeout}, nil
	case BraveProvider:
		return brave.Search{ApiKey: cfg.BraveAPIKey, Timeout: cfg.Timeout}, nil
	case FeedsProvider:
		return feeds.New(cfg.Feeds, cfg.FeedsPerMinute), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// Channels lists the providers usable with the given config, search channels
// first and the supplementary feeds lane last.
func Channels(cfg config.SearchConfig) []Provider {
	var out []Provider
	if cfg.BraveAPIKey != "" {
		out = append(out, BraveProvider)
	}
	if cfg.SerperAPIKey != "" {
		out = append(out, SerperProvider)
	}
	if len(cfg.Feeds) > 0 {
		out = append(out, FeedsProvider)
	}
	return out
}
