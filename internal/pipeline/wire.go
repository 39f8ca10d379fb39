package pipeline

import (
	"fmt"
	"log"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/acquire"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/evaluate"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/index"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/resilience"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/router"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/embedding"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch"
)

// FromConfig assembles a pipeline over the real collaborator set: the
// provider router, the generation-backed evaluator, multi-lane acquisition
// and per-job hybrid indexes. st may be nil for in-memory runs.
func FromConfig(cfg *config.Config, st Store, logger *log.Logger) (*Pipeline, error) {
	breakers := resilience.NewBreakerSet(cfg.Resilience.FailureThreshold, cfg.Resilience.Cooldown)
	gen := router.New(cfg.LLM, breakers, nil)
	eval := evaluate.New(gen, cfg.Evaluate, cfg.Pipeline.DefaultTargetSources, nil)

	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetch.Type), cfg.Fetch.Timeout, cfg.Fetch.MaxChars)
	if err != nil {
		return nil, fmt.Errorf("building fetcher: %w", err)
	}
	embedder := embedding.NewEmbedding(cfg.Embedding)
	coord := acquire.New(acquire.Config{
		Search:              cfg.Search,
		Relevance:           cfg.Relevance,
		FetchConcurrencyCap: cfg.Pipeline.FetchConcurrencyCap,
		Backoff:             resilience.BackoffPolicy{Base: cfg.Resilience.BackoffBase, Cap: cfg.Resilience.BackoffCap},
	}, fetcher, embedder, nil)

	sessions := func(question string) AcquireSession { return coord.NewSession(question) }
	indexes := func(jobID string) (Indexer, error) { return index.New(jobID, embedder) }
	return New(cfg, gen, eval, sessions, indexes, st, logger), nil
}
