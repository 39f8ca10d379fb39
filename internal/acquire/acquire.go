// Package acquire turns search queries into accepted, relevance-gated
// sources. Discovery fans out across every configured channel, fetching runs
// under a bounded gate, and every failure mode is recorded as a health entry
// instead of aborting the job.
package acquire

import (
	"log"
	"sync"
	"time"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/internal/resilience"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/embedding"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_fetch"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search"
)

// Candidate is one discovered URL before fetching.
type Candidate struct {
	URL         string
	Canonical   string
	Title       string
	Snippet     string
	PublishedAt string
	Channel     string
	Score       float64
}

// Source is one accepted page.
type Source struct {
	ID          string
	URL         string
	Canonical   string
	Title       string
	Byline      string
	PublishedAt string
	Text        string
	Channel     string
	Relevance   float64
	FetchedAt   time.Time
}

// HealthStatus classifies one fetch attempt's outcome.
type HealthStatus string

const (
	HealthSuccess  HealthStatus = "success"
	HealthBlocked  HealthStatus = "blocked"
	HealthPaywall  HealthStatus = "paywall"
	HealthTimeout  HealthStatus = "timeout"
	HealthError    HealthStatus = "error"
	HealthRejected HealthStatus = "rejected"
)

// SourceHealthEntry is one fetch attempt's outcome. Append-only per job.
type SourceHealthEntry struct {
	URL        string
	Status     HealthStatus
	HTTPStatus int
	Reason     string
	At         time.Time
}

// Config is the slice of configuration acquisition needs.
type Config struct {
	Search              config.SearchConfig
	Relevance           config.RelevanceConfig
	FetchConcurrencyCap int
	Backoff             resilience.BackoffPolicy
}

// Coordinator owns the collaborators shared by every job: the fetcher, the
// embedder and the channel factory. Per-job state lives on the Session.
type Coordinator struct {
	cfg      Config
	fetcher  web_fetch.WebFetcher
	embedder embedding.Client
	logger   *log.Logger
	channels func() map[string]web_search.WebSearcher
}

// New builds a coordinator whose sessions get a fresh channel set each, so
// the feed lane's throttle is scoped to one job.
func New(cfg Config, fetcher web_fetch.WebFetcher, embedder embedding.Client, logger *log.Logger) *Coordinator {
	c := &Coordinator{cfg: cfg, fetcher: fetcher, embedder: embedder, logger: logger}
	c.channels = func() map[string]web_search.WebSearcher {
		m := make(map[string]web_search.WebSearcher)
		for _, p := range web_search.Channels(cfg.Search) {
			ws, err := web_search.NewWebSearcher(p, cfg.Search)
			if err != nil {
				continue
			}
			m[string(p)] = ws
		}
		return m
	}
	if logger == nil {
		c.logger = log.New(log.Writer(), "[ACQUIRE] ", log.LstdFlags)
	}
	return c
}

// NewWithChannels builds a coordinator over a fixed channel set. Used by
// tests and by callers that bring their own search adapters.
func NewWithChannels(cfg Config, channels map[string]web_search.WebSearcher, fetcher web_fetch.WebFetcher, embedder embedding.Client, logger *log.Logger) *Coordinator {
	c := &Coordinator{cfg: cfg, fetcher: fetcher, embedder: embedder, logger: logger}
	c.channels = func() map[string]web_search.WebSearcher { return channels }
	if logger == nil {
		c.logger = log.New(log.Writer(), "[ACQUIRE] ", log.LstdFlags)
	}
	return c
}

// Session carries one job's acquisition state: its channel set, dead-channel
// streaks, the canonical URLs already handled and the cached question
// embedding.
type Session struct {
	c         *Coordinator
	question  string
	searchers map[string]web_search.WebSearcher

	mu          sync.Mutex
	emptyStreak map[string]int
	dead        map[string]bool
	seen        map[string]struct{}

	qvecOnce sync.Once
	qvec     []float32
}

func (c *Coordinator) NewSession(question string) *Session {
	return &Session{
		c:           c,
		question:    question,
		searchers:   c.channels(),
		emptyStreak: make(map[string]int),
		dead:        make(map[string]bool),
		seen:        make(map[string]struct{}),
	}
}

// DeadChannels lists channels skipped for the rest of this job.
func (s *Session) DeadChannels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name, d := range s.dead {
		if d {
			out = append(out, name)
		}
	}
	return out
}
