package acquire

import (
	"context"
	"sync"
	"testing"

	"github.com/shellsage-ai/ResearchHive-sub000/config"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search"
	searchmodels "github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/models"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   int
	results []searchmodels.Result
	err     error
}

func (f *fakeSearcher) Discover(context.Context, string, int, []string, int) ([]searchmodels.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results, f.err
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() Config {
	return Config{
		Search: config.SearchConfig{
			MaxResultsPerChannel: 5,
			DeadChannelThreshold: 2,
			CandidateCapPerQuery: 12,
		},
		Relevance: config.RelevanceConfig{
			KeywordLowWater: 0.08,
			CosineAccept:    0.55,
			AuthorityBlend:  0.5,
			ExploratoryTail: 2,
		},
		FetchConcurrencyCap: 4,
	}
}

func TestSearchMultiLaneDedupesAcrossChannels(t *testing.T) {
	t.Parallel()

	shared := searchmodels.Result{
		Title: "Quantum error correction overview",
		URL:   "https://example.com/quantum-error-correction?utm_source=news",
	}
	sharedAgain := shared
	sharedAgain.URL = "https://example.com/quantum-error-correction"
	channels := map[string]web_search.WebSearcher{
		"alpha": &fakeSearcher{results: []searchmodels.Result{shared}},
		"beta":  &fakeSearcher{results: []searchmodels.Result{sharedAgain}},
	}
	c := NewWithChannels(testConfig(), channels, nil, nil, nil)
	s := c.NewSession("quantum error correction progress")

	got := s.SearchMultiLane(context.Background(), []string{"quantum error correction"}, nil)
	if len(got) != 1 {
		t.Fatalf("expected one deduplicated candidate, got %d", len(got))
	}
	if got[0].Canonical != "https://example.com/quantum-error-correction" {
		t.Fatalf("unexpected canonical URL %q", got[0].Canonical)
	}
	if got[0].Score <= 0 {
		t.Fatalf("keyword-bearing URL should score above zero, got %f", got[0].Score)
	}
}

func TestSearchMultiLaneSkipsDeadChannel(t *testing.T) {
	t.Parallel()

	empty := &fakeSearcher{}
	live := &fakeSearcher{results: []searchmodels.Result{{
		Title: "Grid storage report",
		URL:   "https://example.org/grid-storage-report",
	}}}
	channels := map[string]web_search.WebSearcher{"empty": empty, "live": live}
	c := NewWithChannels(testConfig(), channels, nil, nil, nil)
	s := c.NewSession("grid storage economics")

	s.SearchMultiLane(context.Background(), []string{"grid storage"}, nil)
	s.SearchMultiLane(context.Background(), []string{"storage economics"}, nil)
	if got := s.DeadChannels(); len(got) != 1 || got[0] != "empty" {
		t.Fatalf("expected [empty] dead after two empty dispatches, got %v", got)
	}

	before := empty.callCount()
	s.SearchMultiLane(context.Background(), []string{"grid storage costs"}, nil)
	if empty.callCount() != before {
		t.Fatalf("dead channel was dispatched again")
	}
	if live.callCount() != 3 {
		t.Fatalf("live channel should see every dispatch, got %d calls", live.callCount())
	}
}

func TestSearchMultiLaneChannelErrorDegrades(t *testing.T) {
	t.Parallel()

	failing := &fakeSearcher{err: context.DeadlineExceeded}
	live := &fakeSearcher{results: []searchmodels.Result{{
		Title: "Fusion milestones",
		URL:   "https://example.org/fusion-energy-milestones",
	}}}
	channels := map[string]web_search.WebSearcher{"bad": failing, "good": live}
	c := NewWithChannels(testConfig(), channels, nil, nil, nil)
	s := c.NewSession("fusion energy milestones")

	got := s.SearchMultiLane(context.Background(), []string{"fusion energy"}, nil)
	if len(got) != 1 {
		t.Fatalf("expected the healthy channel's result to survive, got %d", len(got))
	}
}

func TestRankCandidatesCapsAndKeepsExploratoryTail(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Search.CandidateCapPerQuery = 2
	cfg.Relevance.ExploratoryTail = 1
	c := NewWithChannels(cfg, nil, nil, nil, nil)
	s := c.NewSession("solar panel efficiency records")

	candidates := []Candidate{
		{URL: "https://a.example/solar-panel-efficiency"},
		{URL: "https://b.example/solar-efficiency-records"},
		{URL: "https://c.example/panel-records-solar"},
		{URL: "https://d.example/celebrity-gossip"},
		{URL: "https://e.example/stock-picks"},
	}
	got := s.rankCandidates(candidates, []string{"solar panel efficiency"})

	// Two scored under the cap plus one zero-score exploratory entry.
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[2].Score != 0 {
		t.Fatalf("tail entry should be a zero scorer, got %f", got[2].Score)
	}
	for _, cand := range got[:2] {
		if cand.Score <= 0 {
			t.Fatalf("scored partition contains zero scorer %q", cand.URL)
		}
	}
}

func TestDomainAuthority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		domain string
		want   float64
		known  bool
	}{
		{"reuters.com", 0.95, true},
		{"www-less.nature.com", 0.95, true},
		{"nasa.gov", 0.9, true},
		{"mit.edu", 0.85, true},
		{"random-blog.example", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := domainAuthority(tt.domain)
		if ok != tt.known || got != tt.want {
			t.Errorf("domainAuthority(%q) = %f,%v want %f,%v", tt.domain, got, ok, tt.want, tt.known)
		}
	}
}
