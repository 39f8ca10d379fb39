package acquire

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/helpers"
	"github.com/shellsage-ai/ResearchHive-sub000/tools/web_search"
	searchmodels "github.com/shellsage-ai/ResearchHive-sub000/tools/web_search/models"
)

// SearchMultiLane fans queries out across every live channel concurrently
// and returns deduplicated, relevance-scored candidates. Channel failures
// and empty lanes degrade the result set, never fail the call. A channel
// contributing nothing twice in a row is skipped for the rest of the job.
func (s *Session) SearchMultiLane(ctx context.Context, queries []string, domainContext []string) []Candidate {
	queries = dedupeStrings(queries)
	if len(queries) == 0 {
		return nil
	}

	type laneResult struct {
		channel string
		results []searchmodels.Result
	}
	var wg sync.WaitGroup
	lanes := make(chan laneResult, len(queries)*len(s.searchers))

	for name, searcher := range s.searchers {
		if s.isDead(name) {
			continue
		}
		for _, q := range queries {
			wg.Add(1)
			go func(name, q string, searcher web_search.WebSearcher) {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				res, err := searcher.Discover(ctx, q, s.c.cfg.Search.MaxResultsPerChannel, domainContext, 0)
				if err != nil {
					s.c.logger.Printf("channel %s failed for %q: %v", name, q, err)
					res = nil
				}
				lanes <- laneResult{channel: name, results: res}
			}(name, q, searcher)
		}
	}
	wg.Wait()
	close(lanes)

	perChannel := make(map[string]int)
	byCanonical := make(map[string]Candidate)
	var order []string
	for lane := range lanes {
		perChannel[lane.channel] += len(lane.results)
		for _, r := range lane.results {
			canonical, err := helpers.CanonicalURL(r.URL)
			if err != nil {
				continue
			}
			if s.alreadySeen(canonical) {
				continue
			}
			if _, dup := byCanonical[canonical]; dup {
				continue
			}
			byCanonical[canonical] = Candidate{
				URL:         r.URL,
				Canonical:   canonical,
				Title:       r.Title,
				Snippet:     r.Snippet,
				PublishedAt: r.PublishedAt,
				Channel:     lane.channel,
			}
			order = append(order, canonical)
		}
	}
	s.recordStreaks(perChannel)

	merged := make([]Candidate, 0, len(order))
	for _, key := range order {
		merged = append(merged, byCanonical[key])
	}
	return s.rankCandidates(merged, queries)
}

// rankCandidates scores candidates by keyword overlap with the question and
// queries, blends in domain authority where known, and caps the list at a
// target scaled by query count. Zero scorers survive only as a small
// exploratory tail so filtering never starves acquisition.
func (s *Session) rankCandidates(candidates []Candidate, queries []string) []Candidate {
	tokens := queryTokens(s.question, queries)
	blend := s.c.cfg.Relevance.AuthorityBlend

	var scored, zeroes []Candidate
	for _, cand := range candidates {
		kw := urlKeywordScore(cand.URL, tokens)
		score := kw
		if auth, ok := domainAuthority(helpers.Domain(cand.URL)); ok && blend > 0 {
			score = (1-blend)*kw + blend*auth
		}
		cand.Score = score
		if kw == 0 {
			zeroes = append(zeroes, cand)
		} else {
			scored = append(scored, cand)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	limit := s.c.cfg.Search.CandidateCapPerQuery * len(queries)
	if limit <= 0 {
		limit = 12 * len(queries)
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}
	tail := s.c.cfg.Relevance.ExploratoryTail
	if tail > len(zeroes) {
		tail = len(zeroes)
	}
	return append(scored, zeroes[:tail]...)
}

func (s *Session) isDead(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead[channel]
}

func (s *Session) alreadySeen(canonical string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[canonical]
	return ok
}

// recordStreaks counts one strike per dispatch in which a channel
// contributed zero results; two consecutive strikes kill the channel for
// this job.
func (s *Session) recordStreaks(perChannel map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	threshold := s.c.cfg.Search.DeadChannelThreshold
	if threshold <= 0 {
		threshold = 2
	}
	for name := range s.searchers {
		if s.dead[name] {
			continue
		}
		if perChannel[name] > 0 {
			s.emptyStreak[name] = 0
			continue
		}
		s.emptyStreak[name]++
		if s.emptyStreak[name] >= threshold {
			s.dead[name] = true
			s.c.logger.Printf("channel %s returned nothing %d times, skipping for this job", name, s.emptyStreak[name])
		}
	}
}

// urlKeywordScore is the fraction of the URL's host+path tokens that appear
// in the question/query token set.
func urlKeywordScore(rawURL string, tokens map[string]struct{}) float64 {
	urlTokens := helpers.HostPathTokens(rawURL)
	if len(urlTokens) == 0 {
		return 0
	}
	matched := 0
	for _, t := range urlTokens {
		if _, ok := tokens[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(urlTokens))
}

func queryTokens(question string, queries []string) map[string]struct{} {
	out := make(map[string]struct{})
	add := func(text string) {
		for _, f := range strings.Fields(strings.ToLower(text)) {
			f = strings.Trim(f, `.,;:!?"'()[]`)
			if len(f) >= 3 {
				out[f] = struct{}{}
			}
		}
	}
	add(question)
	for _, q := range queries {
		add(q)
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
